package logging

import "context"

// NoOpLogger discards every log call. Used in tests and as a safe default
// when a component is constructed without a logger.
type NoOpLogger struct{}

// NewNoOp returns a logger that discards everything
func NewNoOp() Logger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(_ string, _ ...interface{}) {}
func (n *NoOpLogger) Info(_ string, _ ...interface{})  {}
func (n *NoOpLogger) Warn(_ string, _ ...interface{})  {}
func (n *NoOpLogger) Error(_ string, _ ...interface{}) {}

func (n *NoOpLogger) DebugContext(_ context.Context, _ string, _ ...interface{}) {}
func (n *NoOpLogger) InfoContext(_ context.Context, _ string, _ ...interface{})  {}
func (n *NoOpLogger) WarnContext(_ context.Context, _ string, _ ...interface{})  {}
func (n *NoOpLogger) ErrorContext(_ context.Context, _ string, _ ...interface{}) {}

func (n *NoOpLogger) WithTraceID(_ string) Logger   { return n }
func (n *NoOpLogger) WithComponent(_ string) Logger { return n }
