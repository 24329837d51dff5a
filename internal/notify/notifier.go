// Package notify defines the fire-and-forget notification collaborator used
// for trend and sync alerts.
package notify

import (
	"context"
	"sync"

	"einvoice-analytics/internal/logging"
	"einvoice-analytics/pkg/types"
)

// Alert is one outbound notification
type Alert struct {
	Source   string             `json:"source"`
	Severity types.Severity     `json:"severity"`
	Title    string             `json:"title"`
	Message  string             `json:"message"`
	Data     map[string]float64 `json:"data,omitempty"`
}

// Notifier delivers alerts to operators. Implementations must not block the
// caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier creates a notifier backed by the structured log
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &LogNotifier{logger: logger.WithComponent("notifier")}
}

// Notify logs the alert at a level matching its severity
func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	fields := []interface{}{"source", alert.Source, "title", alert.Title}
	switch alert.Severity {
	case types.SeverityCritical:
		n.logger.ErrorContext(ctx, alert.Message, fields...)
	case types.SeverityWarning:
		n.logger.WarnContext(ctx, alert.Message, fields...)
	default:
		n.logger.InfoContext(ctx, alert.Message, fields...)
	}
	return nil
}

// Recorder captures alerts in memory for tests
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// NewRecorder creates an empty alert recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records the alert
func (r *Recorder) Notify(_ context.Context, alert Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()
	return nil
}

// Alerts returns a copy of everything recorded so far
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}
