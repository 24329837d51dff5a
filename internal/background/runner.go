package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/telemetry"
)

// defaultRestartBackoff is how long a loop sleeps after a panic before
// resuming
const defaultRestartBackoff = 5 * time.Second

// Loop is one supervised periodic job
type Loop struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives named loops on their intervals, bounds each iteration with a
// timeout, and restarts loops that panic
type Runner struct {
	loops            []Loop
	iterationTimeout time.Duration
	restartBackoff   time.Duration
	tel              *telemetry.Telemetry
	logger           logging.Logger

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTelemetry wires restart counters
func WithTelemetry(tel *telemetry.Telemetry) RunnerOption {
	return func(r *Runner) { r.tel = tel }
}

// WithLogger sets the runner logger
func WithLogger(logger logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRestartBackoff overrides the pause between a panic and the restart
func WithRestartBackoff(backoff time.Duration) RunnerOption {
	return func(r *Runner) { r.restartBackoff = backoff }
}

// NewRunner creates a runner. iterationTimeout bounds each loop iteration;
// zero means no bound.
func NewRunner(iterationTimeout time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		iterationTimeout: iterationTimeout,
		restartBackoff:   defaultRestartBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNoOp()
	}
	r.logger = r.logger.WithComponent("background_runner")
	return r
}

// Add registers a loop. Loops with a non-positive interval are rejected.
func (r *Runner) Add(name string, interval time.Duration, run func(ctx context.Context) error) error {
	if name == "" || run == nil {
		return fmt.Errorf("background loop needs a name and a run function")
	}
	if interval <= 0 {
		return fmt.Errorf("background loop %s: interval must be positive, got %s", name, interval)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("background loop %s: runner already started", name)
	}
	r.loops = append(r.loops, Loop{Name: name, Interval: interval, Run: run})
	return nil
}

// Start launches every registered loop. Loops stop when ctx is cancelled;
// Wait blocks until they are all done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	loops := r.loops
	r.started = true
	r.mu.Unlock()

	for _, loop := range loops {
		r.wg.Add(1)
		go r.supervise(ctx, loop)
	}
	r.logger.Info("background loops started", "count", len(loops))
}

// Wait blocks until every loop has exited
func (r *Runner) Wait() {
	r.wg.Wait()
}

// supervise keeps one loop alive across panics until ctx is cancelled
func (r *Runner) supervise(ctx context.Context, loop Loop) {
	defer r.wg.Done()
	for {
		if exited := r.pump(ctx, loop); exited {
			return
		}
		if r.tel != nil {
			r.tel.BackgroundRestarts.WithLabelValues(loop.Name).Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.restartBackoff):
		}
	}
}

// pump ticks the loop. Returns true on clean shutdown, false after a panic.
func (r *Runner) pump(ctx context.Context, loop Loop) (exited bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("background loop panicked",
				"loop", loop.Name, "panic", fmt.Sprintf("%v", rec))
			exited = false
		}
	}()

	ticker := time.NewTicker(loop.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("background loop stopped", "loop", loop.Name)
			return true
		case <-ticker.C:
			r.iterate(ctx, loop)
		}
	}
}

func (r *Runner) iterate(ctx context.Context, loop Loop) {
	iterCtx := ctx
	if r.iterationTimeout > 0 {
		var cancel context.CancelFunc
		iterCtx, cancel = context.WithTimeout(ctx, r.iterationTimeout)
		defer cancel()
	}
	if err := loop.Run(iterCtx); err != nil {
		r.logger.WarnContext(iterCtx, "background iteration failed",
			"loop", loop.Name, "error", err.Error())
	}
}
