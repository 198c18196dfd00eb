package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner executes best-effort background tasks (post-call enrichment) with
// their own timeout and error boundary, decoupled from the request path that
// spawned them. There are no hidden singletons; construct one per process.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Submit runs fn on its own goroutine under the runner's timeout. Panics are
// contained and logged; the caller never observes the task's outcome.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("background task panicked", "task", name, "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until in-flight tasks finish; used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
