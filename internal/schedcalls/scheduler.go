package schedcalls

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

const defaultBatchSize = 50

// Scheduler periodically re-checks for due scheduled calls and dispatches
// them. Each tick drains at most a batch; backlog carries to the next tick.
type Scheduler struct {
	svc    *Service
	cron   *cron.Cron
	every  string
	batch  int
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewScheduler builds a scheduler ticking at the given cron @every spec
// (e.g. "@every 1m").
func NewScheduler(svc *Service, every string, logger *slog.Logger) *Scheduler {
	if every == "" {
		every = "@every 1m"
	}
	return &Scheduler{
		svc:    svc,
		cron:   cron.New(),
		every:  every,
		batch:  defaultBatchSize,
		logger: logger,
	}
}

// SetBatch overrides the per-tick drain size. Call before Start.
func (s *Scheduler) SetBatch(n int) {
	if n > 0 {
		s.batch = n
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("schedcalls: scheduler already started")
	}

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if _, err := s.cron.AddFunc(s.every, func() { s.tick(tickCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedcalls: bad schedule %q: %w", s.every, err)
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduled-call re-check loop started", "every", s.every)
	return nil
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false
	s.logger.Info("scheduled-call re-check loop stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.svc.DispatchDue(ctx, s.batch)
	if err != nil {
		s.logger.Error("due-call sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("due calls dispatched", "count", n)
	}
}
