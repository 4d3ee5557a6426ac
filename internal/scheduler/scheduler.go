package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/engine"
)

// Reconciler runs a full reconciliation
type Reconciler interface {
	Reconcile(ctx context.Context) (*engine.ReconciliationReport, error)
}

// Scheduler runs the periodic reconciliation job
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	logger     *logrus.Logger

	mu      sync.Mutex
	last    *engine.ReconciliationReport
	started bool
}

// NewScheduler creates a scheduler running reconciler on schedule, a cron
// expression or descriptor such as "@every 1h".
func NewScheduler(reconciler Reconciler, schedule string, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    timeout,
		logger:     logger,
	}
}

// Start registers the job and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.started = true

	s.logger.WithField("schedule", s.schedule).Info("Reconciliation scheduler started")
	return nil
}

// Stop stops scheduling and waits for a running job to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Reconciliation job still running at shutdown")
	}
	s.logger.Info("Reconciliation scheduler stopped")
}

// RunOnce runs one reconciliation and keeps its report
func (s *Scheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled reconciliation failed")
		return
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
}

// LastReport returns the report of the last successful run, or nil
func (s *Scheduler) LastReport() *engine.ReconciliationReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
