package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/calsync/internal/model"
	"github.com/robfig/cron/v3"
)

// Syncer is the part of Service the scheduler drives.
type Syncer interface {
	TrySyncAll(ctx context.Context) ([]*model.SyncResult, bool, error)
}

// Scheduler runs SyncAll on a cron schedule.
type Scheduler struct {
	mu     sync.Mutex
	syncer Syncer
	spec   string
	logger *slog.Logger
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler validates spec (standard five-field cron syntax) and returns
// a stopped scheduler.
func NewScheduler(syncer Syncer, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{syncer: syncer, spec: spec, logger: logger}, nil
}

// Start begins running syncs until ctx is cancelled or Stop is called.
// Cancelling ctx only prevents new runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("sync scheduler started", "schedule", s.spec)
	return nil
}

// Stop halts the schedule and waits for a running sync to finish. A sync that
// has started is never cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	results, ran, err := s.syncer.TrySyncAll(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}
	if !ran {
		s.logger.Debug("scheduled sync skipped, sync already running")
		return
	}

	failed := 0
	for _, r := range results {
		if r.Err != "" {
			failed++
		}
	}
	s.logger.Info("scheduled sync finished", "calendars", len(results), "failed", failed)
}
