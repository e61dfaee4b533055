// Package scheduler runs cron-driven maintenance: the per-organization event
// retention sweep and cleanup of finished work queue items.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron entries for background maintenance.
type Scheduler struct {
	log       *slog.Logger
	cron      *cron.Cron
	orgs      repository.OrganizationRepository
	workItems repository.WorkItemRepository
	queue     *queue.Queue

	retentionSweepSpec string
	queueCleanupSpec   string
	queueCleanupAge    time.Duration
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithRetentionSweepSpec overrides the retention sweep cron expression.
func WithRetentionSweepSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.retentionSweepSpec = spec
		}
	}
}

// WithQueueCleanupSpec overrides the queue cleanup cron expression.
func WithQueueCleanupSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.queueCleanupSpec = spec
		}
	}
}

// WithQueueCleanupAge overrides how long finished work items are kept.
func WithQueueCleanupAge(age time.Duration) Option {
	return func(s *Scheduler) {
		if age > 0 {
			s.queueCleanupAge = age
		}
	}
}

// New creates the maintenance scheduler. Cron expressions use six fields
// with seconds, matching the configuration defaults.
func New(log *slog.Logger, orgs repository.OrganizationRepository, workItems repository.WorkItemRepository, q *queue.Queue, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:                log.With("component", "scheduler"),
		cron:               cron.New(cron.WithSeconds()),
		orgs:               orgs,
		workItems:          workItems,
		queue:              q,
		retentionSweepSpec: "0 30 3 * * *",
		queueCleanupSpec:   "0 0 4 * * *",
		queueCleanupAge:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.retentionSweepSpec, func() {
		if err := s.RunRetentionSweep(context.Background()); err != nil {
			s.log.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("registering retention sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(s.queueCleanupSpec, func() {
		if err := s.RunQueueCleanup(context.Background()); err != nil {
			s.log.Error("queue cleanup failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("registering queue cleanup: %w", err)
	}

	s.cron.Start()
	s.log.Info("maintenance scheduler started",
		"retention_sweep", s.retentionSweepSpec, "queue_cleanup", s.queueCleanupSpec)
	return nil
}

// Stop stops the scheduler and waits for running entries to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunRetentionSweep enqueues one deduplicated retention sweep work item per
// organization; the queue workers do the actual deletion.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) error {
	orgs, err := s.orgs.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing organizations for retention sweep: %w", err)
	}

	var enqueued int
	for _, org := range orgs {
		if err := s.queue.EnqueueRetentionSweep(ctx, org.ID); err != nil {
			s.log.Error("enqueueing retention sweep",
				"organization_id", org.ID, "error", err)
			continue
		}
		enqueued++
	}
	s.log.Info("retention sweep scheduled", "organizations", enqueued)
	return nil
}

// RunQueueCleanup deletes finished work items older than the cleanup age.
func (s *Scheduler) RunQueueCleanup(ctx context.Context) error {
	before := time.Now().Add(-s.queueCleanupAge)
	deleted, err := s.workItems.DeleteFinishedBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("cleaning finished work items: %w", err)
	}
	if deleted > 0 {
		s.log.Info("cleaned finished work items", "deleted", deleted, "before", before)
	}
	return nil
}
