package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repository"
	"golang.org/x/sync/errgroup"
)

// retryBackoffBase scales the retry delay by attempt count.
const retryBackoffBase = 30 * time.Second

// HandlerFunc executes one claimed work item.
type HandlerFunc func(ctx context.Context, item *models.WorkItem) error

// Worker polls the work queue and dispatches claimed items to registered
// handlers. Multiple workers may run against the same database; SKIP LOCKED
// claiming keeps them from colliding.
type Worker struct {
	repo         repository.WorkItemRepository
	log          *slog.Logger
	handlers     map[models.WorkItemType]HandlerFunc
	concurrency  int
	pollInterval time.Duration
	workerID     string
}

// NewWorker creates a worker pool with the given concurrency.
func NewWorker(repo repository.WorkItemRepository, log *slog.Logger, concurrency int, pollInterval time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	host, _ := os.Hostname()
	return &Worker{
		repo:         repo,
		log:          log.With("component", "queue.worker"),
		handlers:     make(map[models.WorkItemType]HandlerFunc),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		workerID:     fmt.Sprintf("%s-%s", host, models.NewULID()),
	}
}

// Register installs the handler for a work item type. Later registrations
// replace earlier ones.
func (w *Worker) Register(itemType models.WorkItemType, fn HandlerFunc) {
	w.handlers[itemType] = fn
}

// Run starts the worker goroutines and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("starting queue workers", "concurrency", w.concurrency, "poll_interval", w.pollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		slot := i
		g.Go(func() error {
			return w.loop(ctx, fmt.Sprintf("%s-%d", w.workerID, slot))
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, id string) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// Drain available items before sleeping again.
		for {
			item, err := w.repo.Acquire(ctx, id)
			if err != nil {
				w.log.Error("acquiring work item", "error", err)
				break
			}
			if item == nil {
				break
			}
			w.process(ctx, item)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process runs one item and records the outcome.
func (w *Worker) process(ctx context.Context, item *models.WorkItem) {
	log := w.log.With("item_id", item.ID, "type", item.Type, "attempt", item.AttemptCount)

	handler, ok := w.handlers[item.Type]
	if !ok {
		log.Error("no handler registered for work item type")
		if err := w.repo.Fail(ctx, item.ID, fmt.Errorf("no handler for type %q", item.Type), w.backoff(item)); err != nil {
			log.Error("recording work item failure", "error", err)
		}
		return
	}

	start := time.Now()
	err := w.runHandler(ctx, handler, item)
	if err != nil {
		log.Warn("work item failed", "error", err, "duration", time.Since(start))
		if failErr := w.repo.Fail(ctx, item.ID, err, w.backoff(item)); failErr != nil {
			log.Error("recording work item failure", "error", failErr)
		}
		return
	}

	log.Debug("work item completed", "duration", time.Since(start))
	if err := w.repo.Complete(ctx, item.ID); err != nil {
		log.Error("completing work item", "error", err)
	}
}

// runHandler isolates handler panics so one bad item cannot kill the worker.
func (w *Worker) runHandler(ctx context.Context, handler HandlerFunc, item *models.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, item)
}

func (w *Worker) backoff(item *models.WorkItem) time.Duration {
	attempt := item.AttemptCount
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * retryBackoffBase
}
