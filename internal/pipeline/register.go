package pipeline

import (
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline/internal/lock"
	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/counters"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/critical"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/datesanity"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/indexing"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/notify"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/persist"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/postprocess"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/preprocess"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/projectconfig"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/regression"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/stacking"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/stats"
	"github.com/faultlinehq/faultline/internal/pipeline/stages/truncate"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
)

// Dependencies carries everything the default stage set needs.
type Dependencies struct {
	Logger    *slog.Logger
	Projects  repository.ProjectRepository
	Orgs      repository.OrganizationRepository
	Events    repository.EventRepository
	Stacks    repository.StackRepository
	Webhooks  repository.WebhookRepository
	Locks     lock.Provider
	Publisher messaging.Publisher
	Queue     *queue.Queue
	Metrics   metrics.Client
	Processor plugins.EventProcessor
	Formatter plugins.FormattingManager

	// RetentionDays floors the stale-event cutoff.
	RetentionDays int
	// MaxFieldLength caps event Message/Source.
	MaxFieldLength int
	// StackLockHold and StackLockAcquire tune the stack-creation lock.
	StackLockHold    time.Duration
	StackLockAcquire time.Duration
}

// DefaultStages builds the standard ordered stage set. Registration is
// explicit; New sorts by priority.
func DefaultStages(d Dependencies) []core.Action {
	return []core.Action{
		datesanity.New(d.Logger, datesanity.WithDefaultRetentionDays(d.RetentionDays)),
		preprocess.New(d.Processor),
		truncate.New(truncate.WithMaxFieldLength(d.MaxFieldLength)),
		stacking.New(d.Logger, d.Stacks, d.Locks, d.Formatter, d.Publisher,
			stacking.WithLockTimings(d.StackLockHold, d.StackLockAcquire)),
		critical.New(),
		regression.New(d.Logger, d.Stacks),
		indexing.New(),
		persist.New(d.Events),
		projectconfig.New(d.Queue),
		stats.New(d.Logger, d.Stacks),
		notify.New(d.Logger, d.Queue, d.Webhooks),
		counters.New(d.Metrics),
		postprocess.New(d.Processor),
	}
}

// NewDefault wires the default stage set into a pipeline.
func NewDefault(d Dependencies) *EventPipeline {
	return New(d.Logger, d.Projects, d.Orgs, d.Metrics, DefaultStages(d))
}
