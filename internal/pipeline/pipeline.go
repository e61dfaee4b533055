// Package pipeline orchestrates the ordered event processing stages. One
// Run handles one batch of events for a single project; stages mutate the
// per-event contexts in place and contain their own failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
)

// Batch precondition failures. These abort the whole batch before any stage
// runs.
var (
	// ErrEmptyBatch is returned for a batch with no events.
	ErrEmptyBatch = errors.New("event batch is empty")
	// ErrEventIDPreset is returned when a submitted event already carries a
	// persisted id.
	ErrEventIDPreset = errors.New("submitted events must not carry an id")
	// ErrMixedProjects is returned when a batch spans project ids.
	ErrMixedProjects = errors.New("event batch spans multiple projects")
)

// EventPipeline runs batches of events through the registered stages.
type EventPipeline struct {
	log      *slog.Logger
	projects repository.ProjectRepository
	orgs     repository.OrganizationRepository
	metrics  metrics.Client
	// stages is sorted ascending by priority once at construction; stage
	// values are stateless and reused across runs.
	stages []core.Action
}

// New creates a pipeline over the given stages. The stage list is sorted by
// priority and reused for every run.
func New(log *slog.Logger, projects repository.ProjectRepository, orgs repository.OrganizationRepository, m metrics.Client, stages []core.Action) *EventPipeline {
	sorted := make([]core.Action, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &EventPipeline{
		log:      log.With("component", "pipeline"),
		projects: projects,
		orgs:     orgs,
		metrics:  m,
		stages:   sorted,
	}
}

// Run processes one batch of events belonging to a single project. The
// returned contexts carry the per-event outcome flags; callers inspect them
// and decide redelivery. Only precondition and resolution failures are
// returned as errors.
func (p *EventPipeline) Run(ctx context.Context, events []*models.Event) ([]*core.EventContext, error) {
	stop := p.metrics.Timer(metrics.TimerPipelineRun)
	defer stop()
	start := time.Now()

	if err := checkPreconditions(events); err != nil {
		return nil, err
	}
	projectID := events[0].ProjectID

	project, err := p.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	if project == nil {
		return nil, models.ErrProjectNotFound
	}

	org, err := p.orgs.GetByID(ctx, project.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("resolving organization: %w", err)
	}
	if org == nil {
		return nil, models.ErrOrganizationNotFound
	}

	contexts := p.buildContexts(events, project, org)

	if org.IsSuspended {
		p.log.Info("discarding batch for suspended organization",
			"organization_id", org.ID, "events", len(contexts))
		for _, ectx := range contexts {
			ectx.MarkDiscarded()
		}
		p.metrics.Counter(metrics.CounterEventsDiscarded, int64(len(contexts)))
		return contexts, nil
	}

	// Every stage runs even when the whole batch is already cancelled or
	// errored; stages skip unprocessable contexts themselves, and the
	// accounting stages still need to see discarded batches.
	for _, stage := range p.stages {
		p.runStage(ctx, stage, contexts)
	}

	var cancelled, errored int
	for _, ectx := range contexts {
		if ectx.IsCancelled {
			cancelled++
		}
		if ectx.HasError {
			errored++
		}
	}
	p.log.Info("pipeline run complete",
		"project_id", projectID,
		"submitted", len(contexts),
		"cancelled", cancelled,
		"errored", errored,
		"duration", time.Since(start))

	return contexts, nil
}

// RunSingle processes one event.
func (p *EventPipeline) RunSingle(ctx context.Context, event *models.Event) (*core.EventContext, error) {
	contexts, err := p.Run(ctx, []*models.Event{event})
	if err != nil {
		return nil, err
	}
	return contexts[0], nil
}

// runStage executes one stage with panic containment; a panicking stage is
// treated like a failed batch operation.
func (p *EventPipeline) runStage(ctx context.Context, stage core.Action, contexts []*core.EventContext) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage panicked: %v", r)
			}
		}()
		return stage.ProcessBatch(ctx, contexts)
	}()
	if err != nil {
		core.HandleBatchError(p.log, stage, contexts, err)
	}
	p.log.Debug("stage complete",
		"stage", stage.Name(), "priority", stage.Priority(), "duration", time.Since(start))
}

// buildContexts stamps every event with its resolved project/organization and
// seeds the property bag, organization settings first, project overriding.
func (p *EventPipeline) buildContexts(events []*models.Event, project *models.Project, org *models.Organization) []*core.EventContext {
	contexts := make([]*core.EventContext, 0, len(events))
	for _, event := range events {
		event.OrganizationID = org.ID
		ectx := core.NewEventContext(event)
		ectx.Project = project
		ectx.Organization = org
		for k, v := range org.Settings {
			ectx.SetProperty(k, v)
		}
		for k, v := range project.Settings {
			ectx.SetProperty(k, v)
		}
		contexts = append(contexts, ectx)
	}
	return contexts
}

func checkPreconditions(events []*models.Event) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}
	projectID := events[0].ProjectID
	for _, event := range events {
		if !event.ID.IsZero() {
			return ErrEventIDPreset
		}
		if event.ProjectID != projectID {
			return ErrMixedProjects
		}
	}
	return nil
}
