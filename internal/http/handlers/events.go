// Package handlers provides HTTP API handlers for faultline.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline"
)

// DefaultMaxBatchSize caps the number of events accepted per submission.
const DefaultMaxBatchSize = 500

// EventsHandler handles event ingestion endpoints.
type EventsHandler struct {
	log          *slog.Logger
	pipeline     *pipeline.EventPipeline
	maxBatchSize int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(log *slog.Logger, p *pipeline.EventPipeline) *EventsHandler {
	return &EventsHandler{
		log:          log.With("component", "events-handler"),
		pipeline:     p,
		maxBatchSize: DefaultMaxBatchSize,
	}
}

// WithMaxBatchSize overrides the per-request event cap.
func (h *EventsHandler) WithMaxBatchSize(n int) *EventsHandler {
	if n > 0 {
		h.maxBatchSize = n
	}
	return h
}

// EventSubmission is one event as submitted by a client library.
type EventSubmission struct {
	Type        string            `json:"type" doc:"Event type (error, log, session, sessionend, usage)"`
	Source      string            `json:"source,omitempty" doc:"Origin of the event (logger name, controller)"`
	Message     string            `json:"message,omitempty" doc:"Human-readable event message"`
	Date        time.Time         `json:"date,omitempty" doc:"When the event occurred; defaults to submission time"`
	Tags        []string          `json:"tags,omitempty" doc:"Free-form labels"`
	Data        map[string]string `json:"data,omitempty" doc:"Arbitrary key/value bag"`
	ReferenceID string            `json:"reference_id,omitempty" doc:"Client-supplied reference key"`
	Geo         string            `json:"geo,omitempty" doc:"Location hint"`
	Value       float64           `json:"value,omitempty" doc:"Arbitrary numeric value"`
}

// EventOutcome summarizes what the pipeline did with one submitted event.
type EventOutcome struct {
	EventID      string `json:"event_id,omitempty" doc:"Assigned event id when the event was persisted"`
	StackID      string `json:"stack_id,omitempty" doc:"Stack the event was deduplicated into"`
	Status       string `json:"status" enum:"processed,discarded,failed" doc:"Final disposition"`
	IsNew        bool   `json:"is_new,omitempty" doc:"True when this event created its stack"`
	IsRegression bool   `json:"is_regression,omitempty" doc:"True when this event reopened a fixed stack"`
	Error        string `json:"error,omitempty" doc:"Failure message when status is failed"`
}

// IngestEventsInput is the input for the event ingestion endpoint.
type IngestEventsInput struct {
	ProjectID string `path:"projectID" doc:"Project ULID"`
	Body      []EventSubmission
}

// IngestEventsResponse is the body returned for an accepted submission.
type IngestEventsResponse struct {
	Accepted  int            `json:"accepted" doc:"Number of events that were persisted"`
	Discarded int            `json:"discarded" doc:"Number of events deliberately dropped"`
	Failed    int            `json:"failed" doc:"Number of events that failed processing"`
	Results   []EventOutcome `json:"results" doc:"Per-event outcomes in submission order"`
}

// IngestEventsOutput is the output for the event ingestion endpoint.
type IngestEventsOutput struct {
	Body IngestEventsResponse
}

// Register registers the event routes with the API.
func (h *EventsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "ingestEvents",
		Method:        http.MethodPost,
		Path:          "/api/v2/projects/{projectID}/events",
		Summary:       "Submit events",
		Description:   "Accepts a batch of telemetry events and runs them through the processing pipeline.",
		Tags:          []string{"Events"},
		DefaultStatus: http.StatusAccepted,
	}, h.IngestEvents)
}

// IngestEvents runs a submitted batch through the pipeline and reports
// per-event outcomes. Individual event failures do not fail the request.
func (h *EventsHandler) IngestEvents(ctx context.Context, input *IngestEventsInput) (*IngestEventsOutput, error) {
	projectID, err := models.ParseULID(input.ProjectID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid project id", err)
	}
	if len(input.Body) == 0 {
		return nil, huma.Error400BadRequest("at least one event is required")
	}
	if len(input.Body) > h.maxBatchSize {
		return nil, huma.NewError(http.StatusRequestEntityTooLarge, "too many events in one submission")
	}

	events := make([]*models.Event, len(input.Body))
	for i, sub := range input.Body {
		date := sub.Date
		if date.IsZero() {
			date = time.Now().UTC()
		}
		events[i] = &models.Event{
			ProjectID:   projectID,
			Type:        sub.Type,
			Source:      sub.Source,
			Message:     sub.Message,
			Date:        date,
			Tags:        sub.Tags,
			Data:        models.DataMap(sub.Data),
			ReferenceID: sub.ReferenceID,
			Geo:         sub.Geo,
			Value:       sub.Value,
		}
	}

	contexts, err := h.pipeline.Run(ctx, events)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrProjectNotFound), errors.Is(err, models.ErrOrganizationNotFound):
			return nil, huma.Error404NotFound("project not found")
		case errors.Is(err, pipeline.ErrEmptyBatch), errors.Is(err, pipeline.ErrMixedProjects), errors.Is(err, pipeline.ErrEventIDPreset):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			h.log.Error("pipeline run failed", "project_id", projectID, "error", err)
			return nil, huma.Error500InternalServerError("event processing failed")
		}
	}

	resp := IngestEventsResponse{Results: make([]EventOutcome, len(contexts))}
	for i, ectx := range contexts {
		outcome := EventOutcome{
			IsNew:        ectx.IsNew,
			IsRegression: ectx.IsRegression,
		}
		switch {
		case ectx.HasError:
			outcome.Status = "failed"
			outcome.Error = ectx.ErrorMessage
			resp.Failed++
		case ectx.IsDiscarded, ectx.IsCancelled:
			outcome.Status = "discarded"
			resp.Discarded++
		default:
			outcome.Status = "processed"
			outcome.EventID = ectx.Event.ID.String()
			outcome.StackID = ectx.Event.StackID.String()
			resp.Accepted++
		}
		resp.Results[i] = outcome
	}

	return &IngestEventsOutput{Body: resp}, nil
}
