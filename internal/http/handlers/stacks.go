package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Masterminds/semver/v3"
	"github.com/danielgtaylor/huma/v2"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repository"
)

// StacksHandler handles stack read and lifecycle endpoints.
type StacksHandler struct {
	log    *slog.Logger
	stacks repository.StackRepository
	events repository.EventRepository
}

// NewStacksHandler creates a new stacks handler.
func NewStacksHandler(log *slog.Logger, stacks repository.StackRepository, events repository.EventRepository) *StacksHandler {
	return &StacksHandler{
		log:    log.With("component", "stacks-handler"),
		stacks: stacks,
		events: events,
	}
}

// GetStackInput is the input for the stack retrieval endpoint.
type GetStackInput struct {
	ID string `path:"id" doc:"Stack ULID"`
}

// GetStackOutput is the output for the stack retrieval endpoint.
type GetStackOutput struct {
	Body models.Stack
}

// MarkStackFixedInput is the input for the mark-fixed endpoint.
type MarkStackFixedInput struct {
	ID   string `path:"id" doc:"Stack ULID"`
	Body struct {
		Version string `json:"version,omitempty" doc:"Semantic version the fix shipped in"`
	}
}

// MarkStackFixedOutput is the output for the mark-fixed endpoint.
type MarkStackFixedOutput struct {
	Body models.Stack
}

// ListStackEventsInput is the input for the recent events endpoint.
type ListStackEventsInput struct {
	ID    string `path:"id" doc:"Stack ULID"`
	Limit int    `query:"limit" default:"25" minimum:"1" maximum:"100" doc:"Maximum number of events to return"`
}

// ListStackEventsOutput is the output for the recent events endpoint.
type ListStackEventsOutput struct {
	Body []*models.Event
}

// Register registers the stack routes with the API.
func (h *StacksHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStack",
		Method:      http.MethodGet,
		Path:        "/api/v2/stacks/{id}",
		Summary:     "Get stack",
		Description: "Returns a stack with its occurrence statistics.",
		Tags:        []string{"Stacks"},
	}, h.GetStack)

	huma.Register(api, huma.Operation{
		OperationID: "markStackFixed",
		Method:      http.MethodPost,
		Path:        "/api/v2/stacks/{id}/mark-fixed",
		Summary:     "Mark stack fixed",
		Description: "Marks a stack as fixed, optionally recording the version the fix shipped in. Later occurrences reporting that version or newer reopen the stack as regressed.",
		Tags:        []string{"Stacks"},
	}, h.MarkFixed)

	huma.Register(api, huma.Operation{
		OperationID: "listStackEvents",
		Method:      http.MethodGet,
		Path:        "/api/v2/stacks/{id}/events",
		Summary:     "List stack events",
		Description: "Returns the most recent events deduplicated into this stack.",
		Tags:        []string{"Stacks"},
	}, h.ListEvents)
}

func (h *StacksHandler) loadStack(ctx context.Context, rawID string) (*models.Stack, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid stack id", err)
	}
	stack, err := h.stacks.GetByID(ctx, id)
	if err != nil {
		h.log.Error("loading stack", "stack_id", rawID, "error", err)
		return nil, huma.Error500InternalServerError("loading stack failed")
	}
	if stack == nil {
		return nil, huma.Error404NotFound("stack not found")
	}
	return stack, nil
}

// GetStack returns a stack by id.
func (h *StacksHandler) GetStack(ctx context.Context, input *GetStackInput) (*GetStackOutput, error) {
	stack, err := h.loadStack(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetStackOutput{Body: *stack}, nil
}

// MarkFixed transitions a stack to the fixed state.
func (h *StacksHandler) MarkFixed(ctx context.Context, input *MarkStackFixedInput) (*MarkStackFixedOutput, error) {
	stack, err := h.loadStack(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if stack.IsDiscarded() {
		return nil, huma.Error409Conflict("discarded stacks cannot be marked fixed")
	}

	version := input.Body.Version
	if version != "" {
		parsed, err := semver.NewVersion(version)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("invalid semantic version %q", version), err)
		}
		version = parsed.String()
	}

	now := models.Now()
	stack.Status = models.StackStatusFixed
	stack.DateFixed = &now
	stack.FixedInVersion = version

	if err := h.stacks.SaveBatch(ctx, []*models.Stack{stack}); err != nil {
		h.log.Error("marking stack fixed", "stack_id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("saving stack failed")
	}
	return &MarkStackFixedOutput{Body: *stack}, nil
}

// ListEvents returns the most recent events for a stack.
func (h *StacksHandler) ListEvents(ctx context.Context, input *ListStackEventsInput) (*ListStackEventsOutput, error) {
	stack, err := h.loadStack(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	events, err := h.events.GetByStackID(ctx, stack.ID, input.Limit)
	if err != nil {
		h.log.Error("listing stack events", "stack_id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("listing events failed")
	}
	if events == nil {
		events = []*models.Event{}
	}
	return &ListStackEventsOutput{Body: events}, nil
}
