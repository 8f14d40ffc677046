package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/engine"
)

// EngineHandler serves engine status and the manual pause gate.
type EngineHandler struct {
	engine Engine
}

// NewEngineHandler creates an engine handler.
func NewEngineHandler(eng Engine) *EngineHandler {
	return &EngineHandler{engine: eng}
}

// Register registers engine operations with the API.
func (h *EngineHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-engine-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/engine",
		Summary:     "Get engine status",
		Tags:        []string{"Engine"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "pause-engine",
		Method:      http.MethodPost,
		Path:        "/api/v1/engine/pause",
		Summary:     "Pause engine",
		Description: "Stops claiming new jobs. Jobs already running finish normally.",
		Tags:        []string{"Engine"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "resume-engine",
		Method:      http.MethodPost,
		Path:        "/api/v1/engine/resume",
		Summary:     "Resume engine",
		Tags:        []string{"Engine"},
	}, h.Resume)
}

// EngineStatusOutput wraps an engine status snapshot.
type EngineStatusOutput struct {
	Body *engine.Status
}

// Status returns a point-in-time engine snapshot.
func (h *EngineHandler) Status(ctx context.Context, _ *struct{}) (*EngineStatusOutput, error) {
	status, err := h.engine.Status(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("reading engine status", err)
	}
	return &EngineStatusOutput{Body: status}, nil
}

// Pause stops the engine claiming new jobs.
func (h *EngineHandler) Pause(ctx context.Context, _ *struct{}) (*EngineStatusOutput, error) {
	h.engine.Pause()
	return h.Status(ctx, nil)
}

// Resume lets the engine claim jobs again, subject to the schedule gate.
func (h *EngineHandler) Resume(ctx context.Context, _ *struct{}) (*EngineStatusOutput, error) {
	h.engine.Resume()
	return h.Status(ctx, nil)
}
