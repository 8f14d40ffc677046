package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// SettingsHandler serves the runtime settings singleton.
type SettingsHandler struct {
	settings repository.SettingsRepository
	engine   Engine
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(settings repository.SettingsRepository, eng Engine) *SettingsHandler {
	return &SettingsHandler{settings: settings, engine: eng}
}

// Register registers settings operations with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Replaces the full settings row. Worker concurrency changes apply to the running engine; other changes apply to jobs claimed after the update.",
		Tags:        []string{"Settings"},
	}, h.Update)
}

// SettingsOutput wraps the settings row.
type SettingsOutput struct {
	Body *models.Settings
}

// Get returns the current settings.
func (h *SettingsHandler) Get(ctx context.Context, _ *struct{}) (*SettingsOutput, error) {
	settings, err := h.settings.Get(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading settings", err)
	}
	return &SettingsOutput{Body: settings}, nil
}

// UpdateSettingsInput is the full replacement settings row.
type UpdateSettingsInput struct {
	Body models.Settings
}

// Update validates and saves the settings row, then resizes the worker
// pool to match.
func (h *SettingsHandler) Update(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	settings := input.Body
	if err := h.settings.Update(ctx, &settings); err != nil {
		return nil, mapSaveError(err, "settings")
	}
	if err := h.engine.SetConcurrency(settings.ConcurrentJobs); err != nil {
		return nil, huma.Error500InternalServerError("resizing worker pool", err)
	}
	return &SettingsOutput{Body: &settings}, nil
}
