package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// SchedulesHandler serves schedule window CRUD.
type SchedulesHandler struct {
	schedules repository.ScheduleRepository
}

// NewSchedulesHandler creates a schedules handler.
func NewSchedulesHandler(schedules repository.ScheduleRepository) *SchedulesHandler {
	return &SchedulesHandler{schedules: schedules}
}

// Register registers schedule operations with the API.
func (h *SchedulesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-schedules",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules",
		Summary:     "List schedule windows",
		Description: "With no enabled windows the engine claims jobs around the clock; otherwise claiming is limited to the enabled windows.",
		Tags:        []string{"Schedules"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "create-schedule",
		Method:        http.MethodPost,
		Path:          "/api/v1/schedules",
		Summary:       "Create schedule window",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Get schedule window",
		Tags:        []string{"Schedules"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-schedule",
		Method:      http.MethodPut,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Update schedule window",
		Tags:        []string{"Schedules"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-schedule",
		Method:        http.MethodDelete,
		Path:          "/api/v1/schedules/{id}",
		Summary:       "Delete schedule window",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)
}

// ScheduleBody carries the mutable fields of a schedule window.
type ScheduleBody struct {
	Enabled    bool   `json:"enabled" default:"true"`
	StartTime  string `json:"start_time" doc:"Local wall clock HH:MM"`
	EndTime    string `json:"end_time" doc:"Local wall clock HH:MM; before start_time wraps past midnight"`
	DaysOfWeek string `json:"days_of_week,omitempty" doc:"CSV of weekday numbers, Sunday=0; empty means every day"`
}

// ScheduleListOutput is the schedule listing response.
type ScheduleListOutput struct {
	Body struct {
		Schedules []*models.ScheduleWindow `json:"schedules"`
	}
}

// ScheduleOutput wraps a single schedule window.
type ScheduleOutput struct {
	Body *models.ScheduleWindow
}

// ScheduleIDInput identifies a schedule window.
type ScheduleIDInput struct {
	ID int64 `path:"id" doc:"Schedule window ID"`
}

// List returns all schedule windows.
func (h *SchedulesHandler) List(ctx context.Context, _ *struct{}) (*ScheduleListOutput, error) {
	windows, err := h.schedules.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing schedules", err)
	}
	resp := &ScheduleListOutput{}
	resp.Body.Schedules = windows
	return resp, nil
}

// CreateScheduleInput is the creation payload.
type CreateScheduleInput struct {
	Body ScheduleBody
}

// Create adds a schedule window.
func (h *SchedulesHandler) Create(ctx context.Context, input *CreateScheduleInput) (*ScheduleOutput, error) {
	window := &models.ScheduleWindow{
		Enabled:    input.Body.Enabled,
		StartTime:  input.Body.StartTime,
		EndTime:    input.Body.EndTime,
		DaysOfWeek: input.Body.DaysOfWeek,
	}
	if err := h.schedules.Create(ctx, window); err != nil {
		return nil, mapSaveError(err, "schedule")
	}
	return &ScheduleOutput{Body: window}, nil
}

// Get returns one schedule window.
func (h *SchedulesHandler) Get(ctx context.Context, input *ScheduleIDInput) (*ScheduleOutput, error) {
	window, err := h.schedules.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading schedule", err)
	}
	if window == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("schedule %d not found", input.ID))
	}
	return &ScheduleOutput{Body: window}, nil
}

// UpdateScheduleInput is the update payload.
type UpdateScheduleInput struct {
	ID   int64 `path:"id" doc:"Schedule window ID"`
	Body ScheduleBody
}

// Update replaces the mutable fields of a schedule window.
func (h *SchedulesHandler) Update(ctx context.Context, input *UpdateScheduleInput) (*ScheduleOutput, error) {
	window, err := h.schedules.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading schedule", err)
	}
	if window == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("schedule %d not found", input.ID))
	}

	window.Enabled = input.Body.Enabled
	window.StartTime = input.Body.StartTime
	window.EndTime = input.Body.EndTime
	window.DaysOfWeek = input.Body.DaysOfWeek
	if err := h.schedules.Update(ctx, window); err != nil {
		return nil, mapSaveError(err, "schedule")
	}
	return &ScheduleOutput{Body: window}, nil
}

// DeleteScheduleOutput is an empty 204 response.
type DeleteScheduleOutput struct{}

// Delete removes a schedule window.
func (h *SchedulesHandler) Delete(ctx context.Context, input *ScheduleIDInput) (*DeleteScheduleOutput, error) {
	window, err := h.schedules.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading schedule", err)
	}
	if window == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("schedule %d not found", input.ID))
	}
	if err := h.schedules.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("deleting schedule", err)
	}
	return &DeleteScheduleOutput{}, nil
}
