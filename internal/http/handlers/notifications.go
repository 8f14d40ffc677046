package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// NotificationsHandler serves notification target CRUD and test delivery.
type NotificationsHandler struct {
	notifications repository.NotificationRepository
	tester        NotificationTester
}

// NewNotificationsHandler creates a notifications handler.
func NewNotificationsHandler(notifications repository.NotificationRepository, tester NotificationTester) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, tester: tester}
}

// Register registers notification operations with the API.
func (h *NotificationsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications",
		Summary:     "List notification targets",
		Tags:        []string{"Notifications"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "create-notification",
		Method:        http.MethodPost,
		Path:          "/api/v1/notifications",
		Summary:       "Create notification target",
		Tags:          []string{"Notifications"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "get-notification",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications/{id}",
		Summary:     "Get notification target",
		Tags:        []string{"Notifications"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-notification",
		Method:      http.MethodPut,
		Path:        "/api/v1/notifications/{id}",
		Summary:     "Update notification target",
		Tags:        []string{"Notifications"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-notification",
		Method:        http.MethodDelete,
		Path:          "/api/v1/notifications/{id}",
		Summary:       "Delete notification target",
		Tags:          []string{"Notifications"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "test-notification",
		Method:      http.MethodPost,
		Path:        "/api/v1/notifications/{id}/test",
		Summary:     "Send test notification",
		Description: "Delivers a test message to the target. A delivery failure maps to 502 so endpoint problems are visible before a real job outcome is lost.",
		Tags:        []string{"Notifications"},
	}, h.Test)
}

// NotificationBody carries the mutable fields of a notification target.
type NotificationBody struct {
	Kind       models.NotificationKind `json:"kind" enum:"webhook,discord"`
	URL        string                  `json:"url" doc:"Absolute http(s) endpoint"`
	OnComplete bool                    `json:"on_complete" default:"true"`
	OnFailure  bool                    `json:"on_failure" default:"true"`
	Enabled    bool                    `json:"enabled" default:"true"`
}

// NotificationListOutput is the notification listing response.
type NotificationListOutput struct {
	Body struct {
		Notifications []*models.NotificationTarget `json:"notifications"`
	}
}

// NotificationOutput wraps a single notification target.
type NotificationOutput struct {
	Body *models.NotificationTarget
}

// NotificationIDInput identifies a notification target.
type NotificationIDInput struct {
	ID int64 `path:"id" doc:"Notification target ID"`
}

// List returns all notification targets.
func (h *NotificationsHandler) List(ctx context.Context, _ *struct{}) (*NotificationListOutput, error) {
	targets, err := h.notifications.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing notifications", err)
	}
	resp := &NotificationListOutput{}
	resp.Body.Notifications = targets
	return resp, nil
}

// CreateNotificationInput is the creation payload.
type CreateNotificationInput struct {
	Body NotificationBody
}

// Create adds a notification target.
func (h *NotificationsHandler) Create(ctx context.Context, input *CreateNotificationInput) (*NotificationOutput, error) {
	target := &models.NotificationTarget{
		Kind:       input.Body.Kind,
		URL:        input.Body.URL,
		OnComplete: input.Body.OnComplete,
		OnFailure:  input.Body.OnFailure,
		Enabled:    input.Body.Enabled,
	}
	if err := h.notifications.Create(ctx, target); err != nil {
		return nil, mapSaveError(err, "notification")
	}
	return &NotificationOutput{Body: target}, nil
}

// Get returns one notification target.
func (h *NotificationsHandler) Get(ctx context.Context, input *NotificationIDInput) (*NotificationOutput, error) {
	target, err := h.notifications.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading notification", err)
	}
	if target == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("notification %d not found", input.ID))
	}
	return &NotificationOutput{Body: target}, nil
}

// UpdateNotificationInput is the update payload.
type UpdateNotificationInput struct {
	ID   int64 `path:"id" doc:"Notification target ID"`
	Body NotificationBody
}

// Update replaces the mutable fields of a notification target.
func (h *NotificationsHandler) Update(ctx context.Context, input *UpdateNotificationInput) (*NotificationOutput, error) {
	target, err := h.notifications.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading notification", err)
	}
	if target == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("notification %d not found", input.ID))
	}

	target.Kind = input.Body.Kind
	target.URL = input.Body.URL
	target.OnComplete = input.Body.OnComplete
	target.OnFailure = input.Body.OnFailure
	target.Enabled = input.Body.Enabled
	if err := h.notifications.Update(ctx, target); err != nil {
		return nil, mapSaveError(err, "notification")
	}
	return &NotificationOutput{Body: target}, nil
}

// DeleteNotificationOutput is an empty 204 response.
type DeleteNotificationOutput struct{}

// Delete removes a notification target.
func (h *NotificationsHandler) Delete(ctx context.Context, input *NotificationIDInput) (*DeleteNotificationOutput, error) {
	target, err := h.notifications.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading notification", err)
	}
	if target == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("notification %d not found", input.ID))
	}
	if err := h.notifications.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("deleting notification", err)
	}
	return &DeleteNotificationOutput{}, nil
}

// TestNotificationOutput acknowledges a delivered test message.
type TestNotificationOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Test sends a test message to the target.
func (h *NotificationsHandler) Test(ctx context.Context, input *NotificationIDInput) (*TestNotificationOutput, error) {
	target, err := h.notifications.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading notification", err)
	}
	if target == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("notification %d not found", input.ID))
	}
	if err := h.tester.Test(ctx, target); err != nil {
		return nil, huma.Error502BadGateway("test delivery failed", err)
	}

	resp := &TestNotificationOutput{}
	resp.Body.Message = "test notification delivered"
	return resp, nil
}
