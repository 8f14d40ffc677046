// Package handlers implements the versioned JSON API.
//
// Each handler is a small struct holding the services it needs; Register
// wires its operations into the shared huma API. Handlers translate the
// model error taxonomy into RFC7807 problems: validation errors map to
// 400, unknown ids to 404, invalid state transitions to 409 and store
// failures to 500.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/engine"
	"github.com/alchemist-av/alchemist/internal/models"
)

// Engine is the control surface the API needs from the transcode engine.
// *engine.Engine satisfies it.
type Engine interface {
	Status(ctx context.Context) (*engine.Status, error)
	Pause()
	Resume()
	SetConcurrency(n int) error
	Cancel(ctx context.Context, id int64) error
	ScanAndEnqueue(ctx context.Context, roots []string, trigger string) (int, error)
	WatchPath(root string) error
}

// NotificationTester delivers a test message to a single target.
type NotificationTester interface {
	Test(ctx context.Context, target *models.NotificationTarget) error
}

// mapJobError translates job operation errors into HTTP problems.
func mapJobError(err error, id int64) error {
	var verr models.ErrValidation
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		return huma.Error404NotFound(fmt.Sprintf("job %d not found", id))
	case errors.Is(err, models.ErrInvalidState):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &verr):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("job operation failed", err)
	}
}

// mapSaveError surfaces model validation as 400 and anything else as 500.
func mapSaveError(err error, what string) error {
	var verr models.ErrValidation
	if errors.As(err, &verr) {
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError("saving "+what, err)
}
