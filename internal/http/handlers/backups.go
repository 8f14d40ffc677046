package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/backup"
)

// BackupsHandler serves database snapshot operations.
type BackupsHandler struct {
	manager *backup.Manager
}

// NewBackupsHandler creates a backups handler.
func NewBackupsHandler(manager *backup.Manager) *BackupsHandler {
	return &BackupsHandler{manager: manager}
}

// Register registers backup operations with the API.
func (h *BackupsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-backup",
		Method:        http.MethodPost,
		Path:          "/api/v1/backups",
		Summary:       "Create backup",
		Description:   "Takes an online snapshot of the database and compresses it into the backup directory. Only available on the sqlite driver.",
		Tags:          []string{"Backups"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "list-backups",
		Method:      http.MethodGet,
		Path:        "/api/v1/backups",
		Summary:     "List backups",
		Tags:        []string{"Backups"},
	}, h.List)
}

// BackupOutput wraps a created snapshot.
type BackupOutput struct {
	Body *backup.Snapshot
}

// Create takes a database snapshot.
func (h *BackupsHandler) Create(ctx context.Context, _ *struct{}) (*BackupOutput, error) {
	snap, err := h.manager.Create(ctx)
	if err != nil {
		if errors.Is(err, backup.ErrNotSQLite) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("creating backup", err)
	}
	return &BackupOutput{Body: snap}, nil
}

// BackupListOutput is the snapshot listing response.
type BackupListOutput struct {
	Body struct {
		Backups []*backup.Snapshot `json:"backups"`
	}
}

// List returns all snapshots, newest first.
func (h *BackupsHandler) List(ctx context.Context, _ *struct{}) (*BackupListOutput, error) {
	snaps, err := h.manager.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing backups", err)
	}
	resp := &BackupListOutput{}
	resp.Body.Backups = snaps
	return resp, nil
}
