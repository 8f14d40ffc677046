package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// WatchDirsHandler serves watch directory CRUD. Enabled directories join
// the scan roots and, when watching is on, the filesystem watcher.
type WatchDirsHandler struct {
	watchDirs repository.WatchDirRepository
	engine    Engine
}

// NewWatchDirsHandler creates a watch dirs handler.
func NewWatchDirsHandler(watchDirs repository.WatchDirRepository, eng Engine) *WatchDirsHandler {
	return &WatchDirsHandler{watchDirs: watchDirs, engine: eng}
}

// Register registers watch dir operations with the API.
func (h *WatchDirsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-watch-dirs",
		Method:      http.MethodGet,
		Path:        "/api/v1/watch-dirs",
		Summary:     "List watch directories",
		Tags:        []string{"WatchDirs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "create-watch-dir",
		Method:        http.MethodPost,
		Path:          "/api/v1/watch-dirs",
		Summary:       "Add watch directory",
		Description:   "Registers a library root. Enabled roots are included in scans and watched for new files when watching is on.",
		Tags:          []string{"WatchDirs"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "get-watch-dir",
		Method:      http.MethodGet,
		Path:        "/api/v1/watch-dirs/{id}",
		Summary:     "Get watch directory",
		Tags:        []string{"WatchDirs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-watch-dir",
		Method:      http.MethodPut,
		Path:        "/api/v1/watch-dirs/{id}",
		Summary:     "Update watch directory",
		Tags:        []string{"WatchDirs"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-watch-dir",
		Method:        http.MethodDelete,
		Path:          "/api/v1/watch-dirs/{id}",
		Summary:       "Delete watch directory",
		Tags:          []string{"WatchDirs"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)
}

// WatchDirBody carries the mutable fields of a watch directory.
type WatchDirBody struct {
	Path    string `json:"path" doc:"Absolute directory path"`
	Enabled bool   `json:"enabled" default:"true"`
}

// WatchDirListOutput is the watch dir listing response.
type WatchDirListOutput struct {
	Body struct {
		WatchDirs []*models.WatchDir `json:"watch_dirs"`
	}
}

// WatchDirOutput wraps a single watch directory.
type WatchDirOutput struct {
	Body *models.WatchDir
}

// WatchDirIDInput identifies a watch directory.
type WatchDirIDInput struct {
	ID int64 `path:"id" doc:"Watch directory ID"`
}

// List returns all watch directories.
func (h *WatchDirsHandler) List(ctx context.Context, _ *struct{}) (*WatchDirListOutput, error) {
	dirs, err := h.watchDirs.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing watch dirs", err)
	}
	resp := &WatchDirListOutput{}
	resp.Body.WatchDirs = dirs
	return resp, nil
}

// CreateWatchDirInput is the creation payload.
type CreateWatchDirInput struct {
	Body WatchDirBody
}

// Create registers a watch directory.
func (h *WatchDirsHandler) Create(ctx context.Context, input *CreateWatchDirInput) (*WatchDirOutput, error) {
	if err := checkDir(input.Body.Path); err != nil {
		return nil, err
	}
	dir := &models.WatchDir{Path: input.Body.Path, Enabled: input.Body.Enabled}
	if err := h.watchDirs.Create(ctx, dir); err != nil {
		return nil, mapSaveError(err, "watch dir")
	}
	if dir.Enabled {
		if err := h.engine.WatchPath(dir.Path); err != nil {
			return nil, huma.Error500InternalServerError("directory saved but watcher registration failed", err)
		}
	}
	return &WatchDirOutput{Body: dir}, nil
}

// Get returns one watch directory.
func (h *WatchDirsHandler) Get(ctx context.Context, input *WatchDirIDInput) (*WatchDirOutput, error) {
	dir, err := h.watchDirs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading watch dir", err)
	}
	if dir == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("watch dir %d not found", input.ID))
	}
	return &WatchDirOutput{Body: dir}, nil
}

// UpdateWatchDirInput is the update payload.
type UpdateWatchDirInput struct {
	ID   int64 `path:"id" doc:"Watch directory ID"`
	Body WatchDirBody
}

// Update replaces the mutable fields of a watch directory.
func (h *WatchDirsHandler) Update(ctx context.Context, input *UpdateWatchDirInput) (*WatchDirOutput, error) {
	dir, err := h.watchDirs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading watch dir", err)
	}
	if dir == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("watch dir %d not found", input.ID))
	}
	if err := checkDir(input.Body.Path); err != nil {
		return nil, err
	}

	wasEnabled := dir.Enabled
	dir.Path = input.Body.Path
	dir.Enabled = input.Body.Enabled
	if err := h.watchDirs.Update(ctx, dir); err != nil {
		return nil, mapSaveError(err, "watch dir")
	}
	if dir.Enabled && !wasEnabled {
		if err := h.engine.WatchPath(dir.Path); err != nil {
			return nil, huma.Error500InternalServerError("directory saved but watcher registration failed", err)
		}
	}
	return &WatchDirOutput{Body: dir}, nil
}

// DeleteWatchDirOutput is an empty 204 response.
type DeleteWatchDirOutput struct{}

// Delete removes a watch directory. Already-queued jobs from it are kept.
func (h *WatchDirsHandler) Delete(ctx context.Context, input *WatchDirIDInput) (*DeleteWatchDirOutput, error) {
	dir, err := h.watchDirs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading watch dir", err)
	}
	if dir == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("watch dir %d not found", input.ID))
	}
	if err := h.watchDirs.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("deleting watch dir", err)
	}
	return &DeleteWatchDirOutput{}, nil
}

// checkDir rejects paths that do not resolve to a directory, catching typos
// before they sit silently in the scan rotation.
func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return huma.Error400BadRequest(fmt.Sprintf("path %q does not exist", path))
	}
	if !info.IsDir() {
		return huma.Error400BadRequest(fmt.Sprintf("path %q is not a directory", path))
	}
	return nil
}
