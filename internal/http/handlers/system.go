package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/repository"
	"github.com/alchemist-av/alchemist/internal/system"
)

// SystemHandler serves host resource usage.
type SystemHandler struct {
	collector *system.Collector
	roots     []string
	watchDirs repository.WatchDirRepository
}

// NewSystemHandler creates a system handler. roots are the configured scan
// roots; enabled watch dirs are added per request so disk usage follows the
// current library layout.
func NewSystemHandler(collector *system.Collector, roots []string, watchDirs repository.WatchDirRepository) *SystemHandler {
	return &SystemHandler{collector: collector, roots: roots, watchDirs: watchDirs}
}

// Register registers the system operation with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-system",
		Method:      http.MethodGet,
		Path:        "/api/v1/system",
		Summary:     "Get system usage",
		Description: "Returns CPU, memory, load, per-root disk usage and network rates for the host.",
		Tags:        []string{"System"},
	}, h.Get)
}

// SystemOutput wraps a host snapshot.
type SystemOutput struct {
	Body *system.Snapshot
}

// Get collects and returns a host snapshot.
func (h *SystemHandler) Get(ctx context.Context, _ *struct{}) (*SystemOutput, error) {
	roots := append([]string(nil), h.roots...)
	if h.watchDirs != nil {
		// Watch dirs are best effort here; a store error should not take
		// down the whole system view.
		if dirs, err := h.watchDirs.ListEnabled(ctx); err == nil {
			for _, dir := range dirs {
				roots = append(roots, dir.Path)
			}
		}
	}
	return &SystemOutput{Body: h.collector.Collect(ctx, roots)}, nil
}
