package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// StatsHandler serves queue depth and lifetime encode totals.
type StatsHandler struct {
	jobs  repository.JobRepository
	stats repository.StatsRepository
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(jobs repository.JobRepository, stats repository.StatsRepository) *StatsHandler {
	return &StatsHandler{jobs: jobs, stats: stats}
}

// Register registers stats operations with the API.
func (h *StatsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get statistics",
		Description: "Returns per-state queue counts and lifetime encode totals.",
		Tags:        []string{"Stats"},
	}, h.Get)
}

// StatsOutput is the statistics response.
type StatsOutput struct {
	Body struct {
		Queue  map[models.JobState]int64 `json:"queue" doc:"Job count per state, zeroes included"`
		Totals *repository.StatsTotals   `json:"totals"`
	}
}

// Get returns queue counts and aggregate totals.
func (h *StatsHandler) Get(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	queue, err := h.jobs.CountByState(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting jobs", err)
	}
	totals, err := h.stats.Totals(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("aggregating stats", err)
	}

	resp := &StatsOutput{}
	resp.Body.Queue = queue
	resp.Body.Totals = totals
	return resp, nil
}
