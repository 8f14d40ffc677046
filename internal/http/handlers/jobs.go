package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// JobsHandler serves the job queue operations.
type JobsHandler struct {
	jobs      repository.JobRepository
	decisions repository.DecisionRepository
	stats     repository.StatsRepository
	engine    Engine
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(jobs repository.JobRepository, decisions repository.DecisionRepository, stats repository.StatsRepository, eng Engine) *JobsHandler {
	return &JobsHandler{jobs: jobs, decisions: decisions, stats: stats, engine: eng}
}

// Register registers job operations with the API.
func (h *JobsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Lists jobs with optional state filter, path search, sorting and paging.",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job with its latest decision and encode statistics when present.",
		Tags:        []string{"Jobs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-job",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs/{id}/cancel",
		Summary:       "Cancel job",
		Description:   "Cancels a queued or running job. Queued jobs flip immediately; running jobs stop after the worker observes cancellation.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusAccepted,
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "restart-job",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/{id}/restart",
		Summary:     "Restart job",
		Description: "Requeues a finished job, clearing progress and errors.",
		Tags:        []string{"Jobs"},
	}, h.Restart)

	huma.Register(api, huma.Operation{
		OperationID: "set-job-priority",
		Method:      http.MethodPut,
		Path:        "/api/v1/jobs/{id}/priority",
		Summary:     "Set job priority",
		Tags:        []string{"Jobs"},
	}, h.SetPriority)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-job",
		Method:        http.MethodDelete,
		Path:          "/api/v1/jobs/{id}",
		Summary:       "Delete job",
		Description:   "Removes a finished job from the queue. Active jobs must be cancelled first.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "restart-failed-jobs",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/restart-failed",
		Summary:     "Restart all failed jobs",
		Tags:        []string{"Jobs"},
	}, h.RestartFailed)

	huma.Register(api, huma.Operation{
		OperationID: "clear-completed-jobs",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/clear-completed",
		Summary:     "Clear completed jobs",
		Tags:        []string{"Jobs"},
	}, h.ClearCompleted)
}

// ListJobsInput holds filter, sort and paging parameters.
type ListJobsInput struct {
	State  string `query:"state" doc:"Comma-separated states to include (queued, analyzing, encoding, completed, skipped, failed, cancelled)"`
	Search string `query:"search" doc:"Case-insensitive substring match on the input path"`
	SortBy string `query:"sort_by" enum:"created_at,updated_at,priority,state,input_path,progress_pct" default:"created_at" doc:"Sort column"`
	Order  string `query:"order" enum:"asc,desc" default:"desc" doc:"Sort direction"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Rows to skip"`
}

// ListJobsOutput is the job listing response.
type ListJobsOutput struct {
	Body struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int64         `json:"total" doc:"Total matches before paging"`
	}
}

// List returns jobs matching the filter.
func (h *JobsHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	filter := repository.JobFilter{
		Search: input.Search,
		SortBy: input.SortBy,
		Order:  input.Order,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if input.State != "" {
		for _, raw := range strings.Split(input.State, ",") {
			state, err := models.ParseJobState(strings.TrimSpace(raw))
			if err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			filter.States = append(filter.States, state)
		}
	}

	jobs, total, err := h.jobs.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = jobs
	resp.Body.Total = total
	return resp, nil
}

// GetJobInput identifies a job by path parameter.
type GetJobInput struct {
	ID int64 `path:"id" doc:"Job ID"`
}

// GetJobOutput is a job detail response.
type GetJobOutput struct {
	Body struct {
		Job      *models.Job        `json:"job"`
		Decision *models.Decision   `json:"decision,omitempty" doc:"Latest decision, when recorded"`
		Stats    *models.EncodeStat `json:"stats,omitempty" doc:"Encode statistics, when recorded"`
	}
}

// Get returns a single job with its latest decision and stats.
func (h *JobsHandler) Get(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.jobs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading job", err)
	}
	if job == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %d not found", input.ID))
	}

	resp := &GetJobOutput{}
	resp.Body.Job = job
	if decision, err := h.decisions.LatestForJob(ctx, job.ID); err == nil {
		resp.Body.Decision = decision
	}
	if stat, err := h.stats.ForJob(ctx, job.ID); err == nil {
		resp.Body.Stats = stat
	}
	return resp, nil
}

// JobActionOutput acknowledges an asynchronous job action.
type JobActionOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Cancel requests cancellation of a queued or running job.
func (h *JobsHandler) Cancel(ctx context.Context, input *GetJobInput) (*JobActionOutput, error) {
	if err := h.engine.Cancel(ctx, input.ID); err != nil {
		return nil, mapJobError(err, input.ID)
	}
	resp := &JobActionOutput{}
	resp.Body.Message = fmt.Sprintf("cancellation requested for job %d", input.ID)
	return resp, nil
}

// JobOutput wraps a single job.
type JobOutput struct {
	Body struct {
		Job *models.Job `json:"job"`
	}
}

// Restart requeues a finished job.
func (h *JobsHandler) Restart(ctx context.Context, input *GetJobInput) (*JobOutput, error) {
	if err := h.jobs.Restart(ctx, input.ID); err != nil {
		return nil, mapJobError(err, input.ID)
	}
	job, err := h.jobs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading job", err)
	}
	resp := &JobOutput{}
	resp.Body.Job = job
	return resp, nil
}

// SetPriorityInput carries the new priority for a job.
type SetPriorityInput struct {
	ID   int64 `path:"id" doc:"Job ID"`
	Body struct {
		Priority int `json:"priority" minimum:"0" maximum:"100" doc:"Higher values are claimed first"`
	}
}

// SetPriority changes the queue priority of a job.
func (h *JobsHandler) SetPriority(ctx context.Context, input *SetPriorityInput) (*JobOutput, error) {
	if err := h.jobs.SetPriority(ctx, input.ID, input.Body.Priority); err != nil {
		return nil, mapJobError(err, input.ID)
	}
	job, err := h.jobs.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading job", err)
	}
	resp := &JobOutput{}
	resp.Body.Job = job
	return resp, nil
}

// DeleteJobOutput is an empty 204 response.
type DeleteJobOutput struct{}

// Delete removes a finished job.
func (h *JobsHandler) Delete(ctx context.Context, input *GetJobInput) (*DeleteJobOutput, error) {
	if err := h.jobs.Delete(ctx, input.ID); err != nil {
		return nil, mapJobError(err, input.ID)
	}
	return &DeleteJobOutput{}, nil
}

// BulkJobsOutput reports how many jobs a bulk operation touched.
type BulkJobsOutput struct {
	Body struct {
		Count int64 `json:"count"`
	}
}

// RestartFailed requeues every failed job.
func (h *JobsHandler) RestartFailed(ctx context.Context, _ *struct{}) (*BulkJobsOutput, error) {
	count, err := h.jobs.RestartAllFailed(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("restarting failed jobs", err)
	}
	resp := &BulkJobsOutput{}
	resp.Body.Count = count
	return resp, nil
}

// ClearCompleted deletes every completed job.
func (h *JobsHandler) ClearCompleted(ctx context.Context, _ *struct{}) (*BulkJobsOutput, error) {
	count, err := h.jobs.ClearCompleted(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("clearing completed jobs", err)
	}
	resp := &BulkJobsOutput{}
	resp.Body.Count = count
	return resp, nil
}
