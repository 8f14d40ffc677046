// Package repository provides data access interfaces and GORM
// implementations for alchemist entities.
package repository

import (
	"context"

	"github.com/alchemist-av/alchemist/internal/models"
)

// JobFilter narrows and pages job listings.
type JobFilter struct {
	// States limits results to the given states; empty means all.
	States []models.JobState
	// Search is a case-insensitive substring match on input_path.
	Search string
	// SortBy must be one of the whitelisted columns; defaults to created_at.
	SortBy string
	// Order is "asc" or "desc"; defaults to desc.
	Order string
	// Limit caps the page size; 0 uses the default.
	Limit int
	// Offset skips rows for paging.
	Offset int
}

// JobRepository defines operations for the durable job queue.
type JobRepository interface {
	// Upsert registers a scanned file. New paths insert as queued; a known
	// path with a changed mtime hash is requeued with progress reset. An
	// unchanged hash is a no-op so terminal jobs stay terminal. Jobs
	// currently owned by a worker are never touched. The bool reports
	// whether the job was (re)enqueued.
	Upsert(ctx context.Context, inputPath, outputPath, mtimeHash string, priority int) (*models.Job, bool, error)

	// Get retrieves a job by ID. Returns (nil, nil) when absent.
	Get(ctx context.Context, id int64) (*models.Job, error)

	// GetByInputPath retrieves a job by its input path. Returns (nil, nil)
	// when absent.
	GetByInputPath(ctx context.Context, path string) (*models.Job, error)

	// List returns jobs matching the filter plus the total match count.
	List(ctx context.Context, filter JobFilter) ([]*models.Job, int64, error)

	// ClaimNext atomically claims the next queued job (priority desc, then
	// FIFO), marking it analyzing and incrementing attempt_count. Returns
	// (nil, nil) when the queue is empty. Safe under concurrent claimers.
	ClaimNext(ctx context.Context) (*models.Job, error)

	// ResetInterrupted requeues jobs left analyzing or encoding by a
	// previous process. Returns the number reset.
	ResetInterrupted(ctx context.Context) (int64, error)

	// UpdateState sets the job state.
	UpdateState(ctx context.Context, id int64, state models.JobState) error

	// MarkCompleted finishes a job at 100% progress.
	MarkCompleted(ctx context.Context, id int64) error

	// MarkSkipped parks a job with the decision reason.
	MarkSkipped(ctx context.Context, id int64, reason string) error

	// MarkFailed fails a job with error detail.
	MarkFailed(ctx context.Context, id int64, detail string) error

	// SetDecisionReason records the decision outcome on the job row.
	SetDecisionReason(ctx context.Context, id int64, reason string) error

	// SetProgress persists encode progress (0-100).
	SetProgress(ctx context.Context, id int64, pct float64) error

	// SetPriority changes queue priority. Terminal jobs return
	// models.ErrInvalidState, unknown ids models.ErrJobNotFound.
	SetPriority(ctx context.Context, id int64, priority int) error

	// CancelQueued flips a still-queued job to cancelled. The bool reports
	// whether the flip happened; false means the job was claimed or
	// already terminal.
	CancelQueued(ctx context.Context, id int64) (bool, error)

	// Restart requeues a terminal job, clearing progress and errors.
	// Non-terminal jobs return models.ErrInvalidState.
	Restart(ctx context.Context, id int64) error

	// RestartAllFailed bulk-requeues every failed job. Returns the count.
	RestartAllFailed(ctx context.Context) (int64, error)

	// Delete removes a terminal job. Non-terminal jobs return
	// models.ErrInvalidState.
	Delete(ctx context.Context, id int64) error

	// ClearCompleted deletes all completed jobs. Returns the count.
	ClearCompleted(ctx context.Context) (int64, error)

	// CountByState returns a count for every state, including zeroes.
	CountByState(ctx context.Context) (map[models.JobState]int64, error)
}

// StatsTotals aggregates encode outcomes across all jobs.
type StatsTotals struct {
	FilesProcessed  int64   `json:"files_processed"`
	InputBytes      int64   `json:"input_bytes"`
	OutputBytes     int64   `json:"output_bytes"`
	BytesSaved      int64   `json:"bytes_saved"`
	AvgReductionPct float64 `json:"avg_reduction_pct"`
	EncodeSeconds   float64 `json:"encode_seconds"`
}

// StatsRepository defines operations for encode statistics.
type StatsRepository interface {
	// UpsertForJob writes the stat row for a job, replacing any previous
	// row (re-encodes after restart overwrite).
	UpsertForJob(ctx context.Context, stat *models.EncodeStat) error

	// ForJob returns the stat row for a job, (nil, nil) when absent.
	ForJob(ctx context.Context, jobID int64) (*models.EncodeStat, error)

	// Totals aggregates all stat rows.
	Totals(ctx context.Context) (*StatsTotals, error)

	// Recent returns the newest stat rows.
	Recent(ctx context.Context, limit int) ([]*models.EncodeStat, error)
}

// DecisionRepository defines operations for decision history.
type DecisionRepository interface {
	// Record appends a decision row.
	Record(ctx context.Context, d *models.Decision) error

	// ListForJob returns all decisions for a job, newest first.
	ListForJob(ctx context.Context, jobID int64) ([]*models.Decision, error)

	// LatestForJob returns the newest decision, (nil, nil) when absent.
	LatestForJob(ctx context.Context, jobID int64) (*models.Decision, error)
}

// SettingsRepository manages the settings singleton.
type SettingsRepository interface {
	// Get returns the settings row.
	Get(ctx context.Context) (*models.Settings, error)

	// Update validates and saves the full settings row.
	Update(ctx context.Context, s *models.Settings) error

	// EnsureSeed inserts the seed row if none exists and returns the
	// effective settings.
	EnsureSeed(ctx context.Context, seed models.Settings) (*models.Settings, error)
}

// ScheduleRepository manages schedule windows.
type ScheduleRepository interface {
	List(ctx context.Context) ([]*models.ScheduleWindow, error)
	ListEnabled(ctx context.Context) ([]*models.ScheduleWindow, error)
	Get(ctx context.Context, id int64) (*models.ScheduleWindow, error)
	Create(ctx context.Context, w *models.ScheduleWindow) error
	Update(ctx context.Context, w *models.ScheduleWindow) error
	Delete(ctx context.Context, id int64) error
}

// WatchDirRepository manages runtime-registered library roots.
type WatchDirRepository interface {
	List(ctx context.Context) ([]*models.WatchDir, error)
	ListEnabled(ctx context.Context) ([]*models.WatchDir, error)
	Get(ctx context.Context, id int64) (*models.WatchDir, error)
	Create(ctx context.Context, d *models.WatchDir) error
	Update(ctx context.Context, d *models.WatchDir) error
	Delete(ctx context.Context, id int64) error
}

// NotificationRepository manages notification targets.
type NotificationRepository interface {
	List(ctx context.Context) ([]*models.NotificationTarget, error)
	ListEnabled(ctx context.Context) ([]*models.NotificationTarget, error)
	Get(ctx context.Context, id int64) (*models.NotificationTarget, error)
	Create(ctx context.Context, n *models.NotificationTarget) error
	Update(ctx context.Context, n *models.NotificationTarget) error
	Delete(ctx context.Context, id int64) error
}
