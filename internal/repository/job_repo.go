package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alchemist-av/alchemist/internal/models"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

var terminalStates = []models.JobState{
	models.JobStateCompleted,
	models.JobStateSkipped,
	models.JobStateFailed,
	models.JobStateCancelled,
}

var activeStates = []models.JobState{
	models.JobStateAnalyzing,
	models.JobStateEncoding,
}

// Upsert registers a scanned file, requeueing only when its mtime hash
// changed. Jobs currently owned by a worker are left alone.
func (r *jobRepo) Upsert(ctx context.Context, inputPath, outputPath, mtimeHash string, priority int) (*models.Job, bool, error) {
	existing, err := r.GetByInputPath(ctx, inputPath)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		job := &models.Job{
			InputPath:  inputPath,
			OutputPath: outputPath,
			State:      models.JobStateQueued,
			Priority:   priority,
			MtimeHash:  mtimeHash,
		}
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, fmt.Errorf("creating job: %w", err)
		}
		return job, true, nil
	}

	if existing.MtimeHash == mtimeHash {
		return existing, false, nil
	}

	// The file changed on disk. Requeue unless a worker owns the job right
	// now; the guard in WHERE closes the race with a concurrent claim.
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND state NOT IN ?", existing.ID, activeStates).
		Updates(map[string]interface{}{
			"output_path":     outputPath,
			"mtime_hash":      mtimeHash,
			"state":           models.JobStateQueued,
			"progress_pct":    0,
			"decision_reason": nil,
			"error_detail":    nil,
		})
	if result.Error != nil {
		return nil, false, fmt.Errorf("requeueing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return existing, false, nil
	}

	job, err := r.Get(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Get retrieves a job by ID.
func (r *jobRepo) Get(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByInputPath retrieves a job by its input path.
func (r *jobRepo) GetByInputPath(ctx context.Context, path string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("input_path = ?", path).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by input path: %w", err)
	}
	return &job, nil
}

// jobSortColumns whitelists List sort keys.
var jobSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"priority":     "priority",
	"state":        "state",
	"input_path":   "input_path",
	"progress_pct": "progress_pct",
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// List returns jobs matching the filter plus the total match count.
func (r *jobRepo) List(ctx context.Context, filter JobFilter) ([]*models.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Job{})

	if len(filter.States) > 0 {
		query = query.Where("state IN ?", filter.States)
	}
	if filter.Search != "" {
		query = query.Where("input_path LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	column, ok := jobSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if filter.Order == "asc" {
		order = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var jobs []*models.Job
	err := query.
		Order(fmt.Sprintf("%s %s", column, order)).
		Limit(limit).
		Offset(filter.Offset).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// ClaimNext atomically claims the next queued job. Postgres and MySQL take
// the row lock path with SKIP LOCKED; SQLite has no row locks, so claims are
// serialized through a conditional UPDATE whose affected-row count decides
// the winner.
func (r *jobRepo) ClaimNext(ctx context.Context) (*models.Job, error) {
	switch r.db.Dialector.Name() {
	case "postgres", "mysql":
		return r.claimWithRowLock(ctx)
	default:
		return r.claimConditional(ctx)
	}
}

func (r *jobRepo) claimWithRowLock(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ?", models.JobStateQueued).
			Order("priority DESC, created_at ASC").
			Limit(1).
			First(&job).Error; err != nil {
			return err
		}

		// Row is locked for the duration of the transaction.
		return tx.Model(&models.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"state":         models.JobStateAnalyzing,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	job.State = models.JobStateAnalyzing
	job.AttemptCount++
	return &job, nil
}

func (r *jobRepo) claimConditional(ctx context.Context) (*models.Job, error) {
	for {
		var job models.Job
		err := r.db.WithContext(ctx).
			Where("state = ?", models.JobStateQueued).
			Order("priority DESC, created_at ASC").
			First(&job).Error
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding queued job: %w", err)
		}

		result := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND state = ?", job.ID, models.JobStateQueued).
			Updates(map[string]interface{}{
				"state":         models.JobStateAnalyzing,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if result.Error != nil {
			return nil, fmt.Errorf("claiming job: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			job.State = models.JobStateAnalyzing
			job.AttemptCount++
			return &job, nil
		}

		// Another claimer won this row; it is no longer queued, so the
		// next iteration selects a different candidate.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// ResetInterrupted requeues jobs a dead process left mid-flight.
func (r *jobRepo) ResetInterrupted(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("state IN ?", activeStates).
		Updates(map[string]interface{}{
			"state":        models.JobStateQueued,
			"progress_pct": 0,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("resetting interrupted jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateState sets the job state.
func (r *jobRepo) UpdateState(ctx context.Context, id int64, state models.JobState) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("state", state).Error; err != nil {
		return fmt.Errorf("updating job state: %w", err)
	}
	return nil
}

// MarkCompleted finishes a job at 100% progress.
func (r *jobRepo) MarkCompleted(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":        models.JobStateCompleted,
			"progress_pct": 100,
			"error_detail": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}
	return nil
}

// MarkSkipped parks a job with the decision reason.
func (r *jobRepo) MarkSkipped(ctx context.Context, id int64, reason string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":           models.JobStateSkipped,
			"decision_reason": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("marking job skipped: %w", err)
	}
	return nil
}

// MarkFailed fails a job with error detail.
func (r *jobRepo) MarkFailed(ctx context.Context, id int64, detail string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":        models.JobStateFailed,
			"error_detail": detail,
		}).Error
	if err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}
	return nil
}

// SetDecisionReason records the decision outcome on the job row.
func (r *jobRepo) SetDecisionReason(ctx context.Context, id int64, reason string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("decision_reason", reason).Error; err != nil {
		return fmt.Errorf("setting decision reason: %w", err)
	}
	return nil
}

// SetProgress persists encode progress.
func (r *jobRepo) SetProgress(ctx context.Context, id int64, pct float64) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("progress_pct", pct).Error; err != nil {
		return fmt.Errorf("setting job progress: %w", err)
	}
	return nil
}

// SetPriority changes queue priority on a non-terminal job.
func (r *jobRepo) SetPriority(ctx context.Context, id int64, priority int) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND state NOT IN ?", id, terminalStates).
		Update("priority", priority)
	if result.Error != nil {
		return fmt.Errorf("setting job priority: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.stateConflict(ctx, id)
	}
	return nil
}

// CancelQueued flips a still-queued job to cancelled.
func (r *jobRepo) CancelQueued(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND state = ?", id, models.JobStateQueued).
		Update("state", models.JobStateCancelled)
	if result.Error != nil {
		return false, fmt.Errorf("cancelling queued job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Restart requeues a terminal job, clearing progress and errors.
func (r *jobRepo) Restart(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND state IN ?", id, terminalStates).
		Updates(map[string]interface{}{
			"state":           models.JobStateQueued,
			"progress_pct":    0,
			"decision_reason": nil,
			"error_detail":    nil,
		})
	if result.Error != nil {
		return fmt.Errorf("restarting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.stateConflict(ctx, id)
	}
	return nil
}

// RestartAllFailed bulk-requeues every failed job.
func (r *jobRepo) RestartAllFailed(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("state = ?", models.JobStateFailed).
		Updates(map[string]interface{}{
			"state":        models.JobStateQueued,
			"progress_pct": 0,
			"error_detail": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("restarting failed jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a terminal job.
func (r *jobRepo) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND state IN ?", id, terminalStates).
		Delete(&models.Job{})
	if result.Error != nil {
		return fmt.Errorf("deleting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.stateConflict(ctx, id)
	}
	return nil
}

// ClearCompleted deletes all completed jobs.
func (r *jobRepo) ClearCompleted(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state = ?", models.JobStateCompleted).
		Delete(&models.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("clearing completed jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByState returns a count for every state, including zeroes.
func (r *jobRepo) CountByState(ctx context.Context) (map[models.JobState]int64, error) {
	type row struct {
		State models.JobState
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting jobs by state: %w", err)
	}

	counts := make(map[models.JobState]int64, len(models.AllJobStates))
	for _, state := range models.AllJobStates {
		counts[state] = 0
	}
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

// stateConflict distinguishes a missing job from one in the wrong state
// after a guarded update matched no rows.
func (r *jobRepo) stateConflict(ctx context.Context, id int64) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: id %d", models.ErrJobNotFound, id)
	}
	return fmt.Errorf("%w: job %d is %s", models.ErrInvalidState, id, job.State)
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
