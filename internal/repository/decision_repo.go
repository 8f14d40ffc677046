package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// decisionRepo implements DecisionRepository using GORM.
type decisionRepo struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *gorm.DB) *decisionRepo {
	return &decisionRepo{db: db}
}

// Record appends a decision row.
func (r *decisionRepo) Record(ctx context.Context, d *models.Decision) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("recording decision: %w", err)
	}
	return nil
}

// ListForJob returns all decisions for a job, newest first.
func (r *decisionRepo) ListForJob(ctx context.Context, jobID int64) ([]*models.Decision, error) {
	var decisions []*models.Decision
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC, id DESC").
		Find(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	return decisions, nil
}

// LatestForJob returns the newest decision for a job.
func (r *decisionRepo) LatestForJob(ctx context.Context, jobID int64) (*models.Decision, error) {
	var decision models.Decision
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC, id DESC").
		First(&decision).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest decision: %w", err)
	}
	return &decision, nil
}

// Ensure decisionRepo implements DecisionRepository at compile time.
var _ DecisionRepository = (*decisionRepo)(nil)
