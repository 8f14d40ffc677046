package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alchemist-av/alchemist/internal/models"
)

// statsRepo implements StatsRepository using GORM.
type statsRepo struct {
	db *gorm.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *gorm.DB) *statsRepo {
	return &statsRepo{db: db}
}

// UpsertForJob writes the stat row for a job, replacing any previous row.
func (r *statsRepo) UpsertForJob(ctx context.Context, stat *models.EncodeStat) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"input_size_bytes", "output_size_bytes", "reduction_pct",
				"encode_seconds", "encode_speed", "avg_bitrate_kbps",
				"vmaf_score", "encoder", "created_at",
			}),
		}).
		Create(stat).Error
	if err != nil {
		return fmt.Errorf("upserting encode stat: %w", err)
	}
	return nil
}

// ForJob returns the stat row for a job.
func (r *statsRepo) ForJob(ctx context.Context, jobID int64) (*models.EncodeStat, error) {
	var stat models.EncodeStat
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&stat).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting encode stat: %w", err)
	}
	return &stat, nil
}

// Totals aggregates all stat rows.
func (r *statsRepo) Totals(ctx context.Context) (*StatsTotals, error) {
	var totals StatsTotals
	err := r.db.WithContext(ctx).Model(&models.EncodeStat{}).
		Select(`COUNT(*) as files_processed,
			COALESCE(SUM(input_size_bytes), 0) as input_bytes,
			COALESCE(SUM(output_size_bytes), 0) as output_bytes,
			COALESCE(SUM(input_size_bytes - output_size_bytes), 0) as bytes_saved,
			COALESCE(AVG(reduction_pct), 0) as avg_reduction_pct,
			COALESCE(SUM(encode_seconds), 0) as encode_seconds`).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating encode stats: %w", err)
	}
	return &totals, nil
}

// Recent returns the newest stat rows.
func (r *statsRepo) Recent(ctx context.Context, limit int) ([]*models.EncodeStat, error) {
	if limit <= 0 {
		limit = 20
	}
	var stats []*models.EncodeStat
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent encode stats: %w", err)
	}
	return stats, nil
}

// Ensure statsRepo implements StatsRepository at compile time.
var _ StatsRepository = (*statsRepo)(nil)
