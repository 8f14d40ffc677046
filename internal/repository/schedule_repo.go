package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// scheduleRepo implements ScheduleRepository using GORM.
type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *scheduleRepo {
	return &scheduleRepo{db: db}
}

// List returns all schedule windows.
func (r *scheduleRepo) List(ctx context.Context) ([]*models.ScheduleWindow, error) {
	var windows []*models.ScheduleWindow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("listing schedule windows: %w", err)
	}
	return windows, nil
}

// ListEnabled returns enabled schedule windows.
func (r *scheduleRepo) ListEnabled(ctx context.Context) ([]*models.ScheduleWindow, error) {
	var windows []*models.ScheduleWindow
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("listing enabled schedule windows: %w", err)
	}
	return windows, nil
}

// Get retrieves a schedule window by ID. Returns (nil, nil) when absent.
func (r *scheduleRepo) Get(ctx context.Context, id int64) (*models.ScheduleWindow, error) {
	var window models.ScheduleWindow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&window).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting schedule window: %w", err)
	}
	return &window, nil
}

// Create validates and inserts a schedule window.
func (r *scheduleRepo) Create(ctx context.Context, w *models.ScheduleWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("creating schedule window: %w", err)
	}
	return nil
}

// Update validates and saves a schedule window.
func (r *scheduleRepo) Update(ctx context.Context, w *models.ScheduleWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(w).Error; err != nil {
		return fmt.Errorf("updating schedule window: %w", err)
	}
	return nil
}

// Delete removes a schedule window.
func (r *scheduleRepo) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduleWindow{}).Error; err != nil {
		return fmt.Errorf("deleting schedule window: %w", err)
	}
	return nil
}

// Ensure scheduleRepo implements ScheduleRepository at compile time.
var _ ScheduleRepository = (*scheduleRepo)(nil)
