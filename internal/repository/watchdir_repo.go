package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// watchDirRepo implements WatchDirRepository using GORM.
type watchDirRepo struct {
	db *gorm.DB
}

// NewWatchDirRepository creates a new WatchDirRepository.
func NewWatchDirRepository(db *gorm.DB) *watchDirRepo {
	return &watchDirRepo{db: db}
}

// List returns all watch dirs.
func (r *watchDirRepo) List(ctx context.Context) ([]*models.WatchDir, error) {
	var dirs []*models.WatchDir
	if err := r.db.WithContext(ctx).Order("path ASC").Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("listing watch dirs: %w", err)
	}
	return dirs, nil
}

// ListEnabled returns enabled watch dirs.
func (r *watchDirRepo) ListEnabled(ctx context.Context) ([]*models.WatchDir, error) {
	var dirs []*models.WatchDir
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("path ASC").Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("listing enabled watch dirs: %w", err)
	}
	return dirs, nil
}

// Get retrieves a watch dir by ID. Returns (nil, nil) when absent.
func (r *watchDirRepo) Get(ctx context.Context, id int64) (*models.WatchDir, error) {
	var dir models.WatchDir
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dir).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting watch dir: %w", err)
	}
	return &dir, nil
}

// Create validates and inserts a watch dir.
func (r *watchDirRepo) Create(ctx context.Context, d *models.WatchDir) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}
	return nil
}

// Update validates and saves a watch dir.
func (r *watchDirRepo) Update(ctx context.Context, d *models.WatchDir) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("updating watch dir: %w", err)
	}
	return nil
}

// Delete removes a watch dir.
func (r *watchDirRepo) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WatchDir{}).Error; err != nil {
		return fmt.Errorf("deleting watch dir: %w", err)
	}
	return nil
}

// Ensure watchDirRepo implements WatchDirRepository at compile time.
var _ WatchDirRepository = (*watchDirRepo)(nil)
