package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// settingsRepo implements SettingsRepository using GORM. The settings table
// holds exactly one row with id 1.
type settingsRepo struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) *settingsRepo {
	return &settingsRepo{db: db}
}

// Get returns the settings row.
func (r *settingsRepo) Get(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	if err := r.db.WithContext(ctx).Where("id = ?", 1).First(&s).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("settings row missing; database not seeded")
		}
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return &s, nil
}

// Update validates and saves the full settings row.
func (r *settingsRepo) Update(ctx context.Context, s *models.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.ID = 1
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	return nil
}

// EnsureSeed inserts the seed row if none exists and returns the effective
// settings. Existing rows win so user edits survive restarts.
func (r *settingsRepo) EnsureSeed(ctx context.Context, seed models.Settings) (*models.Settings, error) {
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings seed: %w", err)
	}
	seed.ID = 1

	err := r.db.WithContext(ctx).
		Where("id = ?", 1).
		FirstOrCreate(&seed).Error
	if err != nil {
		return nil, fmt.Errorf("seeding settings: %w", err)
	}
	return &seed, nil
}

// Ensure settingsRepo implements SettingsRepository at compile time.
var _ SettingsRepository = (*settingsRepo)(nil)
