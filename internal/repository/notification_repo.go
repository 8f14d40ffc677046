package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// notificationRepo implements NotificationRepository using GORM.
type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) *notificationRepo {
	return &notificationRepo{db: db}
}

// List returns all notification targets.
func (r *notificationRepo) List(ctx context.Context) ([]*models.NotificationTarget, error) {
	var targets []*models.NotificationTarget
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("listing notification targets: %w", err)
	}
	return targets, nil
}

// ListEnabled returns enabled notification targets.
func (r *notificationRepo) ListEnabled(ctx context.Context) ([]*models.NotificationTarget, error) {
	var targets []*models.NotificationTarget
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("listing enabled notification targets: %w", err)
	}
	return targets, nil
}

// Get retrieves a notification target by ID. Returns (nil, nil) when absent.
func (r *notificationRepo) Get(ctx context.Context, id int64) (*models.NotificationTarget, error) {
	var target models.NotificationTarget
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&target).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting notification target: %w", err)
	}
	return &target, nil
}

// Create validates and inserts a notification target.
func (r *notificationRepo) Create(ctx context.Context, n *models.NotificationTarget) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("creating notification target: %w", err)
	}
	return nil
}

// Update validates and saves a notification target.
func (r *notificationRepo) Update(ctx context.Context, n *models.NotificationTarget) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(n).Error; err != nil {
		return fmt.Errorf("updating notification target: %w", err)
	}
	return nil
}

// Delete removes a notification target.
func (r *notificationRepo) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.NotificationTarget{}).Error; err != nil {
		return fmt.Errorf("deleting notification target: %w", err)
	}
	return nil
}

// Ensure notificationRepo implements NotificationRepository at compile time.
var _ NotificationRepository = (*notificationRepo)(nil)
