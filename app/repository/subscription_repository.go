package repository

import (
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindCurrentByUser(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status <> ?", userID, models.SubscriptionCanceled).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *subscriptionRepository) ListDueForCharge(now time.Time, maxAttempts int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("next_charge_due <= ?", now).
		Where("status IN ?", []models.SubscriptionStatus{
			models.SubscriptionTrial,
			models.SubscriptionActive,
			models.SubscriptionPastDue,
		}).
		Where("attempts < ?", maxAttempts).
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) CancelDueExceeded(now time.Time, maxAttempts int, reason string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("next_charge_due <= ?", now).
		Where("status IN ?", []models.SubscriptionStatus{
			models.SubscriptionTrial,
			models.SubscriptionActive,
			models.SubscriptionPastDue,
			models.SubscriptionAwaitingPayment,
		}).
		Where("attempts >= ?", maxAttempts).
		Updates(map[string]interface{}{
			"status":              models.SubscriptionCanceled,
			"canceled_at":         now,
			"cancellation_reason": reason,
		})
	return tx.RowsAffected, tx.Error
}
