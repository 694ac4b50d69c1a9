package repository

import (
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines the interface for subscription persistence.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id string) (*models.Subscription, error)
	// FindCurrentByUser returns the user's non-canceled subscription, or
	// gorm.ErrRecordNotFound when none exists.
	FindCurrentByUser(userID string) (*models.Subscription, error)
	Update(sub *models.Subscription) error
	// ListDueForCharge selects subscriptions whose next charge is due, that
	// are in a chargeable state, and that are under the attempt limit.
	ListDueForCharge(now time.Time, maxAttempts int) ([]models.Subscription, error)
	// CancelDueExceeded bulk-cancels due subscriptions at or over the attempt
	// limit and returns how many rows changed.
	CancelDueExceeded(now time.Time, maxAttempts int, reason string) (int64, error)
}

// PaymentRepository defines the interface for the payment ledger.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id string) (*models.Payment, error)
	GetByReference(reference string) (*models.Payment, error)
	Update(payment *models.Payment) error
	// AppendWebhookLog appends one received payload to the payment's audit
	// log. Logs are never overwritten.
	AppendWebhookLog(paymentID string, rawPayload string, receivedAt time.Time) error
	ListByUser(userID string) ([]models.Payment, error)
}

// NotificationRepository defines the interface for user notifications.
type NotificationRepository interface {
	Create(n *models.Notification) error
	ListByUser(userID string) ([]models.Notification, error)
	MarkRead(id uint) error
}

// Repositories bundles all repository instances
type Repositories struct {
	Subscription SubscriptionRepository
	Payment      PaymentRepository
	Notification NotificationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription: NewSubscriptionRepository(db),
		Payment:      NewPaymentRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
