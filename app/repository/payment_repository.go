package repository

import (
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *paymentRepository) GetByID(id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByReference(reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("reference = ?", reference).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

func (r *paymentRepository) AppendWebhookLog(paymentID string, rawPayload string, receivedAt time.Time) error {
	return r.db.Create(&models.PaymentWebhookLog{
		PaymentID:  paymentID,
		RawPayload: rawPayload,
		ReceivedAt: receivedAt,
	}).Error
}

func (r *paymentRepository) ListByUser(userID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Where("user_id = ?", userID).
		Order("initiated_at DESC").
		Find(&payments).Error
	return payments, err
}
