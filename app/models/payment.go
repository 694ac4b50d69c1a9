package models

import (
	"time"
)

// PaymentStatus is the closed set of states a charge attempt can be in.
// SUCCESS is terminal: it is the idempotency boundary for webhook settlement.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentSuccess       PaymentStatus = "SUCCESS"
	PaymentFailed        PaymentStatus = "FAILED"
	PaymentTimeout       PaymentStatus = "TIMEOUT"
	PaymentGatewayFailed PaymentStatus = "GATEWAY_FAILED"
)

// Valid reports whether s is a member of the closed status set.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentTimeout, PaymentGatewayFailed:
		return true
	}
	return false
}

// CanTransition reports whether a payment in state s may move to next.
// Once SUCCESS, a payment is immutable.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	if !next.Valid() {
		return false
	}
	return s != PaymentSuccess
}

// Payment is one charge attempt against the aggregator. One row per attempt;
// rows are never deleted.
type Payment struct {
	ID             string              `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         string              `gorm:"type:varchar(64);not null;index" json:"user_id"`
	SubscriptionID string              `gorm:"type:char(36);not null;index" json:"subscription_id"`
	Amount         int64               `gorm:"not null" json:"amount"`
	Currency       string              `gorm:"type:varchar(8);not null" json:"currency"`
	Channel        string              `gorm:"type:varchar(32);not null" json:"channel"`
	Phone          string              `gorm:"type:varchar(32);not null" json:"phone"`
	Status         PaymentStatus       `gorm:"type:varchar(32);not null;index" json:"status"`
	Reference      *string             `gorm:"type:varchar(191);default:null;index" json:"reference,omitempty"`
	AttemptNumber  int                 `gorm:"not null" json:"attempt_number"`
	InitiatedAt    time.Time           `gorm:"type:timestamp;not null" json:"initiated_at"`
	CompletedAt    *time.Time          `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	WebhookLogs    []PaymentWebhookLog `gorm:"foreignKey:PaymentID" json:"webhook_logs,omitempty"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentWebhookLog is one received webhook payload for a payment. Logs are
// append-only for audit; they are written even when the delivery changes no
// state.
type PaymentWebhookLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PaymentID  string    `gorm:"type:char(36);not null;index" json:"payment_id"`
	RawPayload string    `gorm:"type:longtext;not null" json:"raw_payload"`
	ReceivedAt time.Time `gorm:"type:timestamp;not null" json:"received_at"`
}
