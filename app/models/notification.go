package models

import (
	"time"
)

const (
	NotificationKindPaymentSuccess = "payment_success"
)

// Notification is a user-facing record written best-effort on billing events.
// Failure to write one never fails the triggering operation.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Kind      string    `gorm:"type:varchar(50);not null" json:"kind"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
