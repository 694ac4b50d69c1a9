package models

import (
	"fmt"
	"time"
)

// SubscriptionStatus is the closed set of lifecycle states a subscription can
// be in. Transitions go through CanTransition so arbitrary writes to the
// status column cannot skip the state machine.
type SubscriptionStatus string

const (
	SubscriptionTrial           SubscriptionStatus = "TRIAL"
	SubscriptionActive          SubscriptionStatus = "ACTIVE"
	SubscriptionAwaitingPayment SubscriptionStatus = "AWAITING_PAYMENT"
	SubscriptionPastDue         SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled        SubscriptionStatus = "CANCELED"
)

// CancellationReasonMaxAttempts is recorded by the scheduler termination pass.
const CancellationReasonMaxAttempts = "Failed to collect payment after 5 attempts"

// MaxChargeAttempts is the dunning limit before a subscription is canceled.
const MaxChargeAttempts = 5

// Valid reports whether s is a member of the closed status set.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionTrial, SubscriptionActive, SubscriptionAwaitingPayment,
		SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. CANCELED is terminal.
func (s SubscriptionStatus) CanTransition(next SubscriptionStatus) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case SubscriptionTrial, SubscriptionActive, SubscriptionPastDue:
		return next == SubscriptionAwaitingPayment || next == SubscriptionCanceled
	case SubscriptionAwaitingPayment:
		return next == SubscriptionActive || next == SubscriptionPastDue || next == SubscriptionCanceled
	case SubscriptionCanceled:
		return false
	}
	return false
}

// Subscription is one user's recurring billing agreement. Rows are never
// deleted; CANCELED is terminal.
type Subscription struct {
	ID                 string             `gorm:"type:char(36);primaryKey" json:"id"`
	UserID             string             `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PlanID             string             `gorm:"type:varchar(64);not null" json:"plan_id"`
	Amount             int64              `gorm:"not null" json:"amount"`
	Currency           string             `gorm:"type:varchar(8);not null" json:"currency"`
	Channel            string             `gorm:"type:varchar(32);not null" json:"channel"`
	Phone              string             `gorm:"type:varchar(32);not null" json:"phone"`
	Status             SubscriptionStatus `gorm:"type:varchar(32);not null;index:idx_subscriptions_status_due,priority:1" json:"status"`
	PeriodStart        time.Time          `gorm:"type:timestamp;not null" json:"period_start"`
	CurrentPeriodEnd   time.Time          `gorm:"type:timestamp;not null" json:"current_period_end"`
	NextChargeDue      time.Time          `gorm:"type:timestamp;not null;index:idx_subscriptions_status_due,priority:2" json:"next_charge_due"`
	LastPaymentRef     *string            `gorm:"type:varchar(191);default:null" json:"last_payment_ref,omitempty"`
	Attempts           int                `gorm:"not null;default:0" json:"attempts"`
	CanceledAt         *time.Time         `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CancellationReason string             `gorm:"type:varchar(191)" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transition validates and applies a status change in memory. Persisting the
// change is the caller's job.
func (s *Subscription) Transition(next SubscriptionStatus) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("invalid subscription transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return nil
}

// GrantsAccess reports whether this subscription currently grants product
// access: ACTIVE, or the paid/trial period has not yet ended. The latter
// covers the grace window while a renewal attempt is outstanding.
func (s *Subscription) GrantsAccess(now time.Time) bool {
	if s.Status == SubscriptionActive {
		return true
	}
	return s.CurrentPeriodEnd.After(now)
}
