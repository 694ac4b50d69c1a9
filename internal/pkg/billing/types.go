package billing

import (
	"context"
	"errors"

	"github.com/ArmelNjike/MomoBill/internal/pkg/gateway"
)

var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateSubscription = errors.New("user already has an active subscription")
	ErrChannelOffline        = errors.New("payment channel unavailable")
	ErrInvalidAmount         = errors.New("invalid charge amount")
	ErrSubscriptionCanceled  = errors.New("subscription is canceled")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
)

// Gateway is the slice of the aggregator client the billing service needs.
type Gateway interface {
	CheckAvailability(ctx context.Context, channel string) bool
	RequestCharge(ctx context.Context, in gateway.ChargeRequest) (*gateway.ChargeResult, error)
	PaymentStatus(ctx context.Context, reference string) (string, error)
	VerifySignature(payload []byte, signatureHeader string) bool
}

// InitiateInput is the request to open a new subscription.
type InitiateInput struct {
	UserID  string
	Phone   string
	Channel string
	PlanID  string
}

// ChargeOutcome reports a synchronous charge submission.
type ChargeOutcome struct {
	PaymentID string `json:"payment_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Webhook outcomes. They describe what a delivery did, not whether the
// request succeeded; all of them are acknowledged with 200.
const (
	WebhookOutcomeOrphan    = "orphan"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeRecorded  = "recorded"
	WebhookOutcomeActivated = "activated"
	WebhookOutcomePastDue   = "past_due"
)

// WebhookResult is what applying one verified webhook delivery did.
type WebhookResult struct {
	Outcome        string `json:"outcome"`
	PaymentID      string `json:"payment_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}
