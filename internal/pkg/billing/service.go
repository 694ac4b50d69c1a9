// Package billing owns the subscription lifecycle: trial creation, charge
// initiation, webhook settlement and access gating. All state changes go
// through the status transition functions in app/models.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"github.com/ArmelNjike/MomoBill/app/repository"
	"github.com/ArmelNjike/MomoBill/internal/pkg/cache"
	"github.com/ArmelNjike/MomoBill/internal/pkg/gateway"
	"github.com/ArmelNjike/MomoBill/internal/pkg/plans"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const accessCacheTTL = 60 * time.Second

// Service drives the subscription state machine against the payment ledger
// and the aggregator gateway.
type Service struct {
	subs        repository.SubscriptionRepository
	payments    repository.PaymentRepository
	notifs      repository.NotificationRepository
	gw          Gateway
	callbackURL string

	now      func() time.Time
	useCache bool
}

// NewService creates a billing service from injected repositories and gateway.
func NewService(repos *repository.Repositories, gw Gateway, callbackURL string) *Service {
	return &Service{
		subs:        repos.Subscription,
		payments:    repos.Payment,
		notifs:      repos.Notification,
		gw:          gw,
		callbackURL: callbackURL,
		now:         time.Now,
		useCache:    true,
	}
}

func accessCacheKey(userID string) string {
	return "billing:access:" + userID
}

func (s *Service) invalidateAccess(userID string) {
	if !s.useCache {
		return
	}
	if err := cache.Delete(accessCacheKey(userID)); err != nil {
		log.Warnf("[Billing] failed to invalidate access cache for user %s: %v", userID, err)
	}
}

// Initiate opens a TRIAL subscription for a user. The duplicate check is a
// read-then-insert; two simultaneous signups for the same user can race it.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*models.Subscription, error) {
	plan, ok := plans.Get(in.PlanID)
	if !ok {
		return nil, ErrPlanNotFound
	}

	if _, err := s.subs.FindCurrentByUser(in.UserID); err == nil {
		return nil, ErrDuplicateSubscription
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}

	if !s.gw.CheckAvailability(ctx, in.Channel) {
		return nil, ErrChannelOffline
	}

	now := s.now()
	trialEnd := now.AddDate(0, 0, plan.TrialDays)
	sub := &models.Subscription{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		PlanID:           plan.ID,
		Amount:           plan.Amount,
		Currency:         plan.Currency,
		Channel:          in.Channel,
		Phone:            in.Phone,
		Status:           models.SubscriptionTrial,
		PeriodStart:      now,
		CurrentPeriodEnd: trialEnd,
		NextChargeDue:    trialEnd,
		Attempts:         0,
	}
	if err := s.subs.Create(sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.invalidateAccess(in.UserID)
	return sub, nil
}

// Get returns the last-known-good state of a subscription.
func (s *Service) Get(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// HasAccess reports whether the user currently gets product access. A user
// with no subscription record has none. Results are cached briefly; every
// lifecycle transition invalidates the cached value.
func (s *Service) HasAccess(ctx context.Context, userID string) (bool, error) {
	key := accessCacheKey(userID)
	if s.useCache {
		if v, err := cache.Get(key); err == nil {
			return v == "1", nil
		}
	}

	sub, err := s.subs.FindCurrentByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.cacheAccess(key, false)
			return false, nil
		}
		return false, err
	}

	granted := sub.GrantsAccess(s.now())
	s.cacheAccess(key, granted)
	return granted, nil
}

func (s *Service) cacheAccess(key string, granted bool) {
	if !s.useCache {
		return
	}
	v := "0"
	if granted {
		v = "1"
	}
	if err := cache.Set(key, v, accessCacheTTL); err != nil {
		log.Warnf("[Billing] failed to cache access result: %v", err)
	}
}

// ChargeSubscription creates a PENDING payment for one billing cycle and
// submits the charge. On submission success the subscription moves to
// AWAITING_PAYMENT with its attempt counter incremented; on submission
// failure the payment is marked GATEWAY_FAILED and the counter is left
// untouched, so the next sweep retries.
func (s *Service) ChargeSubscription(ctx context.Context, sub *models.Subscription) (*models.Payment, error) {
	if sub.Status == models.SubscriptionCanceled {
		return nil, ErrSubscriptionCanceled
	}
	if sub.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	payment := &models.Payment{
		ID:             uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Channel:        sub.Channel,
		Phone:          sub.Phone,
		Status:         models.PaymentPending,
		AttemptNumber:  sub.Attempts + 1,
		InitiatedAt:    now,
	}
	if err := s.payments.Create(payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	res, err := s.gw.RequestCharge(ctx, gateway.ChargeRequest{
		Phone:    sub.Phone,
		Amount:   sub.Amount,
		Currency: sub.Currency,
		Channel:  sub.Channel,
		Callback: s.callbackURL,
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"user_id":         sub.UserID,
		},
	})
	if err != nil {
		payment.Status = models.PaymentGatewayFailed
		if uerr := s.payments.Update(payment); uerr != nil {
			log.Errorf("[Billing] failed to mark payment %s gateway-failed: %v", payment.ID, uerr)
		}
		return payment, fmt.Errorf("charge submission: %w", err)
	}

	payment.Reference = &res.Reference
	if st := models.PaymentStatus(strings.ToUpper(strings.TrimSpace(res.Status))); st.Valid() {
		payment.Status = st
	}
	if err := s.payments.Update(payment); err != nil {
		return payment, fmt.Errorf("persist gateway reference: %w", err)
	}

	if sub.Status != models.SubscriptionAwaitingPayment {
		if err := sub.Transition(models.SubscriptionAwaitingPayment); err != nil {
			return payment, err
		}
	}
	sub.Attempts++
	if err := s.subs.Update(sub); err != nil {
		return payment, fmt.Errorf("persist subscription: %w", err)
	}

	s.invalidateAccess(sub.UserID)
	return payment, nil
}

// ChargeNow is the on-demand charge trigger for a single subscription.
func (s *Service) ChargeNow(ctx context.Context, subscriptionID string) (*ChargeOutcome, error) {
	sub, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if !s.gw.CheckAvailability(ctx, sub.Channel) {
		return nil, ErrChannelOffline
	}

	payment, err := s.ChargeSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}

	out := &ChargeOutcome{PaymentID: payment.ID, Status: string(payment.Status)}
	if payment.Reference != nil {
		out.Reference = *payment.Reference
	}
	return out, nil
}

// Cancel terminates a subscription immediately with the given reason.
func (s *Service) Cancel(ctx context.Context, subscriptionID, reason string) (*models.Subscription, error) {
	sub, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := sub.Transition(models.SubscriptionCanceled); err != nil {
		return nil, err
	}
	now := s.now()
	sub.CanceledAt = &now
	sub.CancellationReason = reason
	if err := s.subs.Update(sub); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}
	s.invalidateAccess(sub.UserID)
	return sub, nil
}

// ListPayments returns the charge history for a user, newest first.
func (s *Service) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	return s.payments.ListByUser(userID)
}

// PollPaymentStatus asks the aggregator for the current status of a charge.
func (s *Service) PollPaymentStatus(ctx context.Context, reference string) (string, error) {
	return s.gw.PaymentStatus(ctx, reference)
}

// VerifyWebhook checks the HMAC signature on a raw delivery before any
// parsing happens.
func (s *Service) VerifyWebhook(payload []byte, signatureHeader string) bool {
	return s.gw.VerifySignature(payload, signatureHeader)
}

// webhookPayload is the shape of an aggregator charge-outcome notification.
type webhookPayload struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Metadata  struct {
		SubscriptionID string `json:"subscription_id"`
		UserID         string `json:"user_id"`
	} `json:"metadata"`
}

// HandleWebhook applies one signature-verified charge-outcome notification.
// The caller must have verified the signature already; this method implements
// everything after that: orphan handling, idempotent settlement, audit
// logging and the subscription transition.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte) (*WebhookResult, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	payment, err := s.payments.GetByReference(payload.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No charge initiated by this system; acknowledge and move on.
			return &WebhookResult{Outcome: WebhookOutcomeOrphan}, nil
		}
		return nil, fmt.Errorf("payment lookup: %w", err)
	}

	// Idempotent settlement: a SUCCESS payment never changes again, no
	// matter how many duplicate deliveries arrive.
	if payment.Status == models.PaymentSuccess {
		return &WebhookResult{Outcome: WebhookOutcomeDuplicate, PaymentID: payment.ID}, nil
	}

	now := s.now()
	if err := s.payments.AppendWebhookLog(payment.ID, string(rawBody), now); err != nil {
		return nil, fmt.Errorf("append webhook log: %w", err)
	}

	status := models.PaymentStatus(strings.ToUpper(strings.TrimSpace(payload.Status)))
	if !status.Valid() || !payment.Status.CanTransition(status) {
		// Unknown or illegal status: the payload is kept for audit, nothing
		// else moves.
		return &WebhookResult{Outcome: WebhookOutcomeRecorded, PaymentID: payment.ID}, nil
	}

	payment.Status = status
	payment.CompletedAt = &now
	if err := s.payments.Update(payment); err != nil {
		return nil, fmt.Errorf("persist payment outcome: %w", err)
	}

	subscriptionID := payload.Metadata.SubscriptionID
	if subscriptionID == "" {
		subscriptionID = payment.SubscriptionID
	}
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] webhook for payment %s references missing subscription %s", payment.ID, subscriptionID)
			return &WebhookResult{Outcome: WebhookOutcomeRecorded, PaymentID: payment.ID}, nil
		}
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}

	result := &WebhookResult{Outcome: WebhookOutcomeRecorded, PaymentID: payment.ID, SubscriptionID: sub.ID}

	switch status {
	case models.PaymentSuccess:
		plan, ok := plans.Get(sub.PlanID)
		if !ok {
			// A paid charge against an unknown plan is a configuration
			// error; surface it instead of guessing an interval.
			return nil, fmt.Errorf("%w: subscription %s references plan %q", ErrPlanNotFound, sub.ID, sub.PlanID)
		}
		if err := sub.Transition(models.SubscriptionActive); err != nil {
			log.Warnf("[Billing] settlement for %s arrived in state %s: %v", sub.ID, sub.Status, err)
			return result, nil
		}
		newEnd := now.AddDate(0, 0, plan.IntervalDays)
		sub.CurrentPeriodEnd = newEnd
		sub.NextChargeDue = newEnd
		sub.LastPaymentRef = &payload.Reference
		if err := s.subs.Update(sub); err != nil {
			return nil, fmt.Errorf("persist subscription renewal: %w", err)
		}
		s.invalidateAccess(sub.UserID)
		s.notifyPaymentSuccess(sub.UserID)
		result.Outcome = WebhookOutcomeActivated

	case models.PaymentFailed, models.PaymentTimeout:
		if err := sub.Transition(models.SubscriptionPastDue); err != nil {
			log.Warnf("[Billing] failure webhook for %s arrived in state %s: %v", sub.ID, sub.Status, err)
			return result, nil
		}
		// No date change: the next sweep retries this subscription.
		if err := s.subs.Update(sub); err != nil {
			return nil, fmt.Errorf("persist past-due transition: %w", err)
		}
		s.invalidateAccess(sub.UserID)
		result.Outcome = WebhookOutcomePastDue
	}

	return result, nil
}

// notifyPaymentSuccess writes a best-effort user notification. Its failure is
// logged and never escalated.
func (s *Service) notifyPaymentSuccess(userID string) {
	err := s.notifs.Create(&models.Notification{
		UserID:  userID,
		Kind:    models.NotificationKindPaymentSuccess,
		Message: "Paiement reçu, votre abonnement est actif",
	})
	if err != nil {
		log.Warnf("[Billing] failed to write payment notification for user %s: %v", userID, err)
	}
}

// ListNotifications returns a user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.notifs.ListByUser(userID)
}

// MarkNotificationRead marks one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id uint) error {
	return s.notifs.MarkRead(id)
}
