package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"github.com/ArmelNjike/MomoBill/internal/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSubscriptionRepo struct {
	subs map[string]*models.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[string]*models.Subscription)}
}

func (r *fakeSubscriptionRepo) Create(sub *models.Subscription) error {
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeSubscriptionRepo) GetByID(id string) (*models.Subscription, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeSubscriptionRepo) FindCurrentByUser(userID string) (*models.Subscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status != models.SubscriptionCanceled {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSubscriptionRepo) Update(sub *models.Subscription) error {
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeSubscriptionRepo) ListDueForCharge(now time.Time, maxAttempts int) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.subs {
		switch sub.Status {
		case models.SubscriptionTrial, models.SubscriptionActive, models.SubscriptionPastDue:
		default:
			continue
		}
		if sub.NextChargeDue.After(now) || sub.Attempts >= maxAttempts {
			continue
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) CancelDueExceeded(now time.Time, maxAttempts int, reason string) (int64, error) {
	var n int64
	for _, sub := range r.subs {
		switch sub.Status {
		case models.SubscriptionTrial, models.SubscriptionActive,
			models.SubscriptionPastDue, models.SubscriptionAwaitingPayment:
		default:
			continue
		}
		if sub.NextChargeDue.After(now) || sub.Attempts < maxAttempts {
			continue
		}
		sub.Status = models.SubscriptionCanceled
		t := now
		sub.CanceledAt = &t
		sub.CancellationReason = reason
		n++
	}
	return n, nil
}

type fakePaymentRepo struct {
	payments map[string]*models.Payment
	logs     []models.PaymentWebhookLog
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) Create(p *models.Payment) error {
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakePaymentRepo) GetByID(id string) (*models.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) GetByReference(reference string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.Reference != nil && *p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePaymentRepo) Update(p *models.Payment) error {
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakePaymentRepo) AppendWebhookLog(paymentID, rawPayload string, receivedAt time.Time) error {
	r.logs = append(r.logs, models.PaymentWebhookLog{
		PaymentID:  paymentID,
		RawPayload: rawPayload,
		ReceivedAt: receivedAt,
	})
	return nil
}

func (r *fakePaymentRepo) ListByUser(userID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeNotificationRepo struct {
	created    []models.Notification
	failCreate bool
}

func (r *fakeNotificationRepo) Create(n *models.Notification) error {
	if r.failCreate {
		return errors.New("notification store down")
	}
	r.created = append(r.created, *n)
	return nil
}

func (r *fakeNotificationRepo) ListByUser(userID string) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range r.created {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkRead(id uint) error { return nil }

type fakeGateway struct {
	offline     bool
	chargeErr   error
	chargeRes   gateway.ChargeResult
	pollStatus  string
	chargeCalls []gateway.ChargeRequest
}

func (g *fakeGateway) CheckAvailability(ctx context.Context, channel string) bool {
	return !g.offline
}

func (g *fakeGateway) RequestCharge(ctx context.Context, in gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.chargeCalls = append(g.chargeCalls, in)
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	res := g.chargeRes
	return &res, nil
}

func (g *fakeGateway) PaymentStatus(ctx context.Context, reference string) (string, error) {
	return g.pollStatus, nil
}

func (g *fakeGateway) VerifySignature(payload []byte, signatureHeader string) bool {
	return true
}

type serviceFixture struct {
	svc    *Service
	subs   *fakeSubscriptionRepo
	pays   *fakePaymentRepo
	notifs *fakeNotificationRepo
	gw     *fakeGateway
	now    time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := &serviceFixture{
		subs:   newFakeSubscriptionRepo(),
		pays:   newFakePaymentRepo(),
		notifs: &fakeNotificationRepo{},
		gw:     &fakeGateway{chargeRes: gateway.ChargeResult{Reference: "R1", Status: "PENDING"}},
		now:    now,
	}
	f.svc = &Service{
		subs:        f.subs,
		payments:    f.pays,
		notifs:      f.notifs,
		gw:          f.gw,
		callbackURL: "https://billing.example.test/webhooks/nkwa",
		now:         func() time.Time { return now },
	}
	return f
}

func TestInitiateCreatesTrial(t *testing.T) {
	f := newServiceFixture(t)

	sub, err := f.svc.Initiate(context.Background(), InitiateInput{
		UserID:  "user-1",
		Phone:   "237670000001",
		Channel: "mtn",
		PlanID:  "premium_monthly",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionTrial, sub.Status)
	assert.Equal(t, int64(399), sub.Amount)
	assert.Equal(t, "XAF", sub.Currency)
	assert.Equal(t, 0, sub.Attempts)
	assert.Equal(t, f.now.AddDate(0, 0, 7), sub.CurrentPeriodEnd)
	assert.Equal(t, sub.CurrentPeriodEnd, sub.NextChargeDue)
}

func TestInitiateRejectsSecondCurrentSubscription(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Initiate(context.Background(), InitiateInput{UserID: "user-1", Phone: "237670000001", Channel: "mtn", PlanID: "premium_monthly"})
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), InitiateInput{UserID: "user-1", Phone: "237670000001", Channel: "mtn", PlanID: "premium_monthly"})
	assert.ErrorIs(t, err, ErrDuplicateSubscription)
}

func TestInitiateUnknownPlan(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Initiate(context.Background(), InitiateInput{UserID: "user-1", Phone: "237670000001", Channel: "mtn", PlanID: "gold_yearly"})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestInitiateChannelOffline(t *testing.T) {
	f := newServiceFixture(t)
	f.gw.offline = true

	_, err := f.svc.Initiate(context.Background(), InitiateInput{UserID: "user-1", Phone: "237670000001", Channel: "mtn", PlanID: "premium_monthly"})
	assert.ErrorIs(t, err, ErrChannelOffline)
}

func (f *serviceFixture) seedDueSubscription(t *testing.T) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:               "sub-1",
		UserID:           "user-1",
		PlanID:           "premium_monthly",
		Amount:           399,
		Currency:         "XAF",
		Channel:          "mtn",
		Phone:            "237670000001",
		Status:           models.SubscriptionTrial,
		PeriodStart:      f.now.AddDate(0, 0, -7),
		CurrentPeriodEnd: f.now.Add(-time.Hour),
		NextChargeDue:    f.now.Add(-time.Hour),
		Attempts:         0,
	}
	require.NoError(t, f.subs.Create(sub))
	return sub
}

func TestChargeNowInitiatesCharge(t *testing.T) {
	f := newServiceFixture(t)
	f.seedDueSubscription(t)

	out, err := f.svc.ChargeNow(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "R1", out.Reference)
	assert.Equal(t, "PENDING", out.Status)

	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionAwaitingPayment, sub.Status)
	assert.Equal(t, 1, sub.Attempts)

	payment, err := f.pays.GetByID(out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, 1, payment.AttemptNumber)
	require.NotNil(t, payment.Reference)
	assert.Equal(t, "R1", *payment.Reference)

	require.Len(t, f.gw.chargeCalls, 1)
	assert.Equal(t, int64(399), f.gw.chargeCalls[0].Amount)
	assert.Equal(t, "sub-1", f.gw.chargeCalls[0].Metadata["subscription_id"])
	assert.Equal(t, "https://billing.example.test/webhooks/nkwa", f.gw.chargeCalls[0].Callback)
}

func TestChargeSubscriptionGatewayFailure(t *testing.T) {
	f := newServiceFixture(t)
	sub := f.seedDueSubscription(t)
	f.gw.chargeErr = errors.New("gateway error: all channels busy")

	_, err := f.svc.ChargeSubscription(context.Background(), sub)
	require.Error(t, err)

	// The attempt counter moves only on submission success.
	stored, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrial, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	require.Len(t, f.pays.payments, 1)
	for _, p := range f.pays.payments {
		assert.Equal(t, models.PaymentGatewayFailed, p.Status)
	}
}

func TestChargeSubscriptionRejectsCanceled(t *testing.T) {
	f := newServiceFixture(t)
	sub := f.seedDueSubscription(t)
	sub.Status = models.SubscriptionCanceled
	require.NoError(t, f.subs.Update(sub))

	_, err := f.svc.ChargeSubscription(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubscriptionCanceled)
}

func webhookBody(t *testing.T, reference, status, subscriptionID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"reference": reference,
		"status":    status,
		"metadata":  map[string]string{"subscription_id": subscriptionID, "user_id": "user-1"},
	})
	require.NoError(t, err)
	return body
}

func (f *serviceFixture) seedAwaitingPayment(t *testing.T) {
	t.Helper()
	f.seedDueSubscription(t)
	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	_, err = f.svc.ChargeSubscription(context.Background(), sub)
	require.NoError(t, err)
}

func TestHandleWebhookSuccessActivates(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "SUCCESS", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeActivated, res.Outcome)

	payment, err := f.pays.GetByReference("R1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, payment.Status)
	require.NotNil(t, payment.CompletedAt)

	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, f.now.AddDate(0, 0, 30), sub.CurrentPeriodEnd)
	assert.Equal(t, sub.CurrentPeriodEnd, sub.NextChargeDue)
	require.NotNil(t, sub.LastPaymentRef)
	assert.Equal(t, "R1", *sub.LastPaymentRef)

	require.Len(t, f.notifs.created, 1)
	assert.Equal(t, models.NotificationKindPaymentSuccess, f.notifs.created[0].Kind)
	require.Len(t, f.pays.logs, 1)
}

func TestHandleWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	body := webhookBody(t, "R1", "SUCCESS", "sub-1")
	_, err := f.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)

	subBefore, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	logsBefore := len(f.pays.logs)

	res, err := f.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeDuplicate, res.Outcome)

	subAfter, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, subBefore, subAfter)
	assert.Len(t, f.pays.logs, logsBefore)
	assert.Len(t, f.notifs.created, 1)
}

func TestHandleWebhookFailureGoesPastDue(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	dueBefore, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "FAILED", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomePastDue, res.Outcome)

	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, sub.Status)
	// The next sweep retries: billing dates do not move on failure.
	assert.Equal(t, dueBefore.NextChargeDue, sub.NextChargeDue)
	assert.Equal(t, dueBefore.CurrentPeriodEnd, sub.CurrentPeriodEnd)
}

func TestHandleWebhookTimeoutGoesPastDue(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "TIMEOUT", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomePastDue, res.Outcome)
}

func TestHandleWebhookOrphanIsAcknowledged(t *testing.T) {
	f := newServiceFixture(t)

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "never-issued", "SUCCESS", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeOrphan, res.Outcome)
	assert.Empty(t, f.pays.logs)
}

func TestHandleWebhookUnknownStatusIsStoredOnly(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "UNDER_REVIEW", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeRecorded, res.Outcome)

	payment, err := f.pays.GetByReference("R1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	require.Len(t, f.pays.logs, 1)

	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionAwaitingPayment, sub.Status)
}

func TestHandleWebhookMissingPlanIsSurfaced(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)

	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	sub.PlanID = "retired_plan"
	require.NoError(t, f.subs.Update(sub))

	_, err = f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "SUCCESS", "sub-1"))
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestHandleWebhookNotificationFailureTolerated(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAwaitingPayment(t)
	f.notifs.failCreate = true

	res, err := f.svc.HandleWebhook(context.Background(), webhookBody(t, "R1", "SUCCESS", "sub-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeActivated, res.Outcome)
}

func TestHasAccess(t *testing.T) {
	f := newServiceFixture(t)

	ok, err := f.svc.HasAccess(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok, "a user with no subscription record has no access")

	f.seedDueSubscription(t)
	sub, err := f.subs.GetByID("sub-1")
	require.NoError(t, err)
	sub.Status = models.SubscriptionActive
	require.NoError(t, f.subs.Update(sub))

	ok, err = f.svc.HasAccess(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelIsTerminal(t *testing.T) {
	f := newServiceFixture(t)
	f.seedDueSubscription(t)

	sub, err := f.svc.Cancel(context.Background(), "sub-1", "operator request")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.Equal(t, "operator request", sub.CancellationReason)

	_, err = f.svc.Cancel(context.Background(), "sub-1", "again")
	require.Error(t, err)
}
