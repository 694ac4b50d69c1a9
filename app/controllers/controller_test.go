package controllers

import (
	"context"
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"github.com/ArmelNjike/MomoBill/app/repository"
	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/ArmelNjike/MomoBill/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const testWebhookSecret = "test-webhook-secret"

type stubSubRepo struct {
	subs map[string]*models.Subscription
}

func (r *stubSubRepo) Create(sub *models.Subscription) error {
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *stubSubRepo) GetByID(id string) (*models.Subscription, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *stubSubRepo) FindCurrentByUser(userID string) (*models.Subscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status != models.SubscriptionCanceled {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSubRepo) Update(sub *models.Subscription) error {
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *stubSubRepo) ListDueForCharge(now time.Time, maxAttempts int) ([]models.Subscription, error) {
	return nil, nil
}

func (r *stubSubRepo) CancelDueExceeded(now time.Time, maxAttempts int, reason string) (int64, error) {
	return 0, nil
}

type stubPayRepo struct {
	payments map[string]*models.Payment
	logs     int
}

func (r *stubPayRepo) Create(p *models.Payment) error {
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *stubPayRepo) GetByID(id string) (*models.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubPayRepo) GetByReference(reference string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.Reference != nil && *p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubPayRepo) Update(p *models.Payment) error {
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *stubPayRepo) AppendWebhookLog(paymentID, rawPayload string, receivedAt time.Time) error {
	r.logs++
	return nil
}

func (r *stubPayRepo) ListByUser(userID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubNotifRepo struct{}

func (r *stubNotifRepo) Create(n *models.Notification) error { return nil }
func (r *stubNotifRepo) ListByUser(userID string) ([]models.Notification, error) {
	return nil, nil
}
func (r *stubNotifRepo) MarkRead(id uint) error { return nil }

type stubChargeGateway struct {
	offline bool
}

func (g *stubChargeGateway) CheckAvailability(ctx context.Context, channel string) bool {
	return !g.offline
}

func (g *stubChargeGateway) RequestCharge(ctx context.Context, in gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{Reference: "ref-ctrl-1", Status: "PENDING"}, nil
}

func (g *stubChargeGateway) PaymentStatus(ctx context.Context, reference string) (string, error) {
	return "PENDING", nil
}

func (g *stubChargeGateway) VerifySignature(payload []byte, signatureHeader string) bool {
	return gateway.VerifyWebhookSignature(payload, signatureHeader, testWebhookSecret)
}

type controllerFixture struct {
	app  *fiber.App
	subs *stubSubRepo
	pays *stubPayRepo
	gw   *stubChargeGateway
}

func newControllerFixture() *controllerFixture {
	f := &controllerFixture{
		subs: &stubSubRepo{subs: make(map[string]*models.Subscription)},
		pays: &stubPayRepo{payments: make(map[string]*models.Payment)},
		gw:   &stubChargeGateway{},
	}
	repos := &repository.Repositories{
		Subscription: f.subs,
		Payment:      f.pays,
		Notification: &stubNotifRepo{},
	}
	InitializeBillingController(billing.NewService(repos, f.gw, "https://billing.example.test/webhooks/nkwa"))

	f.app = fiber.New()
	f.app.Post("/webhooks/nkwa", HandlePaymentWebhook)
	f.app.Post("/api/v1/subscriptions", HandleCreateSubscription)
	f.app.Get("/api/v1/subscriptions/:id", HandleGetSubscription)
	f.app.Post("/api/v1/subscriptions/:id/charge", HandleChargeSubscription)
	f.app.Post("/api/v1/subscriptions/:id/cancel", HandleCancelSubscription)
	f.app.Get("/api/v1/users/:userID/access", HandleCheckAccess)
	f.app.Get("/api/v1/users/:userID/payments", HandleListUserPayments)
	return f
}
