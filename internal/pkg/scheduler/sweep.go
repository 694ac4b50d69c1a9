package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ArmelNjike/MomoBill/app/models"
	"github.com/ArmelNjike/MomoBill/app/repository"
	"github.com/ArmelNjike/MomoBill/internal/pkg/billing"
	"github.com/ArmelNjike/MomoBill/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
)

const availabilityCacheTTL = 60 * time.Second

// Report summarizes one sweep.
type Report struct {
	ChargesInitiated      int   `json:"charges_initiated"`
	SubscriptionsCanceled int64 `json:"subscriptions_canceled"`
}

// Sweeper runs the periodic billing passes: initiate charges for due
// subscriptions, then cancel the ones that exhausted their attempts.
type Sweeper struct {
	subs repository.SubscriptionRepository
	svc  *billing.Service
	gw   billing.Gateway

	now      func() time.Time
	useCache bool
}

// NewSweeper builds a sweeper over the shared repositories and gateway.
func NewSweeper(repos *repository.Repositories, svc *billing.Service, gw billing.Gateway) *Sweeper {
	return &Sweeper{
		subs:     repos.Subscription,
		svc:      svc,
		gw:       gw,
		now:      time.Now,
		useCache: true,
	}
}

// Sweep performs the charge pass and the termination pass. A single
// subscription's failure never aborts the batch; only a failure to reach the
// store does.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	now := s.now()
	report := &Report{}

	due, err := s.subs.ListDueForCharge(now, models.MaxChargeAttempts)
	if err != nil {
		return nil, fmt.Errorf("select due subscriptions: %w", err)
	}

	for i := range due {
		sub := &due[i]

		if sub.Amount <= 0 {
			log.Warnf("[Scheduler] subscription %s has non-positive amount %d, skipping", sub.ID, sub.Amount)
			continue
		}
		if !s.channelOnline(ctx, sub.Channel) {
			log.Infof("[Scheduler] channel %s reported offline, skipping subscription %s", sub.Channel, sub.ID)
			continue
		}

		if _, err := s.svc.ChargeSubscription(ctx, sub); err != nil {
			// Recorded on the payment row; the next sweep retries.
			log.Errorf("[Scheduler] charge for subscription %s failed: %v", sub.ID, err)
			continue
		}
		report.ChargesInitiated++
	}

	canceled, err := s.subs.CancelDueExceeded(now, models.MaxChargeAttempts, models.CancellationReasonMaxAttempts)
	if err != nil {
		return report, fmt.Errorf("termination pass: %w", err)
	}
	report.SubscriptionsCanceled = canceled

	return report, nil
}

// channelOnline checks channel health with a short cache so one sweep does
// not hammer the availability endpoint once per subscription. The check
// itself fails open inside the gateway client.
func (s *Sweeper) channelOnline(ctx context.Context, channel string) bool {
	key := "gateway:availability:" + strings.ToLower(strings.TrimSpace(channel))
	if s.useCache {
		if v, err := cache.Get(key); err == nil {
			return v == "online"
		}
	}

	online := s.gw.CheckAvailability(ctx, channel)

	if s.useCache {
		v := "offline"
		if online {
			v = "online"
		}
		if err := cache.Set(key, v, availabilityCacheTTL); err != nil {
			log.Warnf("[Scheduler] failed to cache availability for %s: %v", channel, err)
		}
	}
	return online
}
