package service

import (
	"context"
	"time"

	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/lock"
	"github.com/logicaltax/backend/internal/metrics"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/rs/zerolog/log"
)

// SubscriptionStore is the billing record store used by the billing services.
type SubscriptionStore interface {
	FindByID(ctx context.Context, id string) (*domain.Subscription, error)
	FindLatestByUser(ctx context.Context, userID string) (*domain.Subscription, error)
	Upsert(ctx context.Context, sub *domain.Subscription) error
	UpdateFields(ctx context.Context, id string, f domain.SubscriptionFields) (bool, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Subscription, error)
	CountActive(ctx context.Context) (int, error)
}

// AdminChecker tells whether a user bypasses the paywall.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AccessResolver decides whether a user may read paid content.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, userID, checkoutSessionID string) domain.AccessDecision
}

// Decision sources, used as the metrics label.
const (
	sourceAdmin    = "admin"
	sourceLocal    = "local"
	sourceRefresh  = "provider_refresh"
	sourceCheckout = "checkout_session"
	sourceNone     = "none"
	sourceBypass   = "bypass"
)

// AccessService reconciles the local billing record with the payment provider.
type AccessService struct {
	subs     SubscriptionStore
	admins   AdminChecker
	provider payment.Provider
	locker   lock.Locker
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time
}

func NewAccessService(subs SubscriptionStore, admins AdminChecker, provider payment.Provider, locker lock.Locker, m *metrics.Metrics, providerTimeout time.Duration) *AccessService {
	if providerTimeout <= 0 {
		providerTimeout = 5 * time.Second
	}
	return &AccessService{
		subs:     subs,
		admins:   admins,
		provider: provider,
		locker:   locker,
		metrics:  m,
		timeout:  providerTimeout,
		now:      time.Now,
	}
}

// ResolveAccess returns Granted when the user is an admin, when the local
// record grants, or when the provider confirms a granting state. Every
// failure along the way ends in Denied rather than an error.
func (s *AccessService) ResolveAccess(ctx context.Context, userID, checkoutSessionID string) domain.AccessDecision {
	decision, source := s.resolve(ctx, userID, checkoutSessionID)
	s.metrics.AccessDecision(string(decision), source)
	return decision
}

func (s *AccessService) resolve(ctx context.Context, userID, checkoutSessionID string) (domain.AccessDecision, string) {
	if userID == "" {
		return domain.AccessDenied, sourceNone
	}

	admin, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("admin check failed; treating as non-admin")
	} else if admin {
		return domain.AccessGranted, sourceAdmin
	}

	record, err := s.subs.FindLatestByUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("subscription lookup failed; treating as absent")
		record = nil
	}

	if record.Decide(s.now()).Granted() {
		return domain.AccessGranted, sourceLocal
	}

	if record != nil && s.refreshRecord(ctx, record).Granted() {
		return domain.AccessGranted, sourceRefresh
	}

	if checkoutSessionID != "" && s.confirmCheckout(ctx, userID, checkoutSessionID).Granted() {
		return domain.AccessGranted, sourceCheckout
	}

	return domain.AccessDenied, sourceNone
}

// refreshRecord re-reads a denying record from the provider and persists any
// drift so later checks can decide locally.
func (s *AccessService) refreshRecord(ctx context.Context, record *domain.Subscription) domain.AccessDecision {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	live, err := s.provider.RetrieveSubscription(ctx, record.ID)
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", record.ID).Msg("provider refresh failed")
		return domain.AccessDenied
	}

	fields := fieldsFromProvider(live)
	if !fields.Equal(record.Fields()) {
		s.withLock(ctx, record.ID, func(ctx context.Context) {
			if _, err := s.subs.UpdateFields(ctx, record.ID, fields); err != nil {
				log.Warn().Err(err).Str("subscription_id", record.ID).Msg("failed to persist refreshed subscription")
			}
		})
	}

	return domain.DecideAccess(fields.Status, fields.CurrentPeriodEnd, s.now())
}

// confirmCheckout covers the window between a successful checkout and the
// webhook that records it.
func (s *AccessService) confirmCheckout(ctx context.Context, userID, sessionID string) domain.AccessDecision {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cs, err := s.provider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("checkout session lookup failed")
		return domain.AccessDenied
	}
	if !cs.Paid() {
		return domain.AccessDenied
	}
	if cs.UserID != "" && cs.UserID != userID {
		log.Warn().
			Str("session_id", sessionID).
			Str("user_id", userID).
			Str("session_user_id", cs.UserID).
			Msg("checkout session belongs to another user")
		return domain.AccessDenied
	}

	live, err := s.provider.RetrieveSubscription(ctx, cs.SubscriptionID)
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", cs.SubscriptionID).Msg("subscription lookup failed")
		return domain.AccessDenied
	}

	fields := fieldsFromProvider(live)
	decision := domain.DecideAccess(fields.Status, fields.CurrentPeriodEnd, s.now())
	if !decision.Granted() {
		return decision
	}

	sub := recordFromFields(cs.SubscriptionID, userID, fields)
	writeThrough := func(ctx context.Context) {
		if err := s.subs.Upsert(ctx, sub); err != nil {
			log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("failed to write through confirmed subscription")
		}
	}
	if !s.withLock(ctx, sub.ID, writeThrough) {
		// The upsert replaces the whole row by key, so it may run unlocked.
		// The lock wait may have used up ctx.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		writeThrough(wctx)
	}
	return decision
}

// withLock runs fn under the subscription lock and reports whether it ran.
// fn is skipped when the lock cannot be taken in time.
func (s *AccessService) withLock(ctx context.Context, subscriptionID string, fn func(context.Context)) bool {
	if s.locker == nil {
		fn(ctx)
		return true
	}
	release, err := s.locker.Acquire(ctx, subscriptionID)
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", subscriptionID).Msg("subscription busy")
		return false
	}
	defer release()
	fn(ctx)
	return true
}

// OpenAccess grants every request. It replaces AccessService when access
// checks are switched off for a deployment.
type OpenAccess struct {
	metrics *metrics.Metrics
}

func NewOpenAccess(m *metrics.Metrics) *OpenAccess {
	return &OpenAccess{metrics: m}
}

func (o *OpenAccess) ResolveAccess(_ context.Context, _, _ string) domain.AccessDecision {
	o.metrics.AccessDecision(string(domain.AccessGranted), sourceBypass)
	return domain.AccessGranted
}

func fieldsFromProvider(live *payment.Subscription) domain.SubscriptionFields {
	f := domain.SubscriptionFields{
		Status:            domain.SubscriptionStatus(live.Status),
		CancelAtPeriodEnd: live.CancelAtPeriodEnd,
		CurrentPeriodEnd:  live.CurrentPeriodEnd,
	}
	if live.PriceID != "" {
		price := live.PriceID
		f.PriceID = &price
	}
	return f
}

func recordFromFields(id, userID string, f domain.SubscriptionFields) *domain.Subscription {
	return &domain.Subscription{
		ID:                id,
		UserID:            userID,
		Status:            f.Status,
		PriceID:           f.PriceID,
		CancelAtPeriodEnd: f.CancelAtPeriodEnd,
		CurrentPeriodEnd:  f.CurrentPeriodEnd,
	}
}
