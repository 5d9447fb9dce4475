package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/lock"
	"github.com/logicaltax/backend/internal/metrics"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/rs/zerolog/log"
)

// BillingUsers is the slice of the user store the billing flow touches.
type BillingUsers interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) (bool, error)
}

// Webhook processing outcomes, used as the metrics label.
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeMalformed = "malformed"
	outcomeMissing   = "missing_record"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// BillingService keeps the local billing records in step with provider
// events and starts checkouts.
type BillingService struct {
	subs      SubscriptionStore
	users     BillingUsers
	provider  payment.Provider
	locker    lock.Locker
	metrics   *metrics.Metrics
	timeout   time.Duration
	publicURL string
}

func NewBillingService(subs SubscriptionStore, users BillingUsers, provider payment.Provider, locker lock.Locker, m *metrics.Metrics, providerTimeout time.Duration, publicURL string) *BillingService {
	if providerTimeout <= 0 {
		providerTimeout = 5 * time.Second
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &BillingService{
		subs:      subs,
		users:     users,
		provider:  provider,
		locker:    locker,
		metrics:   m,
		timeout:   providerTimeout,
		publicURL: publicURL,
	}
}

// HandleWebhook verifies and applies one provider event. A bad signature is
// a 400 AppError and changes nothing. Events that are verified but unusable
// are logged and acknowledged. Any other error means the provider should
// retry delivery.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrMalformedEvent) {
			log.Warn().Err(err).Msg("webhook: malformed event acknowledged")
			s.metrics.WebhookEvent("unknown", outcomeMalformed)
			return nil
		}
		s.metrics.WebhookEvent("unknown", outcomeRejected)
		return &domain.AppError{Code: http.StatusBadRequest, Message: "invalid signature", Err: err}
	}

	var outcome string
	switch e := evt.(type) {
	case payment.CheckoutCompleted:
		outcome, err = s.applyCheckoutCompleted(ctx, e)
	case payment.SubscriptionUpdated:
		outcome, err = s.applySubscriptionChange(ctx, e.EventID, e.Subscription, "")
	case payment.SubscriptionDeleted:
		outcome, err = s.applySubscriptionChange(ctx, e.EventID, e.Subscription, domain.StatusCanceled)
	default:
		log.Debug().Str("kind", evt.Kind()).Interface("event", evt).Msg("webhook: event ignored")
		outcome = outcomeIgnored
	}

	if err != nil {
		s.metrics.WebhookEvent(evt.Kind(), outcomeFailed)
		return fmt.Errorf("webhook %s: %w", evt.Kind(), err)
	}
	s.metrics.WebhookEvent(evt.Kind(), outcome)
	return nil
}

func (s *BillingService) applyCheckoutCompleted(ctx context.Context, e payment.CheckoutCompleted) (string, error) {
	logger := log.With().Str("event_id", e.EventID).Str("session_id", e.SessionID).Logger()

	if e.UserID == "" || e.SubscriptionID == "" {
		logger.Warn().
			Str("user_id", e.UserID).
			Str("subscription_id", e.SubscriptionID).
			Msg("webhook: checkout completed without user or subscription id")
		return outcomeMalformed, nil
	}

	release, err := s.acquire(ctx, e.SubscriptionID)
	if err != nil {
		return "", err
	}
	defer release()

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	live, err := s.provider.RetrieveSubscription(pctx, e.SubscriptionID)
	cancel()
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			logger.Warn().Err(err).Str("subscription_id", e.SubscriptionID).Msg("webhook: subscription unknown to provider")
			return outcomeMalformed, nil
		}
		return "", err
	}

	sub := recordFromFields(e.SubscriptionID, e.UserID, fieldsFromProvider(live))
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return "", err
	}

	customerID := e.CustomerID
	if customerID == "" {
		customerID = live.CustomerID
	}
	if customerID != "" {
		changed, err := s.users.SetStripeCustomerID(ctx, e.UserID, customerID)
		if err != nil {
			return "", err
		}
		if changed {
			logger.Info().Str("user_id", e.UserID).Str("customer_id", customerID).Msg("linked user to provider customer")
		}
	}

	logger.Info().
		Str("user_id", e.UserID).
		Str("subscription_id", sub.ID).
		Str("status", string(sub.Status)).
		Msg("webhook: subscription recorded from checkout")
	return outcomeProcessed, nil
}

// applySubscriptionChange refreshes an existing record from an update or
// delete event. It never creates records; an unknown id is a checkout event
// that has not arrived yet.
func (s *BillingService) applySubscriptionChange(ctx context.Context, eventID string, live payment.Subscription, fallbackStatus domain.SubscriptionStatus) (string, error) {
	logger := log.With().Str("event_id", eventID).Str("subscription_id", live.ID).Logger()

	if live.ID == "" {
		logger.Warn().Msg("webhook: subscription event without id")
		return outcomeMalformed, nil
	}

	fields := fieldsFromProvider(&live)
	if fields.Status == "" {
		if fallbackStatus == "" {
			logger.Warn().Msg("webhook: subscription event without status")
			return outcomeMalformed, nil
		}
		fields.Status = fallbackStatus
	}

	release, err := s.acquire(ctx, live.ID)
	if err != nil {
		return "", err
	}
	defer release()

	matched, err := s.subs.UpdateFields(ctx, live.ID, fields)
	if err != nil {
		return "", err
	}
	if !matched {
		logger.Warn().Str("status", string(fields.Status)).Msg("webhook: no local record for subscription; skipped")
		return outcomeMissing, nil
	}

	logger.Info().Str("status", string(fields.Status)).Msg("webhook: subscription updated")
	return outcomeProcessed, nil
}

func (s *BillingService) acquire(ctx context.Context, subscriptionID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.locker.Acquire(lctx, subscriptionID)
}

// CreateCheckout starts a hosted checkout for the user and returns where to
// send them.
func (s *BillingService) CreateCheckout(ctx context.Context, userID string) (*domain.CheckoutResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	req := payment.CheckoutRequest{
		UserID:     user.ID,
		Email:      user.Email,
		SuccessURL: s.publicURL + "/qa?success=true&session_id=" + payment.CheckoutSessionPlaceholder,
		CancelURL:  s.publicURL + "/checkout?canceled=true",
	}
	if user.StripeCustomerID != nil {
		req.CustomerID = *user.StripeCustomerID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, domain.ErrInternal("failed to create checkout session", err)
	}
	return &domain.CheckoutResponse{URL: link.URL, SessionID: link.SessionID}, nil
}

// GetSubscription returns the user's authoritative local record, or nil.
func (s *BillingService) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subs.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	return sub, nil
}
