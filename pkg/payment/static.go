package payment

import (
	"context"
	"strings"
	"time"
)

// StaticProvider stands in for a real provider on deployments without one.
// Every checkout is paid immediately and every subscription is active for
// another period. It never accepts webhooks.
type StaticProvider struct {
	period time.Duration
	now    func() time.Time
}

// NewStaticProvider creates a StaticProvider whose subscriptions run for period.
func NewStaticProvider(period time.Duration) *StaticProvider {
	if period <= 0 {
		period = 30 * 24 * time.Hour
	}
	return &StaticProvider{period: period, now: time.Now}
}

func (p *StaticProvider) RetrieveCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	userID := strings.TrimPrefix(id, staticSessionPrefix)
	return &CheckoutSession{
		ID:             id,
		PaymentStatus:  PaymentStatusPaid,
		SubscriptionID: staticSubscriptionPrefix + userID,
		UserID:         userID,
	}, nil
}

func (p *StaticProvider) RetrieveSubscription(_ context.Context, id string) (*Subscription, error) {
	end := p.now().Add(p.period).UTC()
	return &Subscription{
		ID:               id,
		Status:           "active",
		CurrentPeriodEnd: &end,
		UserID:           strings.TrimPrefix(id, staticSubscriptionPrefix),
	}, nil
}

func (p *StaticProvider) ParseWebhook(_ []byte, _ string) (Event, error) {
	return nil, ErrInvalidSignature
}

// CreateCheckoutSession skips payment and links straight to the success URL.
func (p *StaticProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	id := staticSessionPrefix + req.UserID
	return &CheckoutLink{
		SessionID: id,
		URL:       strings.ReplaceAll(req.SuccessURL, CheckoutSessionPlaceholder, id),
	}, nil
}

const (
	staticSessionPrefix      = "cs_static_"
	staticSubscriptionPrefix = "sub_static_"
)

// CheckoutSessionPlaceholder is substituted by the provider with the session id
// in success URLs.
const CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"
