package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataUserID is the metadata key carrying our user id on checkout
// sessions and subscriptions.
const metadataUserID = "userId"

// StripeConfig configures a StripeProvider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	HTTPTimeout   time.Duration
	// APIURL overrides the Stripe API base URL. Empty means api.stripe.com.
	APIURL string
}

// StripeProvider implements Provider using the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	priceID       string
}

// NewStripeProvider creates a StripeProvider with its own API client, so no
// package-level Stripe key is set.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	backends := stripe.NewBackends(httpClient)
	if cfg.APIURL != "" {
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        httpClient,
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}

	return &StripeProvider{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
	}
}

func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("retrieve checkout session", err)
	}

	out := &CheckoutSession{
		ID:            cs.ID,
		PaymentStatus: string(cs.PaymentStatus),
		UserID:        cs.Metadata[metadataUserID],
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	return out, nil
}

func (p *StripeProvider) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("retrieve subscription", err)
	}

	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UserID:            sub.Metadata[metadataUserID],
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	// Since the 2025-03 API the billing period lives on the item.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if p.priceID == "" {
		return nil, errors.New("payment: no stripe price configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          map[string]string{metadataUserID: req.UserID},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: req.UserID},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	cs, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError("create checkout session", err)
	}
	return &CheckoutLink{SessionID: cs.ID, URL: cs.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// API version mismatches are ignored; only the fields we read matter.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	if strings.TrimSpace(signature) == "" || p.webhookSecret == "" {
		return nil, ErrInvalidSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return decodeStripeEvent(evt.ID, string(evt.Type), evt.Data)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decodeStripeEvent(id, typ string, data *stripe.EventData) (Event, error) {
	switch typ {
	case "checkout.session.completed":
		var cs wireCheckoutSession
		if err := decodeEventData(data, &cs); err != nil {
			return nil, err
		}
		userID := cs.Metadata[metadataUserID]
		if userID == "" {
			userID = cs.ClientReferenceID
		}
		return CheckoutCompleted{
			EventID:        id,
			SessionID:      cs.ID,
			SubscriptionID: cs.Subscription,
			CustomerID:     cs.Customer,
			UserID:         userID,
		}, nil
	case "customer.subscription.updated":
		var sub wireSubscription
		if err := decodeEventData(data, &sub); err != nil {
			return nil, err
		}
		return SubscriptionUpdated{EventID: id, Subscription: sub.toSubscription()}, nil
	case "customer.subscription.deleted":
		var sub wireSubscription
		if err := decodeEventData(data, &sub); err != nil {
			return nil, err
		}
		return SubscriptionDeleted{EventID: id, Subscription: sub.toSubscription()}, nil
	default:
		return Unhandled{EventID: id, Type: typ}, nil
	}
}

func decodeEventData(data *stripe.EventData, v any) error {
	if data == nil || len(data.Raw) == 0 {
		return fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// wireCheckoutSession and wireSubscription decode only the event fields we
// need, tolerating payloads from older API versions.
type wireCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type wireSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (w wireSubscription) toSubscription() Subscription {
	out := Subscription{
		ID:                w.ID,
		CustomerID:        w.Customer,
		Status:            w.Status,
		CancelAtPeriodEnd: w.CancelAtPeriodEnd,
		UserID:            w.Metadata[metadataUserID],
	}
	periodEnd := w.CurrentPeriodEnd
	if len(w.Items.Data) > 0 {
		item := w.Items.Data[0]
		out.PriceID = item.Price.ID
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	out.CurrentPeriodEnd = unixTime(periodEnd)
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("payment: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("payment: %s: %w", op, err)
}
