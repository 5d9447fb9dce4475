package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature is returned by ParseWebhook when the payload was not
	// signed with the deployment's shared secret.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrMalformedEvent is returned when a verified payload cannot be decoded.
	ErrMalformedEvent = errors.New("payment: malformed webhook event")
	// ErrNotFound is returned when the provider has no such object.
	ErrNotFound = errors.New("payment: object not found")
)

// Provider is the contract the billing core needs from a payment provider.
type Provider interface {
	// RetrieveCheckoutSession fetches a checkout session by id.
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	// RetrieveSubscription fetches the live state of a subscription by id.
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)
	// ParseWebhook verifies the signature and decodes the event.
	ParseWebhook(payload []byte, signature string) (Event, error)
	// CreateCheckoutSession starts a hosted checkout for the given user.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
}

const PaymentStatusPaid = "paid"

// CheckoutSession is the provider's record of a checkout attempt.
type CheckoutSession struct {
	ID             string
	PaymentStatus  string
	SubscriptionID string
	CustomerID     string
	// UserID is the user id embedded in the session metadata, empty if absent.
	UserID string
}

// Paid reports whether the session was paid and produced a subscription.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.PaymentStatus == PaymentStatusPaid && s.SubscriptionID != ""
}

// Subscription is the provider's live view of a subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	UserID            string
}

// CheckoutRequest describes a checkout to start.
type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string
	SuccessURL string
	CancelURL  string
}

// CheckoutLink is where the user is sent to pay.
type CheckoutLink struct {
	SessionID string
	URL       string
}

// Event is a verified billing event. The concrete type is one of
// CheckoutCompleted, SubscriptionUpdated, SubscriptionDeleted or Unhandled.
type Event interface {
	// Kind is a short label used in logs and metrics.
	Kind() string
	event()
}

type CheckoutCompleted struct {
	EventID        string
	SessionID      string
	SubscriptionID string
	CustomerID     string
	UserID         string
}

type SubscriptionUpdated struct {
	EventID      string
	Subscription Subscription
}

type SubscriptionDeleted struct {
	EventID      string
	Subscription Subscription
}

// Unhandled is an event type the billing core ignores.
type Unhandled struct {
	EventID string
	Type    string
}

func (CheckoutCompleted) Kind() string   { return "checkout_completed" }
func (SubscriptionUpdated) Kind() string { return "subscription_updated" }
func (SubscriptionDeleted) Kind() string { return "subscription_deleted" }
func (Unhandled) Kind() string           { return "unhandled" }

func (CheckoutCompleted) event()   {}
func (SubscriptionUpdated) event() {}
func (SubscriptionDeleted) event() {}
func (Unhandled) event()           {}
