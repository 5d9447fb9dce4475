package domain

import "time"

// SubscriptionStatus mirrors the payment provider's subscription status.
// Values outside the constants below are stored verbatim and deny access.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// IsTerminal reports whether the provider will never move the subscription
// out of this status on its own.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// AccessDecision is the binary outcome of reconciling a user's billing state.
type AccessDecision string

const (
	AccessGranted AccessDecision = "granted"
	AccessDenied  AccessDecision = "denied"
)

// Granted is a convenience for callers branching on the decision.
func (d AccessDecision) Granted() bool {
	return d == AccessGranted
}

// Subscription is the local billing record, keyed by the provider's
// subscription id. Several rows may exist per user; one that grants access
// wins over any that does not. SyncedAt is the last provider sync.
type Subscription struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Status            SubscriptionStatus `json:"status"`
	PriceID           *string            `json:"priceId,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time         `json:"currentPeriodEnd,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	SyncedAt          time.Time          `json:"syncedAt"`
}

// SubscriptionFields are the provider-owned columns refreshed by billing
// events. UserID is deliberately absent: update events never re-attribute.
type SubscriptionFields struct {
	Status            SubscriptionStatus
	PriceID           *string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

// Fields returns the provider-owned part of the record.
func (s *Subscription) Fields() SubscriptionFields {
	return SubscriptionFields{
		Status:            s.Status,
		PriceID:           s.PriceID,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
	}
}

// Equal reports whether two field sets would persist identically.
func (f SubscriptionFields) Equal(o SubscriptionFields) bool {
	if f.Status != o.Status || f.CancelAtPeriodEnd != o.CancelAtPeriodEnd {
		return false
	}
	if (f.PriceID == nil) != (o.PriceID == nil) || (f.PriceID != nil && *f.PriceID != *o.PriceID) {
		return false
	}
	if (f.CurrentPeriodEnd == nil) != (o.CurrentPeriodEnd == nil) {
		return false
	}
	return f.CurrentPeriodEnd == nil || f.CurrentPeriodEnd.Equal(*o.CurrentPeriodEnd)
}

// DecideAccess applies the access rule to a status and period end.
// A canceled subscription keeps access until its paid-through instant; a
// missing period end never implies access.
func DecideAccess(status SubscriptionStatus, periodEnd *time.Time, now time.Time) AccessDecision {
	switch status {
	case StatusActive, StatusTrialing:
		return AccessGranted
	case StatusCanceled:
		if periodEnd != nil && now.Before(*periodEnd) {
			return AccessGranted
		}
	}
	return AccessDenied
}

// Decide applies DecideAccess to a possibly missing record.
func (s *Subscription) Decide(now time.Time) AccessDecision {
	if s == nil {
		return AccessDenied
	}
	return DecideAccess(s.Status, s.CurrentPeriodEnd, now)
}

// SubscriptionStatusResponse is returned by the payment confirmation endpoint.
type SubscriptionStatusResponse struct {
	Active bool               `json:"active"`
	Status SubscriptionStatus `json:"status"`
}

// ConfirmPaymentRequest carries the checkout session the client returned from.
type ConfirmPaymentRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=255"`
}

// CheckoutResponse returns the URL to redirect the user to for payment.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
}
