package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecideAccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		status    SubscriptionStatus
		periodEnd *time.Time
		want      AccessDecision
	}{
		{"active without period end", StatusActive, nil, AccessGranted},
		{"active with lapsed period end", StatusActive, &past, AccessGranted},
		{"trialing", StatusTrialing, nil, AccessGranted},
		{"canceled before period end", StatusCanceled, &future, AccessGranted},
		{"canceled at period end", StatusCanceled, &now, AccessDenied},
		{"canceled after period end", StatusCanceled, &past, AccessDenied},
		{"canceled without period end", StatusCanceled, nil, AccessDenied},
		{"past due", StatusPastDue, &future, AccessDenied},
		{"incomplete", StatusIncomplete, &future, AccessDenied},
		{"unpaid", StatusUnpaid, nil, AccessDenied},
		{"unknown provider status", SubscriptionStatus("frozen"), &future, AccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecideAccess(tt.status, tt.periodEnd, now))
		})
	}
}

func TestSubscriptionDecide(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("no record denies", func(t *testing.T) {
		t.Parallel()
		var sub *Subscription
		assert.Equal(t, AccessDenied, sub.Decide(now))
	})

	t.Run("record delegates to status rule", func(t *testing.T) {
		t.Parallel()
		end := now.Add(24 * time.Hour)
		sub := &Subscription{ID: "sub_1", Status: StatusCanceled, CurrentPeriodEnd: &end}
		assert.True(t, sub.Decide(now).Granted())
	})
}

func TestSubscriptionFieldsEqual(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sameEnd := end.In(time.FixedZone("UTC+2", 2*3600))
	price := "price_1"
	otherPrice := "price_2"

	base := SubscriptionFields{Status: StatusActive, PriceID: &price, CurrentPeriodEnd: &end}

	assert.True(t, base.Equal(SubscriptionFields{Status: StatusActive, PriceID: &price, CurrentPeriodEnd: &sameEnd}))
	assert.False(t, base.Equal(SubscriptionFields{Status: StatusCanceled, PriceID: &price, CurrentPeriodEnd: &end}))
	assert.False(t, base.Equal(SubscriptionFields{Status: StatusActive, PriceID: &otherPrice, CurrentPeriodEnd: &end}))
	assert.False(t, base.Equal(SubscriptionFields{Status: StatusActive, CurrentPeriodEnd: &end}))
	assert.False(t, base.Equal(SubscriptionFields{Status: StatusActive, PriceID: &price}))
	assert.False(t, base.Equal(SubscriptionFields{Status: StatusActive, PriceID: &price, CurrentPeriodEnd: &end, CancelAtPeriodEnd: true}))
}
