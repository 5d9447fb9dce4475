package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/lock"
	"github.com/logicaltax/backend/internal/metrics"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type accessFixture struct {
	svc      *AccessService
	store    *memStore
	admins   *mockAdmins
	provider *mockProvider
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()
	f := &accessFixture{
		store:    newMemStore(fixedClock(testNow)),
		admins:   &mockAdmins{},
		provider: &mockProvider{},
	}
	f.svc = NewAccessService(f.store, f.admins, f.provider, lock.NewLocalLocker(), metrics.New(), time.Second)
	f.svc.now = fixedClock(testNow)
	t.Cleanup(func() {
		f.admins.AssertExpectations(t)
		f.provider.AssertExpectations(t)
	})
	return f
}

func (f *accessFixture) notAdmin(userID string) {
	f.admins.On("IsAdmin", mock.Anything, userID).Return(false, nil)
}

func TestResolveAccess_AdminBypass(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.admins.On("IsAdmin", mock.Anything, "admin-1").Return(true, nil)

	got := f.svc.ResolveAccess(context.Background(), "admin-1", "")

	assert.Equal(t, domain.AccessGranted, got)
	assert.Zero(t, f.store.len())
	f.provider.AssertNotCalled(t, "RetrieveSubscription", mock.Anything, mock.Anything)
}

func TestResolveAccess_EmptyUserDenied(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)

	assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "", "cs_test_1"))
	f.admins.AssertNotCalled(t, "IsAdmin", mock.Anything, mock.Anything)
}

func TestResolveAccess_LocalGrantSkipsProvider(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    domain.SubscriptionStatus
		periodEnd *time.Time
	}{
		{"active without period end", domain.StatusActive, nil},
		{"active with past period end", domain.StatusActive, timePtr(testNow.Add(-48 * time.Hour))},
		{"trialing", domain.StatusTrialing, nil},
		{"canceled until future period end", domain.StatusCanceled, timePtr(testNow.Add(time.Hour))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newAccessFixture(t)
			f.notAdmin("u1")
			f.store.put(domain.Subscription{ID: "sub_1", UserID: "u1", Status: tc.status, CurrentPeriodEnd: tc.periodEnd, UpdatedAt: testNow})

			assert.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", ""))
			f.provider.AssertNotCalled(t, "RetrieveSubscription", mock.Anything, mock.Anything)
		})
	}
}

func TestResolveAccess_DenyingRecordConfirmedByProvider(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    domain.SubscriptionStatus
		periodEnd *time.Time
	}{
		{"canceled with null period end", domain.StatusCanceled, nil},
		{"canceled after period end", domain.StatusCanceled, timePtr(testNow.Add(-time.Minute))},
		{"past due", domain.StatusPastDue, timePtr(testNow.Add(24 * time.Hour))},
		{"unpaid", domain.StatusUnpaid, nil},
		{"incomplete", domain.StatusIncomplete, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newAccessFixture(t)
			f.notAdmin("u1")
			f.store.put(domain.Subscription{ID: "sub_1", UserID: "u1", Status: tc.status, CurrentPeriodEnd: tc.periodEnd, UpdatedAt: testNow})
			f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
				ID:               "sub_1",
				Status:           string(tc.status),
				CurrentPeriodEnd: tc.periodEnd,
			}, nil)

			assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", ""))
			assert.Zero(t, f.store.writes, "unchanged provider state must not be rewritten")
		})
	}
}

func TestResolveAccess_RefreshPersistsDrift(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.notAdmin("u1")
	f.store.put(domain.Subscription{ID: "sub_1", UserID: "u1", Status: domain.StatusPastDue, UpdatedAt: testNow.Add(-time.Hour)})

	periodEnd := testNow.Add(30 * 24 * time.Hour)
	f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
		ID:               "sub_1",
		Status:           "active",
		PriceID:          "price_1",
		CurrentPeriodEnd: &periodEnd,
	}, nil)

	assert.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", ""))

	rec := f.store.get("sub_1")
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Equal(t, "price_1", *rec.PriceID)
	assert.Equal(t, periodEnd, *rec.CurrentPeriodEnd)
	assert.Equal(t, "u1", rec.UserID)
}

func TestResolveAccess_CheckoutSelfHeal(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.notAdmin("u1")

	periodEnd := testNow.Add(30 * 24 * time.Hour)
	f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_test_1").Return(&payment.CheckoutSession{
		ID:             "cs_test_1",
		PaymentStatus:  "paid",
		SubscriptionID: "sub_1",
	}, nil)
	f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
	}, nil)

	got := f.svc.ResolveAccess(context.Background(), "u1", "cs_test_1")
	require.Equal(t, domain.AccessGranted, got)

	rec := f.store.get("sub_1")
	require.NotNil(t, rec)
	assert.Equal(t, "sub_1", rec.ID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, domain.StatusActive, rec.Status)

	// The written-through record now decides locally.
	assert.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", ""))
	f.provider.AssertNumberOfCalls(t, "RetrieveCheckoutSession", 1)
}

func TestResolveAccess_CheckoutFallbackDenials(t *testing.T) {
	t.Parallel()

	t.Run("session unpaid", func(t *testing.T) {
		t.Parallel()
		f := newAccessFixture(t)
		f.notAdmin("u1")
		f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
			ID: "cs_1", PaymentStatus: "unpaid", SubscriptionID: "sub_1",
		}, nil)

		assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
		assert.Zero(t, f.store.len())
	})

	t.Run("session without subscription", func(t *testing.T) {
		t.Parallel()
		f := newAccessFixture(t)
		f.notAdmin("u1")
		f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
			ID: "cs_1", PaymentStatus: "paid",
		}, nil)

		assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
		assert.Zero(t, f.store.len())
	})

	t.Run("session of another user", func(t *testing.T) {
		t.Parallel()
		f := newAccessFixture(t)
		f.notAdmin("u1")
		f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
			ID: "cs_1", PaymentStatus: "paid", SubscriptionID: "sub_1", UserID: "u2",
		}, nil)

		assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
		assert.Zero(t, f.store.len())
	})

	t.Run("live subscription not granting", func(t *testing.T) {
		t.Parallel()
		f := newAccessFixture(t)
		f.notAdmin("u1")
		f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
			ID: "cs_1", PaymentStatus: "paid", SubscriptionID: "sub_1",
		}, nil)
		f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
			ID: "sub_1", Status: "incomplete",
		}, nil)

		assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
		assert.Zero(t, f.store.len(), "denying state is not written through")
	})
}

func TestResolveAccess_ProviderErrorsDeny(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.notAdmin("u1")
	f.store.put(domain.Subscription{ID: "sub_1", UserID: "u1", Status: domain.StatusPastDue, UpdatedAt: testNow})
	f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(nil, context.DeadlineExceeded)
	f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(nil, errors.New("connection reset"))

	assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
	assert.Equal(t, domain.StatusPastDue, f.store.get("sub_1").Status)
}

func TestResolveAccess_CollaboratorFailuresFailClosed(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.admins.On("IsAdmin", mock.Anything, "u1").Return(false, errors.New("db down"))
	f.store.failAll = errors.New("db down")

	assert.Equal(t, domain.AccessDenied, f.svc.ResolveAccess(context.Background(), "u1", ""))
}

func TestResolveAccess_StoreDownStillConfirmsCheckout(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.notAdmin("u1")
	f.store.failAll = errors.New("db down")
	f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
		ID: "cs_1", PaymentStatus: "paid", SubscriptionID: "sub_1", UserID: "u1",
	}, nil)
	f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
		ID: "sub_1", Status: "trialing",
	}, nil)

	assert.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))
}

func TestResolveAccess_HistoricalRowsNeverHideLiveSubscription(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.notAdmin("u1")
	f.store.put(domain.Subscription{ID: "sub_old", UserID: "u1", Status: domain.StatusUnpaid, UpdatedAt: testNow.Add(-72 * time.Hour)})
	f.store.put(domain.Subscription{ID: "sub_new", UserID: "u1", Status: domain.StatusActive, UpdatedAt: testNow.Add(-time.Hour)})

	require.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", ""))

	// A late delete for the old subscription makes it the most recently updated row.
	billing := NewBillingService(f.store, newMemUsers(), f.provider, lock.NewLocalLocker(), nil, time.Second, "")
	ended := testNow.Add(-48 * time.Hour)
	evt := payment.SubscriptionDeleted{EventID: "evt_late", Subscription: payment.Subscription{
		ID: "sub_old", Status: "canceled", CurrentPeriodEnd: &ended,
	}}
	f.provider.On("ParseWebhook", []byte("evt_late"), "sig").Return(evt, nil)
	require.NoError(t, billing.HandleWebhook(context.Background(), []byte("evt_late"), "sig"))
	require.Equal(t, domain.StatusCanceled, f.store.get("sub_old").Status)

	assert.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", ""))
	f.provider.AssertNotCalled(t, "RetrieveSubscription", mock.Anything, mock.Anything)
}

func TestResolveAccess_LatestRecordRanking(t *testing.T) {
	t.Parallel()
	later := testNow.Add(60 * 24 * time.Hour)
	sooner := testNow.Add(24 * time.Hour)

	cases := []struct {
		name string
		rows []domain.Subscription
		want string
	}{
		{"active beats recently touched past_due", []domain.Subscription{
			{ID: "sub_a", Status: domain.StatusActive, UpdatedAt: testNow.Add(-time.Hour)},
			{ID: "sub_b", Status: domain.StatusPastDue, UpdatedAt: testNow},
		}, "sub_a"},
		{"paid-up canceled beats unpaid", []domain.Subscription{
			{ID: "sub_a", Status: domain.StatusUnpaid, CurrentPeriodEnd: &later, UpdatedAt: testNow},
			{ID: "sub_b", Status: domain.StatusCanceled, CurrentPeriodEnd: &sooner, UpdatedAt: testNow.Add(-time.Hour)},
		}, "sub_b"},
		{"later period end among granting rows", []domain.Subscription{
			{ID: "sub_a", Status: domain.StatusTrialing, CurrentPeriodEnd: &sooner, UpdatedAt: testNow},
			{ID: "sub_b", Status: domain.StatusActive, CurrentPeriodEnd: &later, UpdatedAt: testNow.Add(-time.Hour)},
		}, "sub_b"},
		{"most recently updated breaks a tie", []domain.Subscription{
			{ID: "sub_a", Status: domain.StatusPastDue, UpdatedAt: testNow.Add(-time.Hour)},
			{ID: "sub_b", Status: domain.StatusUnpaid, UpdatedAt: testNow},
		}, "sub_b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := newMemStore(fixedClock(testNow))
			for _, r := range tc.rows {
				r.UserID = "u1"
				store.put(r)
			}
			got, err := store.FindLatestByUser(context.Background(), "u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}

// busyLocker never grants the lock.
type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

func TestResolveAccess_CheckoutWritesThroughWhenLockBusy(t *testing.T) {
	t.Parallel()
	f := newAccessFixture(t)
	f.svc.locker = busyLocker{}
	f.notAdmin("u1")
	f.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&payment.CheckoutSession{
		ID: "cs_1", PaymentStatus: "paid", SubscriptionID: "sub_1", UserID: "u1",
	}, nil)
	f.provider.On("RetrieveSubscription", mock.Anything, "sub_1").Return(&payment.Subscription{
		ID: "sub_1", Status: "active",
	}, nil)

	require.Equal(t, domain.AccessGranted, f.svc.ResolveAccess(context.Background(), "u1", "cs_1"))

	rec := f.store.get("sub_1")
	require.NotNil(t, rec, "granted checkout must be persisted before returning")
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, domain.StatusActive, rec.Status)
}

func TestOpenAccess_AlwaysGrants(t *testing.T) {
	t.Parallel()
	o := NewOpenAccess(nil)
	assert.Equal(t, domain.AccessGranted, o.ResolveAccess(context.Background(), "anyone", ""))
}
