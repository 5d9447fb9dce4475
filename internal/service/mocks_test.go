package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RetrieveCheckoutSession(ctx context.Context, id string) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}

func (m *mockProvider) RetrieveSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Subscription), args.Error(1)
}

func (m *mockProvider) ParseWebhook(payload []byte, signature string) (payment.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(payment.Event), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutLink), args.Error(1)
}

type mockAdmins struct {
	mock.Mock
}

func (m *mockAdmins) IsAdmin(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// memStore is an in-memory SubscriptionStore with the same upsert and
// update-only semantics as the postgres repository.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]*domain.Subscription
	clock   func() time.Time
	writes  int
	failAll error
}

func newMemStore(clock func() time.Time) *memStore {
	return &memStore{rows: map[string]*domain.Subscription{}, clock: clock}
}

func (s *memStore) put(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sub.ID] = &sub
}

func (s *memStore) get(id string) *domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) FindByID(_ context.Context, id string) (*domain.Subscription, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	return s.get(id), nil
}

func (s *memStore) FindLatestByUser(_ context.Context, userID string) (*domain.Subscription, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	var latest *domain.Subscription
	for _, r := range s.rows {
		if r.UserID != userID {
			continue
		}
		if latest == nil || ranksBefore(r, latest, now) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *memStore) Upsert(_ context.Context, sub *domain.Subscription) error {
	if s.failAll != nil {
		return s.failAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	now := s.clock()
	row := *sub
	row.CreatedAt, row.UpdatedAt, row.SyncedAt = now, now, now
	if existing, ok := s.rows[sub.ID]; ok {
		row.CreatedAt = existing.CreatedAt
		if existing.UserID == sub.UserID && existing.Fields().Equal(sub.Fields()) {
			row.UpdatedAt = existing.UpdatedAt
		}
	}
	s.rows[sub.ID] = &row
	return nil
}

func (s *memStore) UpdateFields(_ context.Context, id string, f domain.SubscriptionFields) (bool, error) {
	if s.failAll != nil {
		return false, s.failAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	s.writes++
	now := s.clock()
	if !r.Fields().Equal(f) {
		r.UpdatedAt = now
	}
	r.Status = f.Status
	r.PriceID = f.PriceID
	r.CancelAtPeriodEnd = f.CancelAtPeriodEnd
	r.CurrentPeriodEnd = f.CurrentPeriodEnd
	r.SyncedAt = now
	return true, nil
}

func (s *memStore) ListStale(_ context.Context, olderThan time.Time, limit int) ([]*domain.Subscription, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Subscription
	for _, r := range s.rows {
		if r.Status == domain.StatusCanceled || r.Status == domain.StatusIncompleteExpired {
			continue
		}
		if r.SyncedAt.Before(olderThan) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncedAt.Before(out[j].SyncedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// accessRank orders rows the way FindLatestByUser does in SQL.
func accessRank(r *domain.Subscription, now time.Time) int {
	switch {
	case r.Status == domain.StatusActive || r.Status == domain.StatusTrialing:
		return 0
	case r.Status == domain.StatusCanceled && r.CurrentPeriodEnd != nil && r.CurrentPeriodEnd.After(now):
		return 1
	}
	return 2
}

func ranksBefore(a, b *domain.Subscription, now time.Time) bool {
	if ra, rb := accessRank(a, now), accessRank(b, now); ra != rb {
		return ra < rb
	}
	switch {
	case a.CurrentPeriodEnd != nil && b.CurrentPeriodEnd == nil:
		return true
	case a.CurrentPeriodEnd == nil && b.CurrentPeriodEnd != nil:
		return false
	case a.CurrentPeriodEnd != nil && !a.CurrentPeriodEnd.Equal(*b.CurrentPeriodEnd):
		return a.CurrentPeriodEnd.After(*b.CurrentPeriodEnd)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func (s *memStore) CountActive(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.Status == domain.StatusActive || r.Status == domain.StatusTrialing {
			n++
		}
	}
	return n, nil
}

// memUsers implements BillingUsers with conditional customer writes.
type memUsers struct {
	mu             sync.Mutex
	users          map[string]*domain.User
	customerWrites int
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: map[string]*domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memUsers) SetStripeCustomerID(_ context.Context, id, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
		return false, nil
	}
	m.customerWrites++
	u.StripeCustomerID = &customerID
	return true, nil
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// fixedClock returns a clock pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
