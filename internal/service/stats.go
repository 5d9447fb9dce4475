package service

import (
	"context"

	"github.com/logicaltax/backend/internal/domain"
)

type counter func(ctx context.Context) (int, error)

// StatsService builds the admin dashboard summary.
type StatsService struct {
	users      func(ctx context.Context, role string) (int, error)
	entries    counter
	categories counter
	active     counter
}

func NewStatsService(
	users func(ctx context.Context, role string) (int, error),
	entries, categories, activeSubscriptions func(ctx context.Context) (int, error),
) *StatsService {
	return &StatsService{users: users, entries: entries, categories: categories, active: activeSubscriptions}
}

func (s *StatsService) Get(ctx context.Context) (*domain.Stats, error) {
	var st domain.Stats
	var err error

	if st.Users, err = s.users(ctx, domain.RoleUser); err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	if st.Entries, err = s.entries(ctx); err != nil {
		return nil, domain.ErrInternal("failed to count entries", err)
	}
	if st.Categories, err = s.categories(ctx); err != nil {
		return nil, domain.ErrInternal("failed to count categories", err)
	}
	if st.ActiveSubscriptions, err = s.active(ctx); err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	return &st, nil
}
