package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/logicaltax/backend/internal/domain"
)

const subscriptionColumns = `id, user_id, status, price_id, cancel_at_period_end, current_period_end, created_at, updated_at, synced_at`

// SubscriptionRepository stores the local copy of provider subscriptions.
// Rows are keyed by the provider's subscription id and are never deleted.
type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindByID returns the record with the given provider id, or nil if none.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// FindLatestByUser returns the user's authoritative record. Rows that grant
// access rank first (active or trialing, then canceled but still paid up),
// then the one paid through the latest instant, then the most recently
// changed. A late event for an old subscription cannot hide a live one.
func (r *SubscriptionRepository) FindLatestByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE user_id = $1
		ORDER BY
			CASE
				WHEN status IN ('active', 'trialing') THEN 0
				WHEN status = 'canceled' AND current_period_end > NOW() THEN 1
				ELSE 2
			END,
			current_period_end DESC NULLS LAST,
			updated_at DESC
		LIMIT 1
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// Upsert writes the full record, replacing every provider-owned column of an
// existing row with the same id. updated_at only moves when a column changes;
// synced_at always does.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, status, price_id, cancel_at_period_end, current_period_end, created_at, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			price_id = EXCLUDED.price_id,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = CASE
				WHEN (subscriptions.user_id, subscriptions.status, subscriptions.price_id,
				      subscriptions.cancel_at_period_end, subscriptions.current_period_end)
				     IS DISTINCT FROM
				     (EXCLUDED.user_id, EXCLUDED.status, EXCLUDED.price_id,
				      EXCLUDED.cancel_at_period_end, EXCLUDED.current_period_end)
				THEN NOW() ELSE subscriptions.updated_at
			END,
			synced_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, string(sub.Status), sub.PriceID, sub.CancelAtPeriodEnd, sub.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// UpdateFields refreshes the provider-owned columns of an existing row and
// marks it synced. A replay of identical values leaves updated_at alone.
// It never inserts; the returned bool reports whether a row matched.
func (r *SubscriptionRepository) UpdateFields(ctx context.Context, id string, f domain.SubscriptionFields) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, price_id = $3, cancel_at_period_end = $4, current_period_end = $5,
			updated_at = CASE
				WHEN (status, price_id, cancel_at_period_end, current_period_end)
				     IS DISTINCT FROM ($2::text, $3::text, $4::boolean, $5::timestamptz)
				THEN NOW() ELSE updated_at
			END,
			synced_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, string(f.Status), f.PriceID, f.CancelAtPeriodEnd, f.CurrentPeriodEnd)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListStale returns up to limit non-terminal records not synced since olderThan.
func (r *SubscriptionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status NOT IN ('canceled', 'incomplete_expired') AND synced_at < $1
		ORDER BY synced_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stale subscriptions: %w", err)
	}
	return subs, nil
}

// CountActive counts records currently in an access-granting status.
func (r *SubscriptionRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status IN ('active', 'trialing')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var status string
	err := row.Scan(
		&sub.ID, &sub.UserID, &status, &sub.PriceID, &sub.CancelAtPeriodEnd,
		&sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt, &sub.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}
