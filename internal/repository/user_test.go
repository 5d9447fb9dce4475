package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewUserRepository(mock), mock
}

func TestUserRepository_SetStripeCustomerID(t *testing.T) {
	t.Run("writes when changed", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND stripe_customer_id IS DISTINCT FROM $2`)).
			WithArgs("u1", "cus_1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		changed, err := repo.SetStripeCustomerID(context.Background(), "u1", "cus_1")
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("no-op when already linked", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(`stripe_customer_id IS DISTINCT FROM $2`)).
			WithArgs("u1", "cus_1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		changed, err := repo.SetStripeCustomerID(context.Background(), "u1", "cus_1")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestUserRepository_IsAdmin(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = 'admin')`)).
		WithArgs("admin-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	admin, err := repo.IsAdmin(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestUserRepository_FindByEmail(t *testing.T) {
	columns := []string{"id", "email", "full_name", "password", "role", "stripe_customer_id", "created_at", "updated_at"}

	t.Run("found", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
			WithArgs("a@example.com").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("u1", "a@example.com", "A", "hash", "user", strPtr("cus_1"), now, now))

		u, err := repo.FindByEmail(context.Background(), "a@example.com")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "cus_1", *u.StripeCustomerID)
		assert.False(t, u.IsAdmin())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows(columns))

		u, err := repo.FindByEmail(context.Background(), "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}
