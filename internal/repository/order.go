package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when a write violates a unique constraint.
var ErrDuplicate = errors.New("repository: duplicate key")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// swapSortOrder exchanges the sort order of row id with its nearest
// neighbour above (up) or below it in table. It reports whether a
// neighbour existed. table must be a trusted identifier.
func swapSortOrder(ctx context.Context, db DBTX, table, id string, up bool) (bool, error) {
	cmp, dir := ">", "ASC"
	if up {
		cmp, dir = "<", "DESC"
	}
	query := fmt.Sprintf(`
		WITH cur AS (
			SELECT id, sort_order FROM %[1]s WHERE id = $1
		), nb AS (
			SELECT t.id, t.sort_order FROM %[1]s t, cur
			WHERE t.sort_order %[2]s cur.sort_order
			ORDER BY t.sort_order %[3]s
			LIMIT 1
		)
		UPDATE %[1]s SET sort_order = CASE WHEN %[1]s.id = cur.id THEN nb.sort_order ELSE cur.sort_order END
		FROM cur, nb
		WHERE %[1]s.id IN (cur.id, nb.id)
	`, table, cmp, dir)

	tag, err := db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to reorder %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}
