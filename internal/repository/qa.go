package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/logicaltax/backend/internal/domain"
)

const qaSelect = `
	SELECT q.id, q.question_title, q.question_content, q.answer_content, q.category_id, c.name,
	       q.is_published, q.is_free, q.sort_order, q.created_at, q.updated_at
	FROM qa q LEFT JOIN categories c ON c.id = q.category_id
`

var qaOrderBy = map[string]string{
	domain.SortDefault:   `q.sort_order ASC, q.created_at DESC`,
	domain.SortTitleAsc:  `q.question_title ASC, q.sort_order ASC`,
	domain.SortTitleDesc: `q.question_title DESC, q.sort_order ASC`,
	domain.SortCategory:  `c.name ASC NULLS LAST, q.sort_order ASC`,
	domain.SortFreeFirst: `q.is_free DESC, q.sort_order ASC, q.created_at DESC`,
}

// QARepository handles the knowledge base entries.
type QARepository struct {
	db DBTX
}

func NewQARepository(db DBTX) *QARepository {
	return &QARepository{db: db}
}

// ListPublished returns published entries matching q. An empty term matches
// everything; otherwise title, question and answer are searched.
func (r *QARepository) ListPublished(ctx context.Context, q domain.QAQuery) ([]*domain.QA, error) {
	var where []string
	var args []any

	where = append(where, "q.is_published = TRUE")
	if q.CategoryID != "" {
		args = append(args, q.CategoryID)
		where = append(where, fmt.Sprintf("q.category_id = $%d", len(args)))
	}
	if q.Term != "" {
		args = append(args, "%"+escapeLike(q.Term)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(q.question_title ILIKE $%[1]d OR q.question_content ILIKE $%[1]d OR q.answer_content ILIKE $%[1]d)", n))
	}

	order, ok := qaOrderBy[q.Sort]
	if !ok {
		order = qaOrderBy[domain.SortDefault]
	}

	query := qaSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order
	return r.list(ctx, query, args...)
}

// ListFree returns the published entries readable without a subscription.
func (r *QARepository) ListFree(ctx context.Context) ([]*domain.QA, error) {
	query := qaSelect + ` WHERE q.is_published = TRUE AND q.is_free = TRUE ORDER BY q.sort_order ASC, q.created_at DESC`
	return r.list(ctx, query)
}

// ListAll returns every entry regardless of state.
func (r *QARepository) ListAll(ctx context.Context) ([]*domain.QA, error) {
	return r.list(ctx, qaSelect+` ORDER BY q.sort_order ASC, q.created_at DESC`)
}

func (r *QARepository) FindByID(ctx context.Context, id string) (*domain.QA, error) {
	qa, err := scanQA(r.db.QueryRow(ctx, qaSelect+` WHERE q.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find entry: %w", err)
	}
	return qa, nil
}

// CountFree counts free entries other than excludeID.
func (r *QARepository) CountFree(ctx context.Context, excludeID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM qa WHERE is_free = TRUE AND id <> $1`, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count free entries: %w", err)
	}
	return n, nil
}

// Create inserts an entry. A nil sort order appends it after the last one.
func (r *QARepository) Create(ctx context.Context, qa *domain.QA, sortOrder *int) error {
	query := `
		INSERT INTO qa (id, question_title, question_content, answer_content, category_id, is_published, is_free, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM qa)), $9, $9)
	`
	_, err := r.db.Exec(ctx, query,
		qa.ID, qa.QuestionTitle, qa.QuestionContent, qa.AnswerContent, qa.CategoryID,
		qa.IsPublished, qa.IsFree, sortOrder, qa.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// Update rewrites an entry and reports whether it existed.
func (r *QARepository) Update(ctx context.Context, qa *domain.QA, sortOrder *int) (bool, error) {
	query := `
		UPDATE qa SET question_title = $2, question_content = $3, answer_content = $4, category_id = $5,
			is_published = $6, is_free = $7, sort_order = COALESCE($8, sort_order), updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		qa.ID, qa.QuestionTitle, qa.QuestionContent, qa.AnswerContent, qa.CategoryID,
		qa.IsPublished, qa.IsFree, sortOrder,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TogglePublished flips the published flag and returns the new value.
// found is false when the entry does not exist.
func (r *QARepository) TogglePublished(ctx context.Context, id string) (published, found bool, err error) {
	query := `UPDATE qa SET is_published = NOT is_published, updated_at = NOW() WHERE id = $1 RETURNING is_published`
	if err := r.db.QueryRow(ctx, query, id).Scan(&published); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to toggle entry: %w", err)
	}
	return published, true, nil
}

func (r *QARepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM qa WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QARepository) Move(ctx context.Context, id string, up bool) (bool, error) {
	return swapSortOrder(ctx, r.db, "qa", id, up)
}

func (r *QARepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM qa`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (r *QARepository) list(ctx context.Context, query string, args ...any) ([]*domain.QA, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.QA{}
	for rows.Next() {
		qa, err := scanQA(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, qa)
	}
	return entries, rows.Err()
}

func scanQA(row pgx.Row) (*domain.QA, error) {
	var qa domain.QA
	err := row.Scan(
		&qa.ID, &qa.QuestionTitle, &qa.QuestionContent, &qa.AnswerContent, &qa.CategoryID, &qa.CategoryName,
		&qa.IsPublished, &qa.IsFree, &qa.SortOrder, &qa.CreatedAt, &qa.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &qa, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
