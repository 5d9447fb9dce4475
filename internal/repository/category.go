package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/logicaltax/backend/internal/domain"
)

const categoryColumns = `id, name, slug, description, sort_order, created_at`

type CategoryRepository struct {
	db DBTX
}

func NewCategoryRepository(db DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns all categories in display order.
func (r *CategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []*domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*domain.Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE slug = $1`, slug))
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

// Create inserts a category. A nil sort order appends it after the last one.
func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category, sortOrder *int) (*domain.Category, error) {
	query := `
		INSERT INTO categories (id, name, slug, description, sort_order, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM categories)), $6)
		RETURNING ` + categoryColumns
	created, err := scanCategory(r.db.QueryRow(ctx, query, c.ID, c.Name, c.Slug, c.Description, sortOrder, c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return created, nil
}

// Update rewrites a category and returns it, or nil if it does not exist.
func (r *CategoryRepository) Update(ctx context.Context, c *domain.Category, sortOrder *int) (*domain.Category, error) {
	query := `
		UPDATE categories SET name = $2, slug = $3, description = $4, sort_order = COALESCE($5, sort_order)
		WHERE id = $1
		RETURNING ` + categoryColumns
	updated, err := scanCategory(r.db.QueryRow(ctx, query, c.ID, c.Name, c.Slug, c.Description, sortOrder))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return updated, nil
}

// Delete removes a category; entries in it become uncategorised.
func (r *CategoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CategoryRepository) Move(ctx context.Context, id string, up bool) (bool, error) {
	return swapSortOrder(ctx, r.db, "categories", id, up)
}

func (r *CategoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func scanCategory(row pgx.Row) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.SortOrder, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
