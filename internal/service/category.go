package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/repository"
)

// CategoryStore is the persistence CategoryService needs.
type CategoryStore interface {
	List(ctx context.Context) ([]*domain.Category, error)
	FindByID(ctx context.Context, id string) (*domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Category, error)
	Create(ctx context.Context, c *domain.Category, sortOrder *int) (*domain.Category, error)
	Update(ctx context.Context, c *domain.Category, sortOrder *int) (*domain.Category, error)
	Delete(ctx context.Context, id string) (bool, error)
	Move(ctx context.Context, id string, up bool) (bool, error)
}

// CategoryService manages the knowledge base categories.
type CategoryService struct {
	categories CategoryStore
	validate   *validator.Validate
}

func NewCategoryService(categories CategoryStore) *CategoryService {
	return &CategoryService{categories: categories, validate: validator.New()}
}

func (s *CategoryService) List(ctx context.Context) ([]*domain.Category, error) {
	cats, err := s.categories.List(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list categories", err)
	}
	if cats == nil {
		cats = []*domain.Category{}
	}
	return cats, nil
}

// Get looks a category up by id, falling back to its slug.
func (s *CategoryService) Get(ctx context.Context, idOrSlug string) (*domain.Category, error) {
	c, err := s.categories.FindByID(ctx, idOrSlug)
	if err == nil && c == nil {
		c, err = s.categories.FindBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, domain.ErrInternal("failed to find category", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound("category not found")
	}
	return c, nil
}

func (s *CategoryService) Create(ctx context.Context, req *domain.CategoryRequest) (*domain.Category, error) {
	if err := s.normalize(req); err != nil {
		return nil, err
	}

	c := &domain.Category{
		ID:          domain.NewID(),
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	created, err := s.categories.Create(ctx, c, req.SortOrder)
	if err != nil {
		return nil, categoryWriteError(err, "failed to create category")
	}
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, id string, req *domain.CategoryRequest) (*domain.Category, error) {
	if err := s.normalize(req); err != nil {
		return nil, err
	}

	c := &domain.Category{ID: id, Name: req.Name, Slug: req.Slug, Description: req.Description}
	updated, err := s.categories.Update(ctx, c, req.SortOrder)
	if err != nil {
		return nil, categoryWriteError(err, "failed to update category")
	}
	if updated == nil {
		return nil, domain.ErrNotFound("category not found")
	}
	return updated, nil
}

func (s *CategoryService) Delete(ctx context.Context, id string) error {
	ok, err := s.categories.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete category", err)
	}
	if !ok {
		return domain.ErrNotFound("category not found")
	}
	return nil
}

// Move swaps the category with its neighbour. Moving past either end is a no-op.
func (s *CategoryService) Move(ctx context.Context, id string, req *domain.MoveRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrValidation(err.Error())
	}
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to find category", err)
	}
	if c == nil {
		return domain.ErrNotFound("category not found")
	}
	if _, err := s.categories.Move(ctx, id, req.Direction == "up"); err != nil {
		return domain.ErrInternal("failed to move category", err)
	}
	return nil
}

func (s *CategoryService) normalize(req *domain.CategoryRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			req.Description = nil
		} else {
			req.Description = &d
		}
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrValidation(err.Error())
	}
	return nil
}

func categoryWriteError(err error, msg string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return domain.ErrConflict("category slug already exists")
	}
	return domain.ErrInternal(msg, err)
}
