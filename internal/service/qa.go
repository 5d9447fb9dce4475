package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/logicaltax/backend/internal/domain"
)

// minSearchRunes is the shortest accepted search term.
const minSearchRunes = 2

// QAStore is the persistence QAService needs.
type QAStore interface {
	ListPublished(ctx context.Context, q domain.QAQuery) ([]*domain.QA, error)
	ListFree(ctx context.Context) ([]*domain.QA, error)
	ListAll(ctx context.Context) ([]*domain.QA, error)
	FindByID(ctx context.Context, id string) (*domain.QA, error)
	CountFree(ctx context.Context, excludeID string) (int, error)
	Create(ctx context.Context, qa *domain.QA, sortOrder *int) error
	Update(ctx context.Context, qa *domain.QA, sortOrder *int) (bool, error)
	TogglePublished(ctx context.Context, id string) (published, found bool, err error)
	Delete(ctx context.Context, id string) (bool, error)
	Move(ctx context.Context, id string, up bool) (bool, error)
}

// CategoryLookup resolves a category id for entry validation.
type CategoryLookup interface {
	FindByID(ctx context.Context, id string) (*domain.Category, error)
}

// QAService manages the knowledge base entries.
type QAService struct {
	entries    QAStore
	categories CategoryLookup
	validate   *validator.Validate
}

func NewQAService(entries QAStore, categories CategoryLookup) *QAService {
	return &QAService{entries: entries, categories: categories, validate: validator.New()}
}

// ListFree returns published free entries. No subscription needed.
func (s *QAService) ListFree(ctx context.Context) ([]*domain.QA, error) {
	items, err := s.entries.ListFree(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list entries", err)
	}
	return items, nil
}

// ListPublished filters and sorts the published entries. A term, when
// given, must be at least two characters after trimming.
func (s *QAService) ListPublished(ctx context.Context, q domain.QAQuery) ([]*domain.QA, error) {
	q.Term = strings.TrimSpace(q.Term)
	q.CategoryID = strings.TrimSpace(q.CategoryID)
	if q.Term != "" && utf8.RuneCountInString(q.Term) < minSearchRunes {
		return nil, domain.ErrBadRequest(fmt.Sprintf("search term must be at least %d characters", minSearchRunes))
	}
	items, err := s.entries.ListPublished(ctx, q)
	if err != nil {
		return nil, domain.ErrInternal("failed to list entries", err)
	}
	return items, nil
}

// Search is ListPublished with a mandatory term.
func (s *QAService) Search(ctx context.Context, q domain.QAQuery) ([]*domain.QA, error) {
	if strings.TrimSpace(q.Term) == "" {
		return nil, domain.ErrBadRequest("search term is required")
	}
	return s.ListPublished(ctx, q)
}

// GetPublished returns a published entry. Unpublished entries are not found.
func (s *QAService) GetPublished(ctx context.Context, id string) (*domain.QA, error) {
	qa, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !qa.IsPublished {
		return nil, domain.ErrNotFound("entry not found")
	}
	return qa, nil
}

// IsFree reports whether id is a published free entry. Lookup errors count
// as not free.
func (s *QAService) IsFree(ctx context.Context, id string) bool {
	qa, err := s.entries.FindByID(ctx, id)
	if err != nil || qa == nil {
		return false
	}
	return qa.IsPublished && qa.IsFree
}

func (s *QAService) ListAll(ctx context.Context) ([]*domain.QA, error) {
	items, err := s.entries.ListAll(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list entries", err)
	}
	return items, nil
}

func (s *QAService) Get(ctx context.Context, id string) (*domain.QA, error) {
	qa, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find entry", err)
	}
	if qa == nil {
		return nil, domain.ErrNotFound("entry not found")
	}
	return qa, nil
}

func (s *QAService) Create(ctx context.Context, req *domain.QARequest) (*domain.QA, error) {
	if err := s.check(ctx, "", req); err != nil {
		return nil, err
	}

	published := true
	if req.IsPublished != nil {
		published = *req.IsPublished
	}

	qa := &domain.QA{
		ID:              domain.NewID(),
		QuestionTitle:   req.QuestionTitle,
		QuestionContent: req.QuestionContent,
		AnswerContent:   req.AnswerContent,
		CategoryID:      req.CategoryID,
		IsPublished:     published,
		IsFree:          req.IsFree,
		CreatedAt:       time.Now(),
	}
	if err := s.entries.Create(ctx, qa, req.SortOrder); err != nil {
		return nil, domain.ErrInternal("failed to create entry", err)
	}
	return s.Get(ctx, qa.ID)
}

func (s *QAService) Update(ctx context.Context, id string, req *domain.QARequest) (*domain.QA, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, id, req); err != nil {
		return nil, err
	}

	published := current.IsPublished
	if req.IsPublished != nil {
		published = *req.IsPublished
	}

	qa := &domain.QA{
		ID:              id,
		QuestionTitle:   req.QuestionTitle,
		QuestionContent: req.QuestionContent,
		AnswerContent:   req.AnswerContent,
		CategoryID:      req.CategoryID,
		IsPublished:     published,
		IsFree:          req.IsFree,
	}
	ok, err := s.entries.Update(ctx, qa, req.SortOrder)
	if err != nil {
		return nil, domain.ErrInternal("failed to update entry", err)
	}
	if !ok {
		return nil, domain.ErrNotFound("entry not found")
	}
	return s.Get(ctx, id)
}

// TogglePublish flips the entry's published flag and returns the new value.
func (s *QAService) TogglePublish(ctx context.Context, id string) (bool, error) {
	published, found, err := s.entries.TogglePublished(ctx, id)
	if err != nil {
		return false, domain.ErrInternal("failed to toggle entry", err)
	}
	if !found {
		return false, domain.ErrNotFound("entry not found")
	}
	return published, nil
}

func (s *QAService) Delete(ctx context.Context, id string) error {
	ok, err := s.entries.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete entry", err)
	}
	if !ok {
		return domain.ErrNotFound("entry not found")
	}
	return nil
}

func (s *QAService) Move(ctx context.Context, id string, req *domain.MoveRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.entries.Move(ctx, id, req.Direction == "up"); err != nil {
		return domain.ErrInternal("failed to move entry", err)
	}
	return nil
}

// check normalizes and validates req. id is empty on create.
func (s *QAService) check(ctx context.Context, id string, req *domain.QARequest) error {
	req.QuestionTitle = strings.TrimSpace(req.QuestionTitle)
	req.QuestionContent = strings.TrimSpace(req.QuestionContent)
	req.AnswerContent = strings.TrimSpace(req.AnswerContent)
	if req.CategoryID != nil && strings.TrimSpace(*req.CategoryID) == "" {
		req.CategoryID = nil
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrValidation(err.Error())
	}

	if req.CategoryID != nil {
		c, err := s.categories.FindByID(ctx, *req.CategoryID)
		if err != nil {
			return domain.ErrInternal("failed to find category", err)
		}
		if c == nil {
			return domain.ErrBadRequest("category not found")
		}
	}

	if req.IsFree {
		n, err := s.entries.CountFree(ctx, id)
		if err != nil {
			return domain.ErrInternal("failed to count free entries", err)
		}
		if n >= domain.MaxFreeEntries {
			return domain.ErrBadRequest(fmt.Sprintf("at most %d entries can be free", domain.MaxFreeEntries))
		}
	}
	return nil
}
