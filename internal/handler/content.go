package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/service"
)

// ContentHandler serves categories and Q&A entries to readers and admins.
type ContentHandler struct {
	categories *service.CategoryService
	entries    *service.QAService
}

func NewContentHandler(categories *service.CategoryService, entries *service.QAService) *ContentHandler {
	return &ContentHandler{categories: categories, entries: entries}
}

// ListFree handles GET /api/qa/free.
func (h *ContentHandler) ListFree(w http.ResponseWriter, r *http.Request) {
	items, err := h.entries.ListFree(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, items)
}

// ListCategories handles GET /api/categories and GET /api/admin/categories.
func (h *ContentHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.List(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, cats)
}

// ListEntries handles GET /api/qa.
func (h *ContentHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	items, err := h.entries.ListPublished(r.Context(), queryFrom(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, items)
}

// Search handles GET /api/qa/search.
func (h *ContentHandler) Search(w http.ResponseWriter, r *http.Request) {
	items, err := h.entries.Search(r.Context(), queryFrom(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, items)
}

// GetEntry handles GET /api/qa/{id}.
func (h *ContentHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	qa, err := h.entries.GetPublished(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, qa)
}

func queryFrom(r *http.Request) domain.QAQuery {
	q := r.URL.Query()
	return domain.QAQuery{
		CategoryID: q.Get("cat"),
		Term:       q.Get("q"),
		Sort:       q.Get("sort"),
	}
}

// Admin: categories

func (h *ContentHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, c)
}

func (h *ContentHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.categories.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, c)
}

func (h *ContentHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.categories.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, c)
}

func (h *ContentHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ContentHandler) MoveCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.categories.Move(r.Context(), chi.URLParam(r, "id"), &req); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Admin: entries

func (h *ContentHandler) ListAllEntries(w http.ResponseWriter, r *http.Request) {
	items, err := h.entries.ListAll(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, items)
}

func (h *ContentHandler) GetAnyEntry(w http.ResponseWriter, r *http.Request) {
	qa, err := h.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, qa)
}

func (h *ContentHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.QARequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	qa, err := h.entries.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, qa)
}

func (h *ContentHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.QARequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	qa, err := h.entries.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, qa)
}

func (h *ContentHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ContentHandler) MoveEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.entries.Move(r.Context(), chi.URLParam(r, "id"), &req); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// TogglePublish handles POST /api/admin/qa/{id}/toggle-publish.
func (h *ContentHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	published, err := h.entries.TogglePublish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"isPublished": published})
}
