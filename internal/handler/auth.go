package handler

import (
	"net/http"

	"github.com/logicaltax/backend/internal/contextkeys"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/service"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetUserByID(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Redirect handles GET /api/auth/redirect.
func (h *AuthHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := h.auth.RedirectFor(ctx, contextkeys.UserIDFrom(ctx), contextkeys.Role(ctx), r.URL.Query().Get("session_id"))
	JSON(w, http.StatusOK, resp)
}
