package handler

import (
	"net/http"

	"github.com/logicaltax/backend/internal/contextkeys"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/service"
)

// PaymentHandler serves checkout and subscription status endpoints.
type PaymentHandler struct {
	billing *service.BillingService
	access  service.AccessResolver
}

func NewPaymentHandler(billing *service.BillingService, access service.AccessResolver) *PaymentHandler {
	return &PaymentHandler{billing: billing, access: access}
}

// CreateCheckout handles POST /api/payment/checkout.
func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	resp, err := h.billing.CreateCheckout(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Confirm handles POST /api/payment/confirm. Clients call it after returning
// from checkout, before the webhook may have arrived.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmPaymentRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			Error(w, err)
			return
		}
	}

	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session_id")
	}

	ctx := r.Context()
	userID := contextkeys.UserIDFrom(ctx)
	decision := h.access.ResolveAccess(ctx, userID, req.SessionID)

	resp := domain.SubscriptionStatusResponse{Active: decision.Granted()}
	sub, err := h.billing.GetSubscription(ctx, userID)
	if err == nil && sub != nil {
		resp.Status = sub.Status
	}
	JSON(w, http.StatusOK, resp)
}

// GetSubscription handles GET /api/payment/subscription.
func (h *PaymentHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.GetSubscription(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	if sub == nil {
		JSON(w, http.StatusOK, map[string]string{"status": "none"})
		return
	}
	JSON(w, http.StatusOK, sub)
}
