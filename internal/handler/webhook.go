package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/logicaltax/backend/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor applies a signed provider event.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives provider push notifications.
type WebhookHandler struct {
	billing WebhookProcessor
}

func NewWebhookHandler(billing WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{billing: billing}
}

// Stripe handles POST /api/webhooks/stripe. The raw body is passed through
// untouched; the signature covers its exact bytes.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		Error(w, domain.ErrBadRequest("failed to read body"))
		return
	}

	err = h.billing.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok && appErr.Code < http.StatusInternalServerError {
			log.Warn().Err(err).Str("remote_ip", remoteIP(r)).Msg("webhook rejected")
			JSON(w, appErr.Code, map[string]string{"error": appErr.Message})
			return
		}
		// Generic body; the provider retries on any 5xx.
		log.Error().Err(err).Msg("webhook processing failed")
		JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
