package middleware

import (
	"context"
	"net/http"

	"github.com/logicaltax/backend/internal/contextkeys"
	"github.com/logicaltax/backend/internal/handler"
	"github.com/logicaltax/backend/internal/service"
)

// CheckoutSessionParam is the query parameter a client returning from
// checkout carries.
const CheckoutSessionParam = "session_id"

// AccessSkipper lets a route serve a request without a subscription.
type AccessSkipper func(r *http.Request) bool

// RequireAccess answers 402 unless the caller has paid access. Must run
// after Auth. skip, when set, exempts matching requests.
func RequireAccess(resolver service.AccessResolver, skip AccessSkipper) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			userID := contextkeys.UserIDFrom(r.Context())
			decision := resolver.ResolveAccess(r.Context(), userID, r.URL.Query().Get(CheckoutSessionParam))
			if !decision.Granted() {
				handler.JSON(w, http.StatusPaymentRequired, map[string]string{
					"error":      "subscription required",
					"redirectTo": "/checkout",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FreeEntry builds a skipper that exempts free entries, reading the entry id
// with param.
func FreeEntry(isFree func(ctx context.Context, id string) bool, param func(r *http.Request) string) AccessSkipper {
	return func(r *http.Request) bool {
		id := param(r)
		return id != "" && isFree(r.Context(), id)
	}
}
