package middleware

import (
	"net/http"
	"strings"

	"github.com/logicaltax/backend/internal/contextkeys"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/handler"
)

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// Auth requires a valid bearer token and stores the caller in the context.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "no token provided")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, "invalid authorization header")
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := contextkeys.WithUser(r.Context(), claims.Sub, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": msg, "redirectTo": "/login"})
}
