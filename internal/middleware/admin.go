package middleware

import (
	"net/http"

	"github.com/logicaltax/backend/internal/contextkeys"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/handler"
)

// AdminOnly rejects callers without the admin role. Must run after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.Role(r.Context()) != domain.RoleAdmin {
			handler.JSON(w, http.StatusForbidden, map[string]string{"error": "forbidden: admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
