package admin

import (
	"net/http"

	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/response"
)

// RequirePermission gates a route on the authenticated account's role.
// It assumes the auth middleware already ran.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := middleware.GetRole(r.Context())
			if role == "" || !HasPermission(role, perm) {
				response.Forbidden(w, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
