package middleware

import "net/http"

// RequireRole admits requests whose validated role is one of roles. Requests
// that did not pass through [Guard] are rejected with 401.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if _, ok := allowed[res.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
