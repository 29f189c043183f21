package authz

import "net/http"

// TenantHeader names the header the API gateway stamps after authenticating
// the caller. This service trusts it; token verification happens upstream.
const TenantHeader = "X-Tenant-ID"

// RequireTenant ensures every request carries a tenant identity and makes it
// available to handlers via the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(TenantHeader)
		if tid == "" {
			http.Error(w, "missing tenant identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tid)))
	})
}
