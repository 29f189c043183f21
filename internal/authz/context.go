package authz

import (
	"context"
	"net/http"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// WithTenant stores the tenant identity on the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if tenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	}
	return ctx
}

func TenantIDFromRequest(r *http.Request) (string, bool) {
	tid, ok := r.Context().Value(tenantIDKey).(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}
