package models

import "fmt"

// Scope identifies the tenant+binding pair that owns every row this engine
// writes. No query may cross a scope boundary.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	Provider  string `json:"provider"`
	BindingID string `json:"binding_id"`
}

// Key renders the scope as a stable string, used for lock and idempotency scoping.
func (s Scope) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.TenantID, s.Provider, s.BindingID)
}

// Resource types synchronized by the engine, in pass order.
const (
	ResourceBusinessCenters = "business_centers"
	ResourceAdvertisers     = "advertisers"
	ResourceStores          = "stores"
	ResourceProducts        = "products"
	ResourceAll             = "all"
)

// Sync modes accepted on a trigger.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)
