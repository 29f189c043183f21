package models

import "time"

// ProviderBinding ties a tenant to one authorized provider account. The engine
// never stores credential material; it only flips AuthValid when a sync fails
// with a revoked or invalid credential so upstream can reject further triggers.
type ProviderBinding struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	Provider    string     `json:"provider" db:"provider"`
	ExternalRef string     `json:"external_ref" db:"external_ref"`
	AuthValid   bool       `json:"auth_valid" db:"auth_valid"`
	AuthError   *string    `json:"auth_error,omitempty" db:"auth_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	InvalidAt   *time.Time `json:"invalid_at,omitempty" db:"invalid_at"`
}
