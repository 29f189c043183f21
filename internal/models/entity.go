package models

import (
	"encoding/json"
	"time"
)

// BusinessCenter is the top-level account container on the provider platform.
type BusinessCenter struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	BindingID  string          `json:"binding_id" db:"binding_id"`
	NaturalID  string          `json:"natural_id" db:"natural_id"`
	Name       string          `json:"name" db:"name"`
	Status     string          `json:"status" db:"status"`
	Currency   string          `json:"currency" db:"currency"`
	Timezone   string          `json:"timezone" db:"timezone"`
	Raw        json.RawMessage `json:"raw" db:"raw"`
	SyncRev    string          `json:"sync_rev" db:"sync_rev"`
	FirstSeenAt time.Time      `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at" db:"last_seen_at"`
}

// Advertiser is a billable entity under a business center.
type Advertiser struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	BindingID   string          `json:"binding_id" db:"binding_id"`
	NaturalID   string          `json:"natural_id" db:"natural_id"`
	Name        string          `json:"name" db:"name"`
	Status      string          `json:"status" db:"status"`
	Currency    string          `json:"currency" db:"currency"`
	Timezone    string          `json:"timezone" db:"timezone"`
	Industry    string          `json:"industry" db:"industry"`
	OwnerBCID   string          `json:"owner_bc_id" db:"owner_bc_id"`
	Raw         json.RawMessage `json:"raw" db:"raw"`
	SyncRev     string          `json:"sync_rev" db:"sync_rev"`
	FirstSeenAt time.Time       `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at" db:"last_seen_at"`
}

// Store is a sellable storefront linked to one or more advertisers.
type Store struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	BindingID    string          `json:"binding_id" db:"binding_id"`
	NaturalID    string          `json:"natural_id" db:"natural_id"`
	Name         string          `json:"name" db:"name"`
	Status       string          `json:"status" db:"status"`
	StoreType    string          `json:"store_type" db:"store_type"`
	Region       string          `json:"region" db:"region"`
	AdvertiserID string          `json:"advertiser_id" db:"advertiser_id"`
	Raw          json.RawMessage `json:"raw" db:"raw"`
	SyncRev      string          `json:"sync_rev" db:"sync_rev"`
	FirstSeenAt  time.Time       `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time       `json:"last_seen_at" db:"last_seen_at"`
}

// Product is a sellable item under a store, optionally scoped by a
// monetization-program eligibility flag.
type Product struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	BindingID   string          `json:"binding_id" db:"binding_id"`
	NaturalID   string          `json:"natural_id" db:"natural_id"`
	StoreID     string          `json:"store_id" db:"store_id"`
	Title       string          `json:"title" db:"title"`
	Status      string          `json:"status" db:"status"`
	Eligibility string          `json:"eligibility" db:"eligibility"`
	Raw         json.RawMessage `json:"raw" db:"raw"`
	SyncRev     string          `json:"sync_rev" db:"sync_rev"`
	FirstSeenAt time.Time       `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at" db:"last_seen_at"`
}
