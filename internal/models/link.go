package models

import (
	"encoding/json"
	"time"
)

// RelationType classifies the signal that produced a relationship edge.
// Lower rank means a stronger signal.
type RelationType string

const (
	RelationOwner      RelationType = "OWNER"
	RelationAuthorizer RelationType = "AUTHORIZER"
	RelationPartner    RelationType = "PARTNER"
	RelationUnknown    RelationType = "UNKNOWN"
)

// Rank returns the total order OWNER < AUTHORIZER < PARTNER < UNKNOWN used to
// resolve conflicting relationship signals. Unrecognized values rank weakest.
func (r RelationType) Rank() int {
	switch r {
	case RelationOwner:
		return 0
	case RelationAuthorizer:
		return 1
	case RelationPartner:
		return 2
	default:
		return 3
	}
}

// Link kinds distinguish which entity type OtherID refers to.
const (
	LinkKindBusinessCenter = "business_center"
	LinkKindStore          = "store"
)

// EntityLink is a relationship edge between an advertiser and another entity
// (its business center or one of its stores), observed from some provider
// endpoint together with the raw snippet that produced it.
type EntityLink struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	BindingID    string          `json:"binding_id" db:"binding_id"`
	AdvertiserID string          `json:"advertiser_id" db:"advertiser_id"`
	OtherID      string          `json:"other_id" db:"other_id"`
	LinkKind     string          `json:"link_kind" db:"link_kind"`
	RelationType RelationType    `json:"relation_type" db:"relation_type"`
	Source       string          `json:"source" db:"source"`
	Raw          json.RawMessage `json:"raw" db:"raw"`
	FirstSeenAt  time.Time       `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time       `json:"last_seen_at" db:"last_seen_at"`
}
