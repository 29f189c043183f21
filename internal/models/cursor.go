package models

import (
	"encoding/json"
	"time"
)

// SyncCursor tracks how far a resource-type sync has progressed for one
// tenant+provider+binding scope. Created lazily on the first pass and mutated
// at the end of every pass; never deleted while the binding exists.
type SyncCursor struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	Provider     string          `json:"provider" db:"provider"`
	BindingID    string          `json:"binding_id" db:"binding_id"`
	ResourceType string          `json:"resource_type" db:"resource_type"`
	CursorToken  string          `json:"cursor_token" db:"cursor_token"`
	SinceTime    *time.Time      `json:"since_time,omitempty" db:"since_time"`
	UntilTime    *time.Time      `json:"until_time,omitempty" db:"until_time"`
	LastRev      string          `json:"last_rev" db:"last_rev"`
	Extra        json.RawMessage `json:"extra,omitempty" db:"extra"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Staleness reports the time elapsed since the last successful checkpoint,
// or a negative duration when the cursor has never been checkpointed.
func (c SyncCursor) Staleness(now time.Time) time.Duration {
	if c.LastSyncedAt == nil {
		return -1
	}
	return now.Sub(*c.LastSyncedAt)
}
