package models

import "time"

// IdempotencyKey caches the run reference for a (scope, key) pair so a
// repeated trigger returns the original outcome instead of re-dispatching.
// A reused key with a different payload hash is a hard conflict.
type IdempotencyKey struct {
	ID          string    `json:"id" db:"id"`
	Scope       string    `json:"scope" db:"scope"`
	Key         string    `json:"key" db:"key"`
	PayloadHash string    `json:"payload_hash" db:"payload_hash"`
	RunID       string    `json:"run_id" db:"run_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RateLimitToken is the storage-backed throttle for inbound triggers, distinct
// from the in-process token bucket that throttles outbound provider calls.
type RateLimitToken struct {
	ID            string    `json:"id" db:"id"`
	Scope         string    `json:"scope" db:"scope"`
	TokenKey      string    `json:"token_key" db:"token_key"`
	LastSeenAt    time.Time `json:"last_seen_at" db:"last_seen_at"`
	NextAllowedAt time.Time `json:"next_allowed_at" db:"next_allowed_at"`
}
