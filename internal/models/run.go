package models

import (
	"time"
)

// Run statuses. Terminal states are immutable once written.
const (
	RunStatusEnqueued = "enqueued"
	RunStatusConsumed = "consumed"
	RunStatusSuccess  = "success"
	RunStatusFailed   = "failed"
	RunStatusPartial  = "partial"
	RunStatusSkipped  = "skipped"
)

// Stable error codes surfaced on failed or skipped runs. Callers polling run
// status see one of these, never an internal stack trace.
const (
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeLockNotAcquired = "lock_not_acquired"
	ErrCodeProviderError   = "provider_error"
	ErrCodeTransportError  = "transport_error"
	ErrCodePartialFailure  = "partial_failure"
	ErrCodeInternal        = "internal_error"
)

// SyncRun is the tracked record of one dispatched synchronization.
type SyncRun struct {
	ID             string                `json:"id" db:"id"`
	TenantID       string                `json:"tenant_id" db:"tenant_id"`
	BindingID      string                `json:"binding_id" db:"binding_id"`
	ResourceScope  string                `json:"resource_scope" db:"resource_scope"`
	Mode           string                `json:"mode" db:"mode"`
	Status         string                `json:"status" db:"status"`
	WorkerID       *string               `json:"worker_id,omitempty" db:"worker_id"`
	IdempotencyKey *string               `json:"idempotency_key,omitempty" db:"idempotency_key"`
	RetryCount     int                   `json:"retry_count" db:"retry_count"`
	DurationMs     *int64                `json:"duration_ms,omitempty" db:"duration_ms"`
	ErrorCode      *string               `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage   *string               `json:"error_message,omitempty" db:"error_message"`
	Stats          map[string]PhaseStats `json:"stats,omitempty" db:"stats"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at" db:"updated_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty" db:"finished_at"`
}

// IsTerminal reports whether the run has reached a final state.
func (r SyncRun) IsTerminal() bool {
	switch r.Status {
	case RunStatusSuccess, RunStatusFailed, RunStatusPartial, RunStatusSkipped:
		return true
	}
	return false
}
