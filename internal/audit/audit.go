package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Actions emitted over a run's lifecycle.
const (
	ActionSyncStarted = "sync_started"
	ActionSyncSuccess = "sync_succeeded"
	ActionSyncFailed  = "sync_failed"
	ActionSyncSkipped = "sync_skipped"
	ActionSyncRetried = "sync_retried"
)

// Event is the structured record handed to the external audit sink. The
// engine only emits; it never stores or queries audit history itself.
type Event struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Actor        string         `json:"actor"`
	TenantID     string         `json:"tenant_id"`
	Details      map[string]any `json:"details,omitempty"`
}

// Sink receives audit events. Implementations must be non-blocking enough for
// the dispatch path; emission failures are the sink's problem, not the run's.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

// LogSink writes audit events to the structured log, for deployments whose
// audit pipeline tails logs.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Emit(_ context.Context, evt Event) {
	s.logger.Info().
		Str("action", evt.Action).
		Str("resource_type", evt.ResourceType).
		Str("resource_id", evt.ResourceID).
		Str("actor", evt.Actor).
		Str("tenant_id", evt.TenantID).
		Interface("details", evt.Details).
		Msg("audit event")
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, evt Event) {
	for _, sink := range m {
		sink.Emit(ctx, evt)
	}
}
