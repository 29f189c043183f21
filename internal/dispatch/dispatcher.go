package dispatch

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/commercegrid/adsync-api/internal/audit"
	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/provider"
	"github.com/commercegrid/adsync-api/internal/syncer"
)

// ErrIdempotencyConflict reports an idempotency key replayed with a different
// payload. Callers must not retry it.
var ErrIdempotencyConflict = errors.New("idempotency key bound to a different payload")

// TriggerRequest is one request to run a sync for a binding.
type TriggerRequest struct {
	TenantID       string         `json:"tenant_id"`
	Provider       string         `json:"provider"`
	BindingID      string         `json:"binding_id"`
	ResourceScope  string         `json:"resource_scope"`
	Mode           string         `json:"mode"`
	IdempotencyKey string         `json:"idempotency_key"`
	Actor          string         `json:"actor,omitempty"`
	Options        syncer.Options `json:"options"`
}

func (r TriggerRequest) scope() models.Scope {
	return models.Scope{TenantID: r.TenantID, Provider: r.Provider, BindingID: r.BindingID}
}

// RunStore is the run lifecycle surface, satisfied by
// repository.RunRepository.
type RunStore interface {
	Create(ctx context.Context, run models.SyncRun) (models.SyncRun, error)
	MarkConsumed(ctx context.Context, runID, workerID string) error
	Finalize(ctx context.Context, runID, status, errorCode, errorMessage string, durationMs int64, stats map[string]models.PhaseStats) error
	RecordRetry(ctx context.Context, runID string, attempt int, lastError string) error
	Get(ctx context.Context, tenantID, runID string) (models.SyncRun, error)
}

// IdempotencyStore reserves trigger keys, satisfied by
// repository.IdempotencyRepository. Reserve reports the run id the key is
// bound to, whether the reservation is fresh or replayed; Rebind moves a key
// onto a new run.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key, payloadHash, runID string) (boundRunID string, conflict bool, err error)
	Rebind(ctx context.Context, scope, key, runID string) error
}

// LockManager serializes runs per binding. Satisfied by
// repository.AdvisoryLockManager. held=false with a nil error means the lock
// stayed with another worker for the whole wait window.
type LockManager interface {
	TryLock(ctx context.Context, scope string, wait time.Duration) (held bool, release func(), err error)
}

// BindingStore reads and flags provider bindings.
type BindingStore interface {
	Get(ctx context.Context, tenantID, bindingID string) (models.ProviderBinding, error)
	FlagAuthInvalid(ctx context.Context, tenantID, bindingID, reason string) error
}

// TriggerThrottle bounds how often a binding may be triggered. Satisfied by
// repository.RateLimitRepository.
type TriggerThrottle interface {
	Allow(ctx context.Context, scope, tokenKey string, minInterval time.Duration) (bool, time.Time, error)
}

// CredentialResolver turns a binding into usable provider credentials.
type CredentialResolver interface {
	Resolve(ctx context.Context, binding models.ProviderBinding) (provider.Credentials, error)
}

// Syncer is the orchestrator surface the dispatcher drives.
type Syncer interface {
	SyncScope(ctx context.Context, scope models.Scope, resourceScope string, opts syncer.Options) (map[string]models.PhaseStats, error)
}

// SyncerFactory builds a Syncer bound to one set of credentials.
type SyncerFactory func(creds provider.Credentials) Syncer

// Options tunes dispatcher behavior.
type Options struct {
	WorkerID string
	// LockWait bounds how long a worker contends for a busy binding before
	// its run goes terminal as skipped.
	LockWait time.Duration
	// TriggerMinInterval is the storage-backed floor between accepted
	// triggers for the same binding. Zero disables the throttle.
	TriggerMinInterval time.Duration
}

// Dispatcher owns the run lifecycle around one sync invocation: throttle,
// idempotency, lock acquisition, credential resolution, execution, and
// terminal classification. Every run it creates reaches a terminal status.
type Dispatcher struct {
	runs     RunStore
	keys     IdempotencyStore
	locks    LockManager
	bindings BindingStore
	throttle TriggerThrottle
	creds    CredentialResolver
	factory  SyncerFactory
	sink     audit.Sink
	opts     Options
	logger   zerolog.Logger
}

func NewDispatcher(runs RunStore, keys IdempotencyStore, locks LockManager, bindings BindingStore, throttle TriggerThrottle, creds CredentialResolver, factory SyncerFactory, sink audit.Sink, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	return &Dispatcher{
		runs:     runs,
		keys:     keys,
		locks:    locks,
		bindings: bindings,
		throttle: throttle,
		creds:    creds,
		factory:  factory,
		sink:     sink,
		opts:     opts,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs one trigger end to end and returns the terminal run row.
// Replaying an idempotency key with an identical payload returns the run the
// key is bound to without creating a new one, except when that run failed or
// was never created: those keys re-dispatch under a fresh run so a bounded
// retry layer can drive the sync to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, req TriggerRequest) (models.SyncRun, error) {
	scope := req.scope()
	logger := d.logger.With().
		Str("tenant_id", req.TenantID).
		Str("binding_id", req.BindingID).
		Str("resource_scope", req.ResourceScope).
		Logger()

	runID := uuid.NewString()
	hash, err := payloadHash(req)
	if err != nil {
		return models.SyncRun{}, err
	}
	redispatch := false
	if req.IdempotencyKey != "" {
		boundRunID, conflict, err := d.keys.Reserve(ctx, scope.Key(), req.IdempotencyKey, hash, runID)
		if err != nil {
			return models.SyncRun{}, errors.Wrap(err, "reserve idempotency key")
		}
		if conflict {
			return models.SyncRun{}, ErrIdempotencyConflict
		}
		if boundRunID != "" && boundRunID != runID {
			bound, getErr := d.runs.Get(ctx, req.TenantID, boundRunID)
			if getErr != nil && !errors.Is(getErr, sql.ErrNoRows) {
				return models.SyncRun{}, errors.Wrap(getErr, "load bound run")
			}
			if getErr == nil && bound.Status != models.RunStatusFailed {
				logger.Info().Str("run_id", boundRunID).Msg("idempotency key replay, returning bound run")
				return bound, nil
			}
			// The key points at a failed or missing run; move it onto a
			// fresh run and dispatch again.
			if err := d.keys.Rebind(ctx, scope.Key(), req.IdempotencyKey, runID); err != nil {
				return models.SyncRun{}, errors.Wrap(err, "rebind idempotency key")
			}
			redispatch = true
		}
	}

	// A re-dispatch retries an already accepted trigger, so only fresh
	// triggers consume a throttle token.
	if !redispatch && d.throttle != nil && d.opts.TriggerMinInterval > 0 {
		allowed, nextAt, err := d.throttle.Allow(ctx, scope.Key(), "trigger:"+req.ResourceScope, d.opts.TriggerMinInterval)
		if err != nil {
			return models.SyncRun{}, errors.Wrap(err, "trigger throttle")
		}
		if !allowed {
			return models.SyncRun{}, fmt.Errorf("trigger throttled until %s", nextAt.UTC().Format(time.RFC3339))
		}
	}

	newRun := models.SyncRun{
		ID:            runID,
		TenantID:      req.TenantID,
		BindingID:     req.BindingID,
		ResourceScope: req.ResourceScope,
		Mode:          req.Mode,
		Status:        models.RunStatusEnqueued,
	}
	if req.IdempotencyKey != "" {
		newRun.IdempotencyKey = &req.IdempotencyKey
	}
	run, err := d.runs.Create(ctx, newRun)
	if err != nil {
		return models.SyncRun{}, errors.Wrap(err, "create sync run")
	}
	d.emit(ctx, audit.ActionSyncStarted, req, runID, map[string]any{"mode": req.Mode})

	if err := d.runs.MarkConsumed(ctx, runID, d.opts.WorkerID); err != nil {
		return run, errors.Wrap(err, "mark run consumed")
	}

	outcome := d.execute(ctx, req, runID, logger)

	if err := d.runs.Finalize(ctx, runID, outcome.status, outcome.errorCode, outcome.errorMessage, outcome.durationMs, outcome.stats); err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("failed to finalize run")
	}
	d.emit(ctx, outcome.action, req, runID, outcome.details())

	final, err := d.runs.Get(ctx, req.TenantID, runID)
	if err != nil {
		return run, errors.Wrap(err, "reload finalized run")
	}
	return final, outcome.err
}

// RecordRetry updates the run row when an external retry layer re-attempts a
// failed dispatch.
func (d *Dispatcher) RecordRetry(ctx context.Context, req TriggerRequest, runID string, attempt int, lastError string) error {
	d.emit(ctx, audit.ActionSyncRetried, req, runID, map[string]any{"attempt": attempt})
	return d.runs.RecordRetry(ctx, runID, attempt, lastError)
}

type outcome struct {
	status       string
	errorCode    string
	errorMessage string
	durationMs   int64
	stats        map[string]models.PhaseStats
	action       string
	err          error
}

func (o outcome) details() map[string]any {
	details := map[string]any{"status": o.status}
	if o.errorCode != "" {
		details["error_code"] = o.errorCode
	}
	return details
}

func (d *Dispatcher) execute(ctx context.Context, req TriggerRequest, runID string, logger zerolog.Logger) outcome {
	scope := req.scope()
	start := time.Now()
	done := func(o outcome) outcome {
		o.durationMs = time.Since(start).Milliseconds()
		return o
	}

	held, release, err := d.locks.TryLock(ctx, scope.Key(), d.opts.LockWait)
	if err != nil {
		return done(outcome{
			status: models.RunStatusFailed, errorCode: models.ErrCodeInternal,
			errorMessage: err.Error(), action: audit.ActionSyncFailed, err: err,
		})
	}
	if !held {
		logger.Info().Str("run_id", runID).Msg("binding locked by another worker, skipping")
		return done(outcome{
			status: models.RunStatusSkipped, errorCode: models.ErrCodeLockNotAcquired,
			errorMessage: "another sync holds the binding lock", action: audit.ActionSyncSkipped,
		})
	}
	defer release()

	binding, err := d.bindings.Get(ctx, req.TenantID, req.BindingID)
	if err != nil {
		return done(outcome{
			status: models.RunStatusFailed, errorCode: models.ErrCodeInternal,
			errorMessage: err.Error(), action: audit.ActionSyncFailed, err: err,
		})
	}
	if !binding.AuthValid {
		return done(outcome{
			status: models.RunStatusFailed, errorCode: models.ErrCodeUnauthorized,
			errorMessage: "binding credentials flagged invalid", action: audit.ActionSyncFailed,
			err: errors.New("binding credentials flagged invalid"),
		})
	}

	creds, err := d.creds.Resolve(ctx, binding)
	if err != nil {
		return done(outcome{
			status: models.RunStatusFailed, errorCode: models.ErrCodeInternal,
			errorMessage: err.Error(), action: audit.ActionSyncFailed, err: err,
		})
	}

	stats, err := d.factory(creds).SyncScope(ctx, scope, req.ResourceScope, req.Options)
	if err != nil {
		return done(d.classify(ctx, req, stats, err, logger))
	}
	return done(outcome{status: models.RunStatusSuccess, stats: stats, action: audit.ActionSyncSuccess})
}

// classify maps an execution error to the run's terminal status and error
// code. Credential failures additionally flag the binding so later triggers
// fail fast until the tenant re-authorizes.
func (d *Dispatcher) classify(ctx context.Context, req TriggerRequest, stats map[string]models.PhaseStats, err error, logger zerolog.Logger) outcome {
	status := models.RunStatusFailed
	code := models.ErrCodeInternal

	var phaseErr *syncer.PhaseError
	partial := errors.As(err, &phaseErr) && completedPhases(stats, phaseErr.Phase) > 0

	switch {
	case provider.IsCredentialError(err):
		code = models.ErrCodeUnauthorized
		if flagErr := d.bindings.FlagAuthInvalid(ctx, req.TenantID, req.BindingID, err.Error()); flagErr != nil {
			logger.Error().Err(flagErr).Msg("failed to flag binding credentials")
		} else {
			logger.Warn().Msg("binding credentials flagged invalid")
		}
	case partial:
		status = models.RunStatusPartial
		code = models.ErrCodePartialFailure
	case provider.IsBusinessError(err):
		code = models.ErrCodeProviderError
	case isTransportError(err):
		code = models.ErrCodeTransportError
	}

	return outcome{
		status: status, errorCode: code, errorMessage: err.Error(),
		stats: stats, action: audit.ActionSyncFailed, err: err,
	}
}

// completedPhases counts phases that finished before the failing one. The
// failing phase's own entry holds partial counts and does not qualify.
func completedPhases(stats map[string]models.PhaseStats, failedPhase string) int {
	n := 0
	for name := range stats {
		if name != failedPhase {
			n++
		}
	}
	return n
}

func isTransportError(err error) bool {
	var te *provider.TransportError
	return errors.As(err, &te)
}

func (d *Dispatcher) emit(ctx context.Context, action string, req TriggerRequest, runID string, details map[string]any) {
	if d.sink == nil {
		return
	}
	d.sink.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "sync_run",
		ResourceID:   runID,
		Actor:        req.Actor,
		TenantID:     req.TenantID,
		Details:      details,
	})
}

func payloadHash(req TriggerRequest) (string, error) {
	canonical := struct {
		TenantID      string         `json:"tenant_id"`
		Provider      string         `json:"provider"`
		BindingID     string         `json:"binding_id"`
		ResourceScope string         `json:"resource_scope"`
		Mode          string         `json:"mode"`
		Options       syncer.Options `json:"options"`
	}{req.TenantID, req.Provider, req.BindingID, req.ResourceScope, req.Mode, req.Options}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", errors.Wrap(err, "hash trigger payload")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
