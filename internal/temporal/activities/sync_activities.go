package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/commercegrid/adsync-api/internal/dispatch"
	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/temporal"
)

// Error types the workflow's retry policy treats as non-retryable.
const (
	ErrTypeIdempotencyConflict = "IdempotencyConflict"
	ErrTypeUnauthorized        = "Unauthorized"
)

type Activities struct {
	Dispatcher *dispatch.Dispatcher
}

// DispatchSyncActivity runs one trigger through the dispatcher. The run row
// itself holds the outcome; the activity error only controls Temporal's
// retries: skipped and partial runs return success, idempotency conflicts and
// credential failures return non-retryable errors, everything else retries
// under the workflow policy.
func (a *Activities) DispatchSyncActivity(ctx context.Context, params temporal.SyncParams) (*temporal.SyncResult, error) {
	logger := activity.GetLogger(ctx)
	req := dispatch.TriggerRequest{
		TenantID:       params.TenantID,
		Provider:       params.Provider,
		BindingID:      params.BindingID,
		ResourceScope:  params.ResourceScope,
		Mode:           params.Mode,
		IdempotencyKey: params.IdempotencyKey,
		Actor:          params.Actor,
		Options:        params.Options,
	}

	run, err := a.Dispatcher.Dispatch(ctx, req)

	if attempt := activity.GetInfo(ctx).Attempt; attempt > 1 && run.ID != "" {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if retryErr := a.Dispatcher.RecordRetry(ctx, req, run.ID, int(attempt), msg); retryErr != nil {
			logger.Error("Failed to record retry attempt", "runID", run.ID, "error", retryErr)
		}
	}

	if err == dispatch.ErrIdempotencyConflict {
		return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), ErrTypeIdempotencyConflict, err)
	}

	errorCode := ""
	if run.ErrorCode != nil {
		errorCode = *run.ErrorCode
	}
	result := &temporal.SyncResult{
		RunID:     run.ID,
		Status:    run.Status,
		ErrorCode: errorCode,
		Stats:     run.Stats,
	}

	switch run.Status {
	case models.RunStatusSuccess, models.RunStatusSkipped, models.RunStatusPartial:
		// Terminal run states the workflow must not re-execute.
		return result, nil
	}
	if err != nil {
		if errorCode == models.ErrCodeUnauthorized {
			return result, sdktemporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnauthorized, err)
		}
		logger.Warn("Sync dispatch failed", "runID", run.ID, "errorCode", run.ErrorCode, "error", err)
		return result, err
	}
	return result, nil
}
