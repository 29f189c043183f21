package workflows

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/commercegrid/adsync-api/internal/temporal"
	"github.com/commercegrid/adsync-api/internal/temporal/activities"
)

// SyncWorkflow runs one sync trigger as a single dispatch activity. The
// dispatcher owns the run lifecycle, so the workflow only supplies the retry
// envelope: transient failures re-attempt with backoff, while replays of a
// conflicting idempotency key and invalidated credentials fail immediately.
func SyncWorkflow(ctx workflow.Context, params temporal.SyncParams) (*temporal.SyncResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    temporal.MaxDispatchAttempts,
			NonRetryableErrorTypes: []string{
				activities.ErrTypeIdempotencyConflict,
				activities.ErrTypeUnauthorized,
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting sync workflow",
		"TenantID", params.TenantID, "BindingID", params.BindingID, "ResourceScope", params.ResourceScope)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	var result temporal.SyncResult
	if err := workflow.ExecuteActivity(ctx, a.DispatchSyncActivity, params).Get(ctx, &result); err != nil {
		logger.Error("Sync dispatch failed.", "error", err)
		return &result, err
	}

	logger.Info("Sync workflow completed.", "RunID", result.RunID, "Status", result.Status)
	return &result, nil
}
