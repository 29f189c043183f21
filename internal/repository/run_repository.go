package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/commercegrid/adsync-api/internal/models"
)

// RunRepository tracks dispatched sync runs through their lifecycle
// enqueued → consumed → {success, failed, partial, skipped}. Finalize refuses
// to touch a run already in a terminal state.
type RunRepository interface {
	Create(ctx context.Context, run models.SyncRun) (models.SyncRun, error)
	MarkConsumed(ctx context.Context, runID, workerID string) error
	Finalize(ctx context.Context, runID, status, errorCode, errorMessage string, durationMs int64, stats map[string]models.PhaseStats) error
	RecordRetry(ctx context.Context, runID string, attempt int, lastError string) error
	Get(ctx context.Context, tenantID, runID string) (models.SyncRun, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.SyncRun, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run models.SyncRun) (models.SyncRun, error) {
	const query = `
		INSERT INTO tenant.sync_runs (id, tenant_id, binding_id, resource_scope, mode, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	if run.Status == "" {
		run.Status = models.RunStatusEnqueued
	}
	err := r.db.QueryRowContext(ctx, query,
		run.ID, run.TenantID, run.BindingID, run.ResourceScope, run.Mode, run.Status, run.IdempotencyKey,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	return run, err
}

func (r *runRepository) MarkConsumed(ctx context.Context, runID, workerID string) error {
	const query = `
		UPDATE tenant.sync_runs
		SET status = $2, worker_id = $3, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, runID, models.RunStatusConsumed, workerID, models.RunStatusEnqueued)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %s is not enqueued", runID)
	}
	return nil
}

func (r *runRepository) Finalize(ctx context.Context, runID, status, errorCode, errorMessage string, durationMs int64, stats map[string]models.PhaseStats) error {
	switch status {
	case models.RunStatusSuccess, models.RunStatusFailed, models.RunStatusPartial, models.RunStatusSkipped:
	default:
		return fmt.Errorf("invalid terminal status %q", status)
	}

	var statsJSON interface{}
	if len(stats) > 0 {
		raw, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("marshal run stats: %w", err)
		}
		statsJSON = raw
	}

	const query = `
		UPDATE tenant.sync_runs
		SET status = $2,
		    error_code = NULLIF($3, ''),
		    error_message = NULLIF($4, ''),
		    duration_ms = $5,
		    stats = COALESCE($6, stats),
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($7, $8)
	`
	res, err := r.db.ExecContext(ctx, query,
		runID, status, errorCode, errorMessage, durationMs, statsJSON,
		models.RunStatusEnqueued, models.RunStatusConsumed,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %s is already terminal", runID)
	}
	return nil
}

func (r *runRepository) RecordRetry(ctx context.Context, runID string, attempt int, lastError string) error {
	const query = `
		UPDATE tenant.sync_runs
		SET retry_count = $2, error_message = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, runID, attempt, lastError)
	return err
}

func (r *runRepository) Get(ctx context.Context, tenantID, runID string) (models.SyncRun, error) {
	const query = `
		SELECT id, tenant_id, binding_id, resource_scope, mode, status, worker_id, idempotency_key, retry_count, duration_ms, error_code, error_message, stats, created_at, updated_at, started_at, finished_at
		FROM tenant.sync_runs
		WHERE id = $1 AND tenant_id = $2
	`
	return scanRun(r.db.QueryRowContext(ctx, query, runID, tenantID))
}

func (r *runRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]models.SyncRun, error) {
	const query = `
		SELECT id, tenant_id, binding_id, resource_scope, mode, status, worker_id, idempotency_key, retry_count, duration_ms, error_code, error_message, stats, created_at, updated_at, started_at, finished_at
		FROM tenant.sync_runs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.SyncRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (models.SyncRun, error) {
	var (
		run          models.SyncRun
		workerID     sql.NullString
		idemKey      sql.NullString
		durationMs   sql.NullInt64
		errorCode    sql.NullString
		errorMessage sql.NullString
		statsRaw     []byte
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)
	if err := scanner.Scan(
		&run.ID,
		&run.TenantID,
		&run.BindingID,
		&run.ResourceScope,
		&run.Mode,
		&run.Status,
		&workerID,
		&idemKey,
		&run.RetryCount,
		&durationMs,
		&errorCode,
		&errorMessage,
		&statsRaw,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return models.SyncRun{}, err
	}
	if workerID.Valid {
		run.WorkerID = &workerID.String
	}
	if idemKey.Valid {
		run.IdempotencyKey = &idemKey.String
	}
	if durationMs.Valid {
		run.DurationMs = &durationMs.Int64
	}
	if errorCode.Valid {
		run.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &run.Stats); err != nil {
			return models.SyncRun{}, fmt.Errorf("unmarshal run stats: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}
