package repository

import (
	"context"
	"database/sql"
)

// IdempotencyRepository reserves (scope, key) pairs. Reserve is a single
// atomic insert-or-inspect: a fresh key is bound to runID and reported back;
// a seen key with a matching payload hash returns the run it is bound to; a
// seen key with a different hash reports a conflict. Rebind moves a key onto
// a new run when the previously bound run failed or was never created.
type IdempotencyRepository interface {
	Reserve(ctx context.Context, scope, key, payloadHash, runID string) (boundRunID string, conflict bool, err error)
	Rebind(ctx context.Context, scope, key, runID string) error
}

type idempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Reserve(ctx context.Context, scope, key, payloadHash, runID string) (string, bool, error) {
	const insert = `
		INSERT INTO tenant.idempotency_keys (scope, key, payload_hash, run_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, key) DO NOTHING
		RETURNING run_id
	`
	var boundRunID string
	err := r.db.QueryRowContext(ctx, insert, scope, key, payloadHash, runID).Scan(&boundRunID)
	if err == nil {
		// Fresh reservation.
		return boundRunID, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, err
	}

	const fetch = `
		SELECT payload_hash, run_id FROM tenant.idempotency_keys
		WHERE scope = $1 AND key = $2
	`
	var existingHash, existingRunID string
	if err := r.db.QueryRowContext(ctx, fetch, scope, key).Scan(&existingHash, &existingRunID); err != nil {
		return "", false, err
	}
	if existingHash != payloadHash {
		return existingRunID, true, nil
	}
	return existingRunID, false, nil
}

func (r *idempotencyRepository) Rebind(ctx context.Context, scope, key, runID string) error {
	const query = `
		UPDATE tenant.idempotency_keys
		SET run_id = $3
		WHERE scope = $1 AND key = $2
	`
	_, err := r.db.ExecContext(ctx, query, scope, key, runID)
	return err
}
