package repository

import (
	"context"
	"database/sql"
	"time"
)

// RateLimitRepository is the storage-backed throttle for inbound triggers,
// one row per (scope, token_key). Allow atomically claims the token when its
// next_allowed_at has passed and pushes it forward by minInterval.
type RateLimitRepository interface {
	Allow(ctx context.Context, scope, tokenKey string, minInterval time.Duration) (allowed bool, nextAllowedAt time.Time, err error)
}

type rateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

func (r *rateLimitRepository) Allow(ctx context.Context, scope, tokenKey string, minInterval time.Duration) (bool, time.Time, error) {
	const claim = `
		INSERT INTO tenant.rate_limit_tokens (scope, token_key, last_seen_at, next_allowed_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (scope, token_key) DO UPDATE SET
			last_seen_at = NOW(),
			next_allowed_at = NOW() + make_interval(secs => $3)
		WHERE tenant.rate_limit_tokens.next_allowed_at <= NOW()
		RETURNING next_allowed_at
	`
	var next time.Time
	err := r.db.QueryRowContext(ctx, claim, scope, tokenKey, minInterval.Seconds()).Scan(&next)
	if err == nil {
		return true, next, nil
	}
	if err != sql.ErrNoRows {
		return false, time.Time{}, err
	}

	// Token is still cooling down; report when it frees up.
	const fetch = `
		SELECT next_allowed_at FROM tenant.rate_limit_tokens
		WHERE scope = $1 AND token_key = $2
	`
	if err := r.db.QueryRowContext(ctx, fetch, scope, tokenKey).Scan(&next); err != nil {
		return false, time.Time{}, err
	}
	return false, next, nil
}
