package repository

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// AdvisoryLockManager provides binding-scoped mutual exclusion on top of
// Postgres session advisory locks. TryLock polls pg_try_advisory_lock on a
// dedicated connection until the bounded wait elapses; the lock is held for
// the lifetime of the returned release func, which also returns the
// connection to the pool.
type AdvisoryLockManager struct {
	db       *sql.DB
	pollTick time.Duration
	logger   zerolog.Logger
}

func NewAdvisoryLockManager(db *sql.DB, logger zerolog.Logger) *AdvisoryLockManager {
	return &AdvisoryLockManager{
		db:       db,
		pollTick: 250 * time.Millisecond,
		logger:   logger.With().Str("component", "advisory_lock").Logger(),
	}
}

// TryLock attempts to acquire the lock for scope, waiting at most wait.
// It returns held=false without error when a concurrent holder keeps the lock
// for the whole wait; lock contention is not a failure.
func (m *AdvisoryLockManager) TryLock(ctx context.Context, scope string, wait time.Duration) (bool, func(), error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return false, nil, errors.Wrap(err, "acquire lock connection")
	}

	key := lockKey(scope)
	deadline := time.Now().Add(wait)
	for {
		var held bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&held); err != nil {
			conn.Close()
			return false, nil, errors.Wrap(err, "try advisory lock")
		}
		if held {
			release := func() {
				// Unlock on a background context so release still works when
				// the caller's context is already cancelled.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
					m.logger.Error().Err(err).Str("scope", scope).Msg("failed to release advisory lock")
				}
				conn.Close()
			}
			return true, release, nil
		}
		if time.Now().After(deadline) {
			conn.Close()
			return false, nil, nil
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return false, nil, ctx.Err()
		case <-time.After(m.pollTick):
		}
	}
}

// lockKey hashes a scope string into the signed 64-bit keyspace Postgres
// advisory locks use.
func lockKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte(scope))
	return int64(h.Sum64())
}
