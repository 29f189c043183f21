package reconcile

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/commercegrid/adsync-api/internal/models"
)

// CursorStore is the persistence surface for sync cursors. Satisfied by
// repository.CursorRepository.
type CursorStore interface {
	GetOrCreate(ctx context.Context, scope models.Scope, resourceType string) (models.SyncCursor, error)
	Save(ctx context.Context, cursor models.SyncCursor) error
}

// CursorTracker wraps the cursor store with the checkpoint rules: the
// revision marker never decreases when comparable, and always advances via a
// wall-clock fallback when the provider supplies no revision.
type CursorTracker struct {
	store CursorStore
	now   func() time.Time
}

func NewCursorTracker(store CursorStore) *CursorTracker {
	return &CursorTracker{store: store, now: time.Now}
}

// GetOrCreate never returns a null cursor; a fresh scope starts with an empty
// token and time window.
func (t *CursorTracker) GetOrCreate(ctx context.Context, scope models.Scope, resourceType string) (models.SyncCursor, error) {
	cursor, err := t.store.GetOrCreate(ctx, scope, resourceType)
	return cursor, errors.Wrap(err, "get or create sync cursor")
}

// Checkpoint records the end of a pass: observedRev when the provider
// supplied one, otherwise the current wall-clock second, so progress markers
// are monotonically non-decreasing even for revision-less resources.
func (t *CursorTracker) Checkpoint(ctx context.Context, cursor models.SyncCursor, observedRev, cursorToken string) (models.SyncCursor, error) {
	now := t.now().UTC()

	rev := observedRev
	if rev == "" {
		rev = strconv.FormatInt(now.Unix(), 10)
	}
	if cursor.LastRev != "" && revLess(rev, cursor.LastRev) {
		rev = cursor.LastRev
	}

	prevSynced := cursor.LastSyncedAt
	cursor.LastRev = rev
	cursor.CursorToken = cursorToken
	cursor.SinceTime = prevSynced
	cursor.UntilTime = &now
	cursor.LastSyncedAt = &now

	if err := t.store.Save(ctx, cursor); err != nil {
		return cursor, errors.Wrap(err, "checkpoint sync cursor")
	}
	return cursor, nil
}

// revLess reports a < b when both revisions are comparable. Revisions are
// provider-opaque: only all-digit markers compare numerically; anything else
// is trusted forward.
func revLess(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return false
}
