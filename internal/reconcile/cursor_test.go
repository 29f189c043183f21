package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercegrid/adsync-api/internal/models"
)

type fakeCursorStore struct {
	cursors map[string]models.SyncCursor
}

func newFakeCursorStore() *fakeCursorStore {
	return &fakeCursorStore{cursors: map[string]models.SyncCursor{}}
}

func cursorFakeKey(scope models.Scope, resourceType string) string {
	return scope.Key() + ":" + resourceType
}

func (f *fakeCursorStore) GetOrCreate(_ context.Context, scope models.Scope, resourceType string) (models.SyncCursor, error) {
	key := cursorFakeKey(scope, resourceType)
	if cursor, ok := f.cursors[key]; ok {
		return cursor, nil
	}
	cursor := models.SyncCursor{
		TenantID:     scope.TenantID,
		Provider:     scope.Provider,
		BindingID:    scope.BindingID,
		ResourceType: resourceType,
	}
	f.cursors[key] = cursor
	return cursor, nil
}

func (f *fakeCursorStore) Save(_ context.Context, cursor models.SyncCursor) error {
	scope := models.Scope{TenantID: cursor.TenantID, Provider: cursor.Provider, BindingID: cursor.BindingID}
	f.cursors[cursorFakeKey(scope, cursor.ResourceType)] = cursor
	return nil
}

func newTestTracker(now time.Time) (*CursorTracker, *fakeCursorStore) {
	store := newFakeCursorStore()
	tracker := NewCursorTracker(store)
	tracker.now = func() time.Time { return now }
	return tracker, store
}

func TestCheckpoint_RecordsObservedRevision(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(now)
	ctx := context.Background()

	cursor, err := tracker.GetOrCreate(ctx, testScope(), models.ResourceAdvertisers)
	require.NoError(t, err)
	assert.Empty(t, cursor.LastRev)
	assert.Nil(t, cursor.LastSyncedAt)

	saved, err := tracker.Checkpoint(ctx, cursor, "1700000500", "tok-9")
	require.NoError(t, err)
	assert.Equal(t, "1700000500", saved.LastRev)
	assert.Equal(t, "tok-9", saved.CursorToken)
	require.NotNil(t, saved.LastSyncedAt)
	assert.Equal(t, now, *saved.LastSyncedAt)
	assert.Nil(t, saved.SinceTime, "first pass has no previous window")
	require.NotNil(t, saved.UntilTime)
	assert.Equal(t, now, *saved.UntilTime)
}

func TestCheckpoint_WallClockFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(now)

	cursor, err := tracker.GetOrCreate(context.Background(), testScope(), models.ResourceStores)
	require.NoError(t, err)

	saved, err := tracker.Checkpoint(context.Background(), cursor, "", "")
	require.NoError(t, err)
	assert.Equal(t, "1772366400", saved.LastRev, "revision-less pass falls back to wall-clock seconds")
}

func TestCheckpoint_RevisionNeverRegresses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(now)
	ctx := context.Background()

	cursor, err := tracker.GetOrCreate(ctx, testScope(), models.ResourceAdvertisers)
	require.NoError(t, err)

	saved, err := tracker.Checkpoint(ctx, cursor, "2000", "")
	require.NoError(t, err)

	// An older observed revision keeps the stored marker.
	saved, err = tracker.Checkpoint(ctx, saved, "1500", "")
	require.NoError(t, err)
	assert.Equal(t, "2000", saved.LastRev)

	// A newer one advances it.
	saved, err = tracker.Checkpoint(ctx, saved, "2500", "")
	require.NoError(t, err)
	assert.Equal(t, "2500", saved.LastRev)
}

func TestCheckpoint_OpaqueRevisionsTrustForward(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(now)
	ctx := context.Background()

	cursor, err := tracker.GetOrCreate(ctx, testScope(), models.ResourceProducts)
	require.NoError(t, err)

	saved, err := tracker.Checkpoint(ctx, cursor, "etag-xyz", "")
	require.NoError(t, err)

	// Non-numeric markers are incomparable; later observations win.
	saved, err = tracker.Checkpoint(ctx, saved, "etag-abc", "")
	require.NoError(t, err)
	assert.Equal(t, "etag-abc", saved.LastRev)
}

func TestCheckpoint_WindowChains(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	tracker, _ := newTestTracker(first)
	ctx := context.Background()

	cursor, err := tracker.GetOrCreate(ctx, testScope(), models.ResourceAdvertisers)
	require.NoError(t, err)
	saved, err := tracker.Checkpoint(ctx, cursor, "100", "")
	require.NoError(t, err)

	tracker.now = func() time.Time { return second }
	saved, err = tracker.Checkpoint(ctx, saved, "200", "")
	require.NoError(t, err)

	require.NotNil(t, saved.SinceTime)
	assert.Equal(t, first, *saved.SinceTime, "next window starts where the previous pass ended")
	require.NotNil(t, saved.UntilTime)
	assert.Equal(t, second, *saved.UntilTime)
}

func TestDiffIDs(t *testing.T) {
	before := []string{"a", "b", "c"}
	after := []string{"b", "c", "d"}

	full := DiffIDs(before, after, true)
	assert.Equal(t, 1, full.Added)
	assert.Equal(t, 2, full.Unchanged)
	assert.Equal(t, 1, full.Removed)

	// Incremental passes observe a subset, so absence proves nothing.
	incremental := DiffIDs(before, after, false)
	assert.Equal(t, 1, incremental.Added)
	assert.Equal(t, 2, incremental.Unchanged)
	assert.Equal(t, 0, incremental.Removed)
}
