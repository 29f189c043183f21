package repository

import (
	"context"
	"database/sql"

	"github.com/commercegrid/adsync-api/internal/models"
)

// CursorRepository stores per (tenant, provider, binding, resource_type) sync
// cursors. GetOrCreate never returns an empty result: a fresh scope starts
// with an empty token and time window.
type CursorRepository interface {
	GetOrCreate(ctx context.Context, scope models.Scope, resourceType string) (models.SyncCursor, error)
	Save(ctx context.Context, cursor models.SyncCursor) error
	List(ctx context.Context, tenantID string) ([]models.SyncCursor, error)
}

type cursorRepository struct {
	db *sql.DB
}

func NewCursorRepository(db *sql.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) GetOrCreate(ctx context.Context, scope models.Scope, resourceType string) (models.SyncCursor, error) {
	const query = `
		INSERT INTO tenant.sync_cursors (tenant_id, provider, binding_id, resource_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, provider, binding_id, resource_type) DO UPDATE SET
			updated_at = tenant.sync_cursors.updated_at
		RETURNING id, tenant_id, provider, binding_id, resource_type, cursor_token, since_time, until_time, last_rev, extra, last_synced_at, created_at, updated_at
	`
	return scanCursor(r.db.QueryRowContext(ctx, query, scope.TenantID, scope.Provider, scope.BindingID, resourceType))
}

func (r *cursorRepository) Save(ctx context.Context, cursor models.SyncCursor) error {
	const query = `
		UPDATE tenant.sync_cursors
		SET cursor_token = $5,
		    since_time = $6,
		    until_time = $7,
		    last_rev = $8,
		    extra = $9,
		    last_synced_at = $10,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND provider = $2 AND binding_id = $3 AND resource_type = $4
	`
	var extra interface{}
	if len(cursor.Extra) > 0 {
		extra = []byte(cursor.Extra)
	}
	_, err := r.db.ExecContext(ctx, query,
		cursor.TenantID, cursor.Provider, cursor.BindingID, cursor.ResourceType,
		cursor.CursorToken, cursor.SinceTime, cursor.UntilTime, cursor.LastRev,
		extra, cursor.LastSyncedAt,
	)
	return err
}

func (r *cursorRepository) List(ctx context.Context, tenantID string) ([]models.SyncCursor, error) {
	const query = `
		SELECT id, tenant_id, provider, binding_id, resource_type, cursor_token, since_time, until_time, last_rev, extra, last_synced_at, created_at, updated_at
		FROM tenant.sync_cursors
		WHERE tenant_id = $1
		ORDER BY binding_id, resource_type
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cursors []models.SyncCursor
	for rows.Next() {
		cursor, err := scanCursor(rows)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, cursor)
	}
	return cursors, rows.Err()
}

func scanCursor(scanner interface {
	Scan(dest ...interface{}) error
}) (models.SyncCursor, error) {
	var (
		cursor     models.SyncCursor
		sinceTime  sql.NullTime
		untilTime  sql.NullTime
		extra      []byte
		lastSynced sql.NullTime
	)
	if err := scanner.Scan(
		&cursor.ID,
		&cursor.TenantID,
		&cursor.Provider,
		&cursor.BindingID,
		&cursor.ResourceType,
		&cursor.CursorToken,
		&sinceTime,
		&untilTime,
		&cursor.LastRev,
		&extra,
		&lastSynced,
		&cursor.CreatedAt,
		&cursor.UpdatedAt,
	); err != nil {
		return models.SyncCursor{}, err
	}
	if sinceTime.Valid {
		t := sinceTime.Time
		cursor.SinceTime = &t
	}
	if untilTime.Valid {
		t := untilTime.Time
		cursor.UntilTime = &t
	}
	if len(extra) > 0 {
		cursor.Extra = extra
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		cursor.LastSyncedAt = &t
	}
	return cursor, nil
}
