package repository

import (
	"context"
	"database/sql"

	"github.com/commercegrid/adsync-api/internal/models"
)

// LinkRepository persists relationship edges. The conflict-resolution rule
// between relation signals lives in the reconcile package; this layer only
// reads and writes rows.
type LinkRepository interface {
	Get(ctx context.Context, scope models.Scope, advertiserID, otherID, linkKind string) (*models.EntityLink, error)
	Save(ctx context.Context, link models.EntityLink) error
	ListByAdvertiser(ctx context.Context, scope models.Scope, advertiserID string) ([]models.EntityLink, error)
}

type linkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Get(ctx context.Context, scope models.Scope, advertiserID, otherID, linkKind string) (*models.EntityLink, error) {
	const query = `
		SELECT id, tenant_id, binding_id, advertiser_id, other_id, link_kind, relation_type, source, raw, first_seen_at, last_seen_at
		FROM tenant.entity_links
		WHERE tenant_id = $1 AND binding_id = $2 AND advertiser_id = $3 AND other_id = $4 AND link_kind = $5
	`
	var link models.EntityLink
	err := r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BindingID, advertiserID, otherID, linkKind).Scan(
		&link.ID,
		&link.TenantID,
		&link.BindingID,
		&link.AdvertiserID,
		&link.OtherID,
		&link.LinkKind,
		&link.RelationType,
		&link.Source,
		&link.Raw,
		&link.FirstSeenAt,
		&link.LastSeenAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) Save(ctx context.Context, link models.EntityLink) error {
	const query = `
		INSERT INTO tenant.entity_links
			(tenant_id, binding_id, advertiser_id, other_id, link_kind, relation_type, source, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, binding_id, advertiser_id, other_id, link_kind) DO UPDATE SET
			relation_type = EXCLUDED.relation_type,
			source = EXCLUDED.source,
			raw = EXCLUDED.raw,
			last_seen_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		link.TenantID, link.BindingID, link.AdvertiserID, link.OtherID, link.LinkKind,
		link.RelationType, link.Source, link.Raw,
	)
	return err
}

func (r *linkRepository) ListByAdvertiser(ctx context.Context, scope models.Scope, advertiserID string) ([]models.EntityLink, error) {
	const query = `
		SELECT id, tenant_id, binding_id, advertiser_id, other_id, link_kind, relation_type, source, raw, first_seen_at, last_seen_at
		FROM tenant.entity_links
		WHERE tenant_id = $1 AND binding_id = $2 AND advertiser_id = $3
		ORDER BY link_kind, other_id
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BindingID, advertiserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.EntityLink
	for rows.Next() {
		var link models.EntityLink
		if err := rows.Scan(
			&link.ID,
			&link.TenantID,
			&link.BindingID,
			&link.AdvertiserID,
			&link.OtherID,
			&link.LinkKind,
			&link.RelationType,
			&link.Source,
			&link.Raw,
			&link.FirstSeenAt,
			&link.LastSeenAt,
		); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
