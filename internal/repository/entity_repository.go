package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/commercegrid/adsync-api/internal/models"
)

// EntityRepository persists the typed projections of remote entities. Upserts
// are keyed by the natural composite identity (tenant, binding, natural_id);
// matched rows have their projection and raw payload fully replaced and
// last_seen_at refreshed. Rows are never hard-deleted by a sync pass.
type EntityRepository interface {
	UpsertBusinessCenter(ctx context.Context, bc models.BusinessCenter) (bool, error)
	UpsertAdvertiser(ctx context.Context, adv models.Advertiser) (bool, error)
	UpsertStore(ctx context.Context, store models.Store) (bool, error)
	UpsertProduct(ctx context.Context, product models.Product) (bool, error)
	ListNaturalIDs(ctx context.Context, scope models.Scope, resourceType string) ([]string, error)
	GetAdvertiser(ctx context.Context, scope models.Scope, naturalID string) (models.Advertiser, error)
}

type entityRepository struct {
	db *sql.DB
}

func NewEntityRepository(db *sql.DB) EntityRepository {
	return &entityRepository{db: db}
}

func (r *entityRepository) UpsertBusinessCenter(ctx context.Context, bc models.BusinessCenter) (bool, error) {
	const query = `
		INSERT INTO tenant.business_centers
			(tenant_id, binding_id, natural_id, name, status, currency, timezone, raw, sync_rev)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, binding_id, natural_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			currency = EXCLUDED.currency,
			timezone = EXCLUDED.timezone,
			raw = EXCLUDED.raw,
			sync_rev = EXCLUDED.sync_rev,
			last_seen_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		bc.TenantID, bc.BindingID, bc.NaturalID,
		bc.Name, bc.Status, bc.Currency, bc.Timezone,
		bc.Raw, bc.SyncRev,
	).Scan(&inserted)
	return inserted, err
}

func (r *entityRepository) UpsertAdvertiser(ctx context.Context, adv models.Advertiser) (bool, error) {
	const query = `
		INSERT INTO tenant.advertisers
			(tenant_id, binding_id, natural_id, name, status, currency, timezone, industry, owner_bc_id, raw, sync_rev)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, binding_id, natural_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			currency = EXCLUDED.currency,
			timezone = EXCLUDED.timezone,
			industry = EXCLUDED.industry,
			owner_bc_id = EXCLUDED.owner_bc_id,
			raw = EXCLUDED.raw,
			sync_rev = EXCLUDED.sync_rev,
			last_seen_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		adv.TenantID, adv.BindingID, adv.NaturalID,
		adv.Name, adv.Status, adv.Currency, adv.Timezone, adv.Industry, adv.OwnerBCID,
		adv.Raw, adv.SyncRev,
	).Scan(&inserted)
	return inserted, err
}

func (r *entityRepository) UpsertStore(ctx context.Context, store models.Store) (bool, error) {
	const query = `
		INSERT INTO tenant.stores
			(tenant_id, binding_id, natural_id, name, status, store_type, region, advertiser_id, raw, sync_rev)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, binding_id, natural_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			store_type = EXCLUDED.store_type,
			region = EXCLUDED.region,
			advertiser_id = EXCLUDED.advertiser_id,
			raw = EXCLUDED.raw,
			sync_rev = EXCLUDED.sync_rev,
			last_seen_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		store.TenantID, store.BindingID, store.NaturalID,
		store.Name, store.Status, store.StoreType, store.Region, store.AdvertiserID,
		store.Raw, store.SyncRev,
	).Scan(&inserted)
	return inserted, err
}

func (r *entityRepository) UpsertProduct(ctx context.Context, product models.Product) (bool, error) {
	const query = `
		INSERT INTO tenant.products
			(tenant_id, binding_id, natural_id, store_id, title, status, eligibility, raw, sync_rev)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, binding_id, natural_id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			eligibility = EXCLUDED.eligibility,
			raw = EXCLUDED.raw,
			sync_rev = EXCLUDED.sync_rev,
			last_seen_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		product.TenantID, product.BindingID, product.NaturalID,
		product.StoreID, product.Title, product.Status, product.Eligibility,
		product.Raw, product.SyncRev,
	).Scan(&inserted)
	return inserted, err
}

var entityTables = map[string]string{
	models.ResourceBusinessCenters: "tenant.business_centers",
	models.ResourceAdvertisers:     "tenant.advertisers",
	models.ResourceStores:          "tenant.stores",
	models.ResourceProducts:        "tenant.products",
}

func (r *entityRepository) ListNaturalIDs(ctx context.Context, scope models.Scope, resourceType string) ([]string, error) {
	table, ok := entityTables[resourceType]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
	query := fmt.Sprintf(`
		SELECT natural_id FROM %s
		WHERE tenant_id = $1 AND binding_id = $2
		ORDER BY natural_id
	`, table)

	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BindingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *entityRepository) GetAdvertiser(ctx context.Context, scope models.Scope, naturalID string) (models.Advertiser, error) {
	const query = `
		SELECT id, tenant_id, binding_id, natural_id, name, status, currency, timezone, industry, owner_bc_id, raw, sync_rev, first_seen_at, last_seen_at
		FROM tenant.advertisers
		WHERE tenant_id = $1 AND binding_id = $2 AND natural_id = $3
	`
	var adv models.Advertiser
	err := r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BindingID, naturalID).Scan(
		&adv.ID,
		&adv.TenantID,
		&adv.BindingID,
		&adv.NaturalID,
		&adv.Name,
		&adv.Status,
		&adv.Currency,
		&adv.Timezone,
		&adv.Industry,
		&adv.OwnerBCID,
		&adv.Raw,
		&adv.SyncRev,
		&adv.FirstSeenAt,
		&adv.LastSeenAt,
	)
	return adv, err
}
