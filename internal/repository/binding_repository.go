package repository

import (
	"context"
	"database/sql"

	"github.com/commercegrid/adsync-api/internal/models"
)

// BindingRepository reads provider bindings and flags them invalid when a sync
// fails on a revoked or invalid credential. Re-authorization happens upstream.
type BindingRepository interface {
	Get(ctx context.Context, tenantID, bindingID string) (models.ProviderBinding, error)
	FlagAuthInvalid(ctx context.Context, tenantID, bindingID, reason string) error
}

type bindingRepository struct {
	db *sql.DB
}

func NewBindingRepository(db *sql.DB) BindingRepository {
	return &bindingRepository{db: db}
}

func (r *bindingRepository) Get(ctx context.Context, tenantID, bindingID string) (models.ProviderBinding, error) {
	const query = `
		SELECT id, tenant_id, provider, external_ref, auth_valid, auth_error, created_at, updated_at, invalid_at
		FROM tenant.provider_bindings
		WHERE id = $1 AND tenant_id = $2
	`
	var (
		binding   models.ProviderBinding
		authError sql.NullString
		invalidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, bindingID, tenantID).Scan(
		&binding.ID,
		&binding.TenantID,
		&binding.Provider,
		&binding.ExternalRef,
		&binding.AuthValid,
		&authError,
		&binding.CreatedAt,
		&binding.UpdatedAt,
		&invalidAt,
	)
	if err != nil {
		return models.ProviderBinding{}, err
	}
	if authError.Valid {
		binding.AuthError = &authError.String
	}
	if invalidAt.Valid {
		t := invalidAt.Time
		binding.InvalidAt = &t
	}
	return binding, nil
}

func (r *bindingRepository) FlagAuthInvalid(ctx context.Context, tenantID, bindingID, reason string) error {
	const query = `
		UPDATE tenant.provider_bindings
		SET auth_valid = FALSE,
		    auth_error = NULLIF($3, ''),
		    invalid_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, bindingID, tenantID, reason)
	return err
}
