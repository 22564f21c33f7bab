package store

import (
	"context"
	"database/sql"
	"fmt"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

// UpsertTenant returns the tenant for a Telegram user, creating it on first sight
func (s *Store) UpsertTenant(ctx context.Context, telegramID int64, name string) (*models.Tenant, error) {
	query := `
		INSERT INTO tenants (id, telegram_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE
			SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE tenants.name END
		RETURNING id, telegram_id, name, created_at`

	var tenant models.Tenant
	if err := s.db.GetContext(ctx, &tenant, query, uuid.New(), telegramID, name); err != nil {
		return nil, fmt.Errorf("failed to upsert tenant: %w", err)
	}
	return &tenant, nil
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant,
		"SELECT id, telegram_id, name, created_at FROM tenants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("tenant %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// CreateAPIKey stores a new key verifier
func (s *Store) CreateAPIKey(ctx context.Context, key *models.ApiKey) error {
	query := `
		INSERT INTO api_keys (id, tenant_id, name, key_hash, key_preview)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.db.GetContext(ctx, &key.CreatedAt, query,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPreview)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: api key", models.ErrDuplicateKey)
	}
	return err
}

// ListAPIKeys lists a tenant's keys, newest first
func (s *Store) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]models.ApiKey, error) {
	keys := []models.ApiKey{}
	err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC", tenantID)
	return keys, err
}

// DeleteAPIKey revokes a key owned by the tenant
func (s *Store) DeleteAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM api_keys WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NotFoundf("api key %s", id)
	}
	return nil
}

// GetAPIKeyByHash looks a key up by its verifier
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	var key models.ApiKey
	err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE key_hash = $1", hash)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("api key")
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}
