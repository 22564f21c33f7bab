package store

import (
	"context"
	"database/sql"
	"fmt"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

// CreateChannel inserts a channel. Username is globally unique.
func (s *Store) CreateChannel(ctx context.Context, ch *models.Channel) error {
	query := `
		INSERT INTO channels (id, tenant_id, username, slot_duration, price_per_slot, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		ch.ID, ch.TenantID, ch.Username, ch.SlotDuration, ch.PricePerSlot, ch.IsActive,
	).Scan(&ch.CreatedAt, &ch.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: channel @%s", models.ErrDuplicateKey, ch.Username)
	}
	return err
}

// GetChannel retrieves a channel by ID
func (s *Store) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var ch models.Channel
	err := s.db.GetContext(ctx, &ch, "SELECT * FROM channels WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("channel %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels lists a tenant's channels, newest first
func (s *Store) ListChannels(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.SelectContext(ctx, &channels,
		"SELECT * FROM channels WHERE tenant_id = $1 ORDER BY created_at DESC", tenantID)
	return channels, err
}

// ListAllChannels lists every tenant's channels, newest first
func (s *Store) ListAllChannels(ctx context.Context) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.SelectContext(ctx, &channels, "SELECT * FROM channels ORDER BY created_at DESC")
	return channels, err
}

// UpdateChannel writes the mutable channel settings
func (s *Store) UpdateChannel(ctx context.Context, ch *models.Channel) error {
	query := `
		UPDATE channels
		SET username = $1, slot_duration = $2, price_per_slot = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := s.db.GetContext(ctx, &ch.UpdatedAt, query,
		ch.Username, ch.SlotDuration, ch.PricePerSlot, ch.IsActive, ch.ID)
	if err == sql.ErrNoRows {
		return models.NotFoundf("channel %s", ch.ID)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: channel @%s", models.ErrDuplicateKey, ch.Username)
	}
	return err
}

// CountChannels counts a tenant's channels
func (s *Store) CountChannels(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM channels WHERE tenant_id = $1", tenantID)
	return n, err
}
