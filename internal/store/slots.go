package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adslot-service/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const (
	claimSlotQuery = `
		UPDATE slots SET status = 'booked', updated_at = NOW()
		WHERE id = $1 AND status = 'free'
		RETURNING *`

	releaseSlotQuery = `
		UPDATE slots SET status = 'free', updated_at = NOW()
		WHERE id = $1 AND status = 'booked'
		RETURNING *`
)

// CreateSlot inserts a free slot
func (s *Store) CreateSlot(ctx context.Context, slot *models.Slot) error {
	query := `
		INSERT INTO slots (id, tenant_id, channel_id, datetime, status, duration, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		slot.ID, slot.TenantID, slot.ChannelID, slot.Datetime, slot.Status, slot.Duration, slot.Price,
	).Scan(&slot.CreatedAt, &slot.UpdatedAt)
}

// GetSlot retrieves a slot by ID
func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	var slot models.Slot
	err := s.db.GetContext(ctx, &slot, "SELECT * FROM slots WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("slot %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListSlots returns slots matching the filter ordered by datetime
func (s *Store) ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error) {
	builder := psql.Select("*").
		From("slots").
		Where(squirrel.Eq{"tenant_id": f.TenantID})

	if f.ChannelID != nil {
		builder = builder.Where(squirrel.Eq{"channel_id": *f.ChannelID})
	}
	if f.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"datetime": *f.From})
	}
	if f.To != nil {
		builder = builder.Where(squirrel.LtOrEq{"datetime": *f.To})
	}
	if f.Status != nil {
		builder = builder.Where(squirrel.Eq{"status": *f.Status})
	}

	query, args, err := builder.OrderBy("datetime ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build slots query: %w", err)
	}

	slots := []models.Slot{}
	err = s.db.SelectContext(ctx, &slots, query, args...)
	return slots, err
}

// ClaimSlot moves a free slot to booked in a single conditional update
func (s *Store) ClaimSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	var slot models.Slot
	err := s.db.GetContext(ctx, &slot, claimSlotQuery, id)
	if err == sql.ErrNoRows {
		return nil, models.SlotUnavailablef("slot %s is booked or does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ReleaseSlot moves a booked slot back to free. Releasing a free slot is a no-op.
// A slot still referenced by a live order is not released.
func (s *Store) ReleaseSlot(ctx context.Context, id uuid.UUID) (*models.Slot, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var slot models.Slot
	err = tx.GetContext(ctx, &slot, "SELECT * FROM slots WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, false, models.NotFoundf("slot %s", id)
	}
	if err != nil {
		return nil, false, err
	}
	if slot.Status == models.SlotStatusFree {
		return &slot, false, nil
	}

	var held bool
	err = tx.GetContext(ctx, &held,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE slot_id = $1 AND status <> 'cancelled')", id)
	if err != nil {
		return nil, false, err
	}
	if held {
		return nil, false, models.SlotUnavailablef("slot %s is held by a live order", id)
	}

	if err := tx.GetContext(ctx, &slot, releaseSlotQuery, id); err != nil {
		return nil, false, fmt.Errorf("failed to release slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &slot, true, nil
}

// ReleaseOrphanedSlots frees booked slots that no live order references.
// Only slots last touched before olderThan are considered.
func (s *Store) ReleaseOrphanedSlots(ctx context.Context, olderThan time.Time) ([]models.Slot, error) {
	query := `
		UPDATE slots s SET status = 'free', updated_at = NOW()
		WHERE s.status = 'booked'
			AND s.updated_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM orders o WHERE o.slot_id = s.id AND o.status <> 'cancelled'
			)
		RETURNING s.*`

	released := []models.Slot{}
	err := s.db.SelectContext(ctx, &released, query, olderThan)
	return released, err
}
