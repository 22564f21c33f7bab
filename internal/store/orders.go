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

// CreateOrder claims the slot and inserts the order in one transaction.
// The claim is conditional on the slot being free and belonging to the order's channel.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Slot, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var slot models.Slot
	err = tx.GetContext(ctx, &slot, `
		UPDATE slots SET status = 'booked', updated_at = NOW()
		WHERE id = $1 AND channel_id = $2 AND status = 'free'
		RETURNING *`, order.SlotID, order.ChannelID)
	if err == sql.ErrNoRows {
		return nil, models.SlotUnavailablef("slot %s is booked or does not exist", order.SlotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}

	query := `
		INSERT INTO orders (id, tenant_id, advertiser_id, channel_id, slot_id, content, erid, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.ID, order.TenantID, order.AdvertiserID, order.ChannelID, order.SlotID,
		order.Content, order.Erid, order.Status, order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: order for slot %s", models.ErrDuplicateKey, order.SlotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("order %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE tenant_id = $1 AND idempotency_key = $2", tenantID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns a tenant's orders, newest first
func (s *Store) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	builder := psql.Select("*").
		From("orders").
		Where(squirrel.Eq{"tenant_id": f.TenantID})

	if f.ChannelID != nil {
		builder = builder.Where(squirrel.Eq{"channel_id": *f.ChannelID})
	}
	if f.Status != nil {
		builder = builder.Where(squirrel.Eq{"status": *f.Status})
	}

	query, args, err := builder.OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build orders query: %w", err)
	}

	orders := []models.Order{}
	err = s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// TransitionOrder applies a status compare-and-swap and, when requested,
// frees the bound slot in the same transaction.
func (s *Store) TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, *models.Slot, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		UPDATE orders
		SET status = $1,
			erid = COALESCE($2, erid),
			cancel_reason = COALESCE($3, cancel_reason),
			updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING *`,
		t.To, t.Erid, t.CancelReason, t.OrderID, t.From)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: order %s is no longer %s",
			models.ErrInvalidTransition, t.OrderID, t.From)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update order status: %w", err)
	}

	var released *models.Slot
	if t.ReleaseSlot {
		var slot models.Slot
		err = tx.GetContext(ctx, &slot, releaseSlotQuery, order.SlotID)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return nil, nil, fmt.Errorf("failed to release slot: %w", err)
		default:
			released = &slot
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &order, released, nil
}

// ListStaleDrafts returns draft orders created before the cutoff, oldest first
func (s *Store) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = 'draft' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, before, limit)
	return orders, err
}

// ListDueScheduledOrders returns scheduled orders whose slot time has arrived,
// earliest slot first
func (s *Store) ListDueScheduledOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT o.* FROM orders o
		JOIN slots sl ON sl.id = o.slot_id
		WHERE o.status = 'scheduled' AND sl.datetime <= $1
		ORDER BY sl.datetime ASC
		LIMIT $2`, now, limit)
	return orders, err
}

// CountOrders counts a tenant's orders
func (s *Store) CountOrders(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders WHERE tenant_id = $1", tenantID)
	return n, err
}
