package store

import (
	"context"
	"fmt"
	"time"

	"adslot-service/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

// InsertViewEvents stores raw view events; already-seen event IDs are skipped.
func (s *Store) InsertViewEvents(ctx context.Context, events []models.ViewEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO view_events (event_id, order_id, channel_id, viewed_at, views)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		var orderID interface{}
		if e.OrderID != uuid.Nil {
			orderID = e.OrderID
		}
		res, err := stmt.ExecContext(ctx, e.EventID, orderID, e.ChannelID, e.ViewedAt, e.Views)
		if err != nil {
			return 0, fmt.Errorf("failed to insert view event %s: %w", e.EventID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ComputeDailyRollup derives one rollup row from the raw view log and published orders.
// Revenue is the frozen slot price of orders published into that day.
func (s *Store) ComputeDailyRollup(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error) {
	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)

	query := `
		SELECT
			c.id AS channel_id,
			c.tenant_id AS tenant_id,
			COALESCE((
				SELECT SUM(v.views) FROM view_events v
				WHERE v.channel_id = c.id AND v.viewed_at >= $2 AND v.viewed_at < $3
			), 0) AS views_total,
			(
				SELECT COUNT(*) FROM orders o JOIN slots s ON s.id = o.slot_id
				WHERE o.channel_id = c.id AND o.status = 'published'
					AND s.datetime >= $2 AND s.datetime < $3
			) AS orders_published,
			COALESCE((
				SELECT SUM(s.price) FROM orders o JOIN slots s ON s.id = o.slot_id
				WHERE o.channel_id = c.id AND o.status = 'published'
					AND s.datetime >= $2 AND s.datetime < $3
			), 0) AS revenue_total
		FROM channels c
		WHERE c.id = $1`

	var row struct {
		ChannelID       uuid.UUID `db:"channel_id"`
		TenantID        uuid.UUID `db:"tenant_id"`
		ViewsTotal      int64     `db:"views_total"`
		OrdersPublished int64     `db:"orders_published"`
		RevenueTotal    int64     `db:"revenue_total"`
	}
	if err := s.db.GetContext(ctx, &row, query, channelID, start, end); err != nil {
		return nil, fmt.Errorf("failed to compute rollup: %w", err)
	}

	return &models.DailyRollup{
		ChannelID:       row.ChannelID,
		Day:             start,
		TenantID:        row.TenantID,
		ViewsTotal:      row.ViewsTotal,
		OrdersPublished: row.OrdersPublished,
		RevenueTotal:    row.RevenueTotal,
	}, nil
}

// UpsertRollup overwrites the stored values for (channel, day)
func (s *Store) UpsertRollup(ctx context.Context, r *models.DailyRollup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_daily_rollups
			(channel_id, day, tenant_id, views_total, orders_published, revenue_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (channel_id, day) DO UPDATE SET
			views_total = EXCLUDED.views_total,
			orders_published = EXCLUDED.orders_published,
			revenue_total = EXCLUDED.revenue_total,
			updated_at = NOW()`,
		r.ChannelID, r.Day.Format(dayLayout), r.TenantID, r.ViewsTotal, r.OrdersPublished, r.RevenueTotal)
	return err
}

// GetRollup reads one stored rollup row
func (s *Store) GetRollup(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error) {
	var r models.DailyRollup
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM analytics_daily_rollups WHERE channel_id = $1 AND day = $2",
		channelID, models.DayOf(day).Format(dayLayout))
	if err != nil {
		return nil, err
	}
	r.Day = models.DayOf(r.Day)
	return &r, nil
}

// ListActiveDays returns every (channel, day) with view events or published
// orders in [from, to).
func (s *Store) ListActiveDays(ctx context.Context, from, to time.Time) ([]models.RollupKey, error) {
	query := `
		SELECT DISTINCT channel_id, day FROM (
			SELECT v.channel_id, (v.viewed_at AT TIME ZONE 'UTC')::date AS day
			FROM view_events v
			WHERE v.viewed_at >= $1 AND v.viewed_at < $2
			UNION
			SELECT o.channel_id, (s.datetime AT TIME ZONE 'UTC')::date AS day
			FROM orders o JOIN slots s ON s.id = o.slot_id
			WHERE o.status = 'published' AND s.datetime >= $1 AND s.datetime < $2
		) active
		ORDER BY day, channel_id`

	keys := []models.RollupKey{}
	if err := s.db.SelectContext(ctx, &keys, query, from, to); err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].Day = models.DayOf(keys[i].Day)
	}
	return keys, nil
}

// SumRollups totals views and revenue over all of a tenant's rollups
func (s *Store) SumRollups(ctx context.Context, tenantID uuid.UUID) (int64, int64, error) {
	var sums struct {
		Views   int64 `db:"views"`
		Revenue int64 `db:"revenue"`
	}
	err := s.db.GetContext(ctx, &sums, `
		SELECT COALESCE(SUM(views_total), 0) AS views, COALESCE(SUM(revenue_total), 0) AS revenue
		FROM analytics_daily_rollups WHERE tenant_id = $1`, tenantID)
	return sums.Views, sums.Revenue, err
}

// RevenueByTenant totals published orders and revenue per tenant, highest revenue first
func (s *Store) RevenueByTenant(ctx context.Context) ([]models.TenantRevenue, error) {
	query, args, err := psql.Select(
		"tenant_id",
		"COALESCE(SUM(orders_published), 0) AS orders_published",
		"COALESCE(SUM(revenue_total), 0) AS revenue_total",
	).
		From("analytics_daily_rollups").
		GroupBy("tenant_id").
		OrderBy("revenue_total DESC", "tenant_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	out := []models.TenantRevenue{}
	err = s.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

// ViewsByDay sums rollup views per day for the tenant over [from, to] inclusive.
// Days without rows are absent; callers zero-fill.
func (s *Store) ViewsByDay(ctx context.Context, tenantID uuid.UUID, from, to time.Time, channelID *uuid.UUID) ([]models.DayViews, error) {
	builder := psql.Select("day", "SUM(views_total) AS views").
		From("analytics_daily_rollups").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"day": models.DayOf(from).Format(dayLayout)}).
		Where(squirrel.LtOrEq{"day": models.DayOf(to).Format(dayLayout)})

	if channelID != nil {
		builder = builder.Where(squirrel.Eq{"channel_id": *channelID})
	}

	query, args, err := builder.GroupBy("day").OrderBy("day ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build views query: %w", err)
	}

	rows := []models.DayViews{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Day = models.DayOf(rows[i].Day)
	}
	return rows, nil
}
