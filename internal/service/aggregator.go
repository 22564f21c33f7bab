package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultViewsRangeDays = 30
	maxViewsRangeDays     = 366
	dateLayout            = "2006-01-02"
)

// AggregatorStore is the storage the aggregator reads and writes
type AggregatorStore interface {
	AnalyticsStore
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	CountChannels(ctx context.Context, tenantID uuid.UUID) (int64, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CountOrders(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// AnalyticsAggregator folds raw view events and published orders into daily
// rollups. It never runs on the booking path; rollups may lag the write path.
type AnalyticsAggregator struct {
	store      AggregatorStore
	windowDays int
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	dirty map[models.RollupKey]struct{}
}

// NewAnalyticsAggregator creates an aggregator that re-sweeps the trailing windowDays on every run
func NewAnalyticsAggregator(store AggregatorStore, windowDays int) *AnalyticsAggregator {
	return &AnalyticsAggregator{
		store:      store,
		windowDays: windowDays,
		logger:     util.GetLogger(),
		now:        time.Now,
		dirty:      make(map[models.RollupKey]struct{}),
	}
}

// ViewsQuery selects the views series; nil bounds take defaults
type ViewsQuery struct {
	From      *time.Time
	To        *time.Time
	ChannelID *uuid.UUID
}

// MarkDirty schedules (channel, day of t) for recomputation on the next run
func (a *AnalyticsAggregator) MarkDirty(channelID uuid.UUID, t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty[models.RollupKey{ChannelID: channelID, Day: models.DayOf(t)}] = struct{}{}
}

// DirtyCount reports how many rollups await recomputation
func (a *AnalyticsAggregator) DirtyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty)
}

// IngestViews stores raw view events and marks their days dirty.
// Events with an unknown channel or a non-positive count are dropped.
func (a *AnalyticsAggregator) IngestViews(ctx context.Context, events []models.ViewEvent) (int, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsAggregator.IngestViews")
	defer span.End()

	known := make(map[uuid.UUID]bool)
	accepted := make([]models.ViewEvent, 0, len(events))
	for _, e := range events {
		e.EventID = strings.TrimSpace(e.EventID)
		if e.EventID == "" || e.Views <= 0 || e.ViewedAt.IsZero() {
			a.logger.Warn("Dropping malformed view event", zap.String("event_id", e.EventID))
			continue
		}
		if e.ChannelID == uuid.Nil && e.OrderID != uuid.Nil {
			order, err := a.store.GetOrder(ctx, e.OrderID)
			if err != nil {
				a.logger.Warn("Dropping view event for unknown order",
					zap.String("event_id", e.EventID), zap.String("order_id", e.OrderID.String()))
				continue
			}
			e.ChannelID = order.ChannelID
		}
		ok, seen := known[e.ChannelID]
		if !seen {
			_, err := a.store.GetChannel(ctx, e.ChannelID)
			ok = err == nil
			known[e.ChannelID] = ok
		}
		if !ok {
			a.logger.Warn("Dropping view event for unknown channel",
				zap.String("event_id", e.EventID), zap.String("channel_id", e.ChannelID.String()))
			continue
		}
		e.ViewedAt = e.ViewedAt.UTC()
		accepted = append(accepted, e)
	}

	inserted, err := a.store.InsertViewEvents(ctx, accepted)
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}
	for _, e := range accepted {
		a.MarkDirty(e.ChannelID, e.ViewedAt)
	}

	util.ViewEventsIngestedTotal.Add(float64(inserted))
	return inserted, nil
}

// RecomputeDay rebuilds one rollup from source data. Running it twice with the
// same inputs stores the same values.
func (a *AnalyticsAggregator) RecomputeDay(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error) {
	r, err := a.store.ComputeDailyRollup(ctx, channelID, day)
	if err != nil {
		return nil, err
	}
	if err := a.store.UpsertRollup(ctx, r); err != nil {
		return nil, err
	}
	util.RollupsRecomputedTotal.Inc()
	return r, nil
}

// Run recomputes every dirty rollup plus every active day in the trailing window.
// Keys that fail are marked dirty again for the next run.
func (a *AnalyticsAggregator) Run(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsAggregator.Run")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AggregationLatency.Observe(time.Since(start).Seconds())
	}()

	a.mu.Lock()
	pending := a.dirty
	a.dirty = make(map[models.RollupKey]struct{})
	a.mu.Unlock()

	today := models.DayOf(a.now())
	from := today.AddDate(0, 0, -a.windowDays)
	active, err := a.store.ListActiveDays(ctx, from, today.AddDate(0, 0, 1))
	if err != nil {
		a.requeue(pending)
		util.AggregationRunsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return 0, err
	}
	for _, k := range active {
		pending[models.RollupKey{ChannelID: k.ChannelID, Day: models.DayOf(k.Day)}] = struct{}{}
	}

	recomputed := 0
	var firstErr error
	failed := make(map[models.RollupKey]struct{})
	for k := range pending {
		if _, err := a.RecomputeDay(ctx, k.ChannelID, k.Day); err != nil {
			failed[k] = struct{}{}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recomputed++
	}

	if firstErr != nil {
		a.requeue(failed)
		util.AggregationRunsTotal.WithLabelValues("partial").Inc()
		a.logger.Error("Aggregation pass incomplete",
			zap.Int("recomputed", recomputed),
			zap.Int("failed", len(failed)),
			zap.Error(firstErr))
		return recomputed, firstErr
	}

	util.AggregationRunsTotal.WithLabelValues("ok").Inc()
	a.logger.Debug("Aggregation pass finished", zap.Int("recomputed", recomputed))
	return recomputed, nil
}

func (a *AnalyticsAggregator) requeue(keys map[models.RollupKey]struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range keys {
		a.dirty[k] = struct{}{}
	}
}

// GetSummary returns live channel and order counts with rollup view and revenue totals
func (a *AnalyticsAggregator) GetSummary(ctx context.Context, tenantID uuid.UUID) (*models.Summary, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsAggregator.GetSummary")
	defer span.End()

	channels, err := a.store.CountChannels(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	orders, err := a.store.CountOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	views, revenue, err := a.store.SumRollups(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &models.Summary{
		ChannelsCount: channels,
		OrdersCount:   orders,
		ViewsTotal:    views,
		RevenueTotal:  revenue,
	}, nil
}

// GetViews returns one (date, views) point per day in [from, to], zero-filled and
// ascending. Defaults to the last 30 days; a reversed range is swapped.
func (a *AnalyticsAggregator) GetViews(ctx context.Context, tenantID uuid.UUID, q ViewsQuery) ([]models.ViewPoint, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsAggregator.GetViews")
	defer span.End()

	from, to := a.resolveRange(q.From, q.To)
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxViewsRangeDays {
		return nil, models.Validationf("date range exceeds %d days", maxViewsRangeDays)
	}

	if q.ChannelID != nil {
		ch, err := a.store.GetChannel(ctx, *q.ChannelID)
		if err != nil {
			return nil, err
		}
		if ch.TenantID != tenantID {
			return nil, models.NotFoundf("channel %s", *q.ChannelID)
		}
	}

	rows, err := a.store.ViewsByDay(ctx, tenantID, from, to, q.ChannelID)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]int64, len(rows))
	for _, r := range rows {
		byDay[models.DayOf(r.Day).Format(dateLayout)] += r.Views
	}

	points := make([]models.ViewPoint, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		points = append(points, models.ViewPoint{Date: key, Views: byDay[key]})
	}
	return points, nil
}

func (a *AnalyticsAggregator) resolveRange(fromPtr, toPtr *time.Time) (time.Time, time.Time) {
	today := models.DayOf(a.now())

	var from, to time.Time
	switch {
	case fromPtr == nil && toPtr == nil:
		to = today
		from = to.AddDate(0, 0, -(defaultViewsRangeDays - 1))
	case fromPtr == nil:
		to = models.DayOf(*toPtr)
		from = to.AddDate(0, 0, -(defaultViewsRangeDays - 1))
	case toPtr == nil:
		from = models.DayOf(*fromPtr)
		to = today
	default:
		from, to = models.DayOf(*fromPtr), models.DayOf(*toPtr)
	}

	if from.After(to) {
		from, to = to, from
	}
	return from, to
}
