package service

import (
	"testing"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishedOrder(t *testing.T, env *testEnv, ch *models.Channel) *models.Order {
	t.Helper()
	order := env.createOrder(t, env.createSlot(t, ch, slotTime()))
	env.transition(t, order, models.OrderStatusPaid, "")
	env.transition(t, order, models.OrderStatusMarked, "erid-1")
	env.transition(t, order, models.OrderStatusScheduled, "")
	return env.transition(t, order, models.OrderStatusPublished, "")
}

func newTestAggregator(env *testEnv) *AnalyticsAggregator {
	agg := NewAnalyticsAggregator(env.store, 7)
	agg.now = env.clock
	return agg
}

func TestAggregator_IngestAndRollup(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "analytics", 3600)
	order := publishedOrder(t, env, ch)
	agg := newTestAggregator(env)

	n, err := agg.IngestViews(env.ctx, []models.ViewEvent{
		{EventID: "v1", OrderID: order.ID, ViewedAt: slotTime().Add(time.Hour), Views: 150},
		{EventID: "v2", ChannelID: ch.ID, ViewedAt: slotTime().Add(5 * time.Hour), Views: 50},
		{EventID: "v3", ChannelID: ch.ID, ViewedAt: slotTime().AddDate(0, 0, -1), Views: 10},
		{EventID: "bad", ChannelID: ch.ID, ViewedAt: slotTime(), Views: 0},
		{EventID: "ghost", ChannelID: uuid.New(), ViewedAt: slotTime(), Views: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, agg.DirtyCount())

	n, err = agg.IngestViews(env.ctx, []models.ViewEvent{
		{EventID: "v1", OrderID: order.ID, ViewedAt: slotTime().Add(time.Hour), Views: 150},
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	env.setNow(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC))
	recomputed, err := agg.Run(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, recomputed)
	assert.Zero(t, agg.DirtyCount())

	r, err := env.store.GetRollup(env.ctx, ch.ID, slotTime())
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.ViewsTotal)
	assert.Equal(t, int64(1), r.OrdersPublished)
	assert.Equal(t, int64(250000), r.RevenueTotal)

	summary, err := agg.GetSummary(env.ctx, env.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.Summary{
		ChannelsCount: 1,
		OrdersCount:   1,
		ViewsTotal:    210,
		RevenueTotal:  250000,
	}, summary)
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "idempotent", 3600)
	publishedOrder(t, env, ch)
	agg := newTestAggregator(env)

	_, err := agg.IngestViews(env.ctx, []models.ViewEvent{
		{EventID: "a", ChannelID: ch.ID, ViewedAt: slotTime().Add(time.Hour), Views: 42},
	})
	require.NoError(t, err)

	first, err := agg.RecomputeDay(env.ctx, ch.ID, slotTime())
	require.NoError(t, err)
	second, err := agg.RecomputeDay(env.ctx, ch.ID, slotTime())
	require.NoError(t, err)

	assert.Equal(t, first.ViewsTotal, second.ViewsTotal)
	assert.Equal(t, first.OrdersPublished, second.OrdersPublished)
	assert.Equal(t, first.RevenueTotal, second.RevenueTotal)

	stored, err := env.store.GetRollup(env.ctx, ch.ID, slotTime())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.ViewsTotal)
}

func TestAggregator_GetViewsZeroFills(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "series", 3600)
	agg := newTestAggregator(env)

	_, err := agg.IngestViews(env.ctx, []models.ViewEvent{
		{EventID: "d1", ChannelID: ch.ID, ViewedAt: time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC), Views: 10},
		{EventID: "d2", ChannelID: ch.ID, ViewedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), Views: 200},
	})
	require.NoError(t, err)
	_, err = agg.Run(env.ctx)
	require.NoError(t, err)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	points, err := agg.GetViews(env.ctx, env.tenant.ID, ViewsQuery{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []models.ViewPoint{
		{Date: "2025-02-27", Views: 0},
		{Date: "2025-02-28", Views: 10},
		{Date: "2025-03-01", Views: 200},
		{Date: "2025-03-02", Views: 0},
	}, points)

	defaults, err := agg.GetViews(env.ctx, env.tenant.ID, ViewsQuery{})
	require.NoError(t, err)
	require.Len(t, defaults, 30)
	assert.Equal(t, "2025-02-01", defaults[29].Date)
}

func TestAggregator_GetViewsValidation(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "guarded", 3600)
	agg := newTestAggregator(env)

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := agg.GetViews(env.ctx, env.tenant.ID, ViewsQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = agg.GetViews(env.ctx, otherTenantID(), ViewsQuery{ChannelID: &ch.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
