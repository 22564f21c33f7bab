package service

import (
	"testing"
	"time"

	"adslot-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftSweeper_CancelsExpiredDrafts(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "sweep", 3600)
	stale := env.createOrder(t, env.createSlot(t, ch, slotTime()))
	paid := env.createOrder(t, env.createSlot(t, ch, slotTime().Add(time.Hour)))
	env.transition(t, paid, models.OrderStatusPaid, "")

	env.advance(20 * time.Minute)
	fresh := env.createOrder(t, env.createSlot(t, ch, slotTime().Add(2*time.Hour)))

	sweeper := NewDraftSweeper(env.store, env.orders, 30*time.Minute, 100)
	sweeper.now = env.clock

	env.advance(15 * time.Minute)
	n, err := sweeper.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.store.GetOrder(env.ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, ReasonDraftExpired, *got.CancelReason)

	slot, err := env.store.GetSlot(env.ctx, stale.SlotID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, slot.Status)

	for _, id := range []models.Order{*paid, *fresh} {
		o, err := env.store.GetOrder(env.ctx, id.ID)
		require.NoError(t, err)
		assert.NotEqual(t, models.OrderStatusCancelled, o.Status)
	}

	n, err = sweeper.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSlotReconciler_ReleasesOrphans(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "orphans", 3600)
	orphan := env.createSlot(t, ch, slotTime())
	recent := env.createSlot(t, ch, slotTime().Add(time.Hour))
	held := env.createSlot(t, ch, slotTime().Add(2*time.Hour))

	// Claims without an order simulate a booking transaction that never finished.
	env.setNow(testEpoch.Add(-2 * time.Hour))
	_, err := env.scheduler.ClaimSlot(env.ctx, orphan.ID)
	require.NoError(t, err)
	env.createOrder(t, held)

	env.setNow(testEpoch.Add(-time.Minute))
	_, err = env.scheduler.ClaimSlot(env.ctx, recent.ID)
	require.NoError(t, err)
	env.setNow(testEpoch)

	reconciler := NewSlotReconciler(env.store, env.scheduler, 10*time.Minute)
	reconciler.now = env.clock

	n, err := reconciler.Reconcile(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	statuses := map[string]models.SlotStatus{}
	for name, id := range map[string]*models.Slot{"orphan": orphan, "recent": recent, "held": held} {
		s, err := env.store.GetSlot(env.ctx, id.ID)
		require.NoError(t, err)
		statuses[name] = s.Status
	}
	assert.Equal(t, models.SlotStatusFree, statuses["orphan"])
	assert.Equal(t, models.SlotStatusBooked, statuses["recent"])
	assert.Equal(t, models.SlotStatusBooked, statuses["held"])

	releases := env.events.slotReleases()
	require.Len(t, releases, 1)
	assert.Equal(t, ReasonOrphanReclaimed, releases[0].Reason)
}
