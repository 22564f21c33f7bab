package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLifecycle_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "@spring_deals", 3600)
	slot := env.createSlot(t, ch, slotTime())

	order := env.createOrder(t, slot)
	assert.Equal(t, models.OrderStatusDraft, order.Status)

	booked, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, booked.Status)

	order = env.transition(t, order, models.OrderStatusPaid, "")
	order = env.transition(t, order, models.OrderStatusMarked, "2VtzqxYfW8k")
	require.NotNil(t, order.Erid)
	assert.Equal(t, "2VtzqxYfW8k", *order.Erid)

	order = env.transition(t, order, models.OrderStatusScheduled, "")
	order = env.transition(t, order, models.OrderStatusPublished, "")
	assert.Equal(t, models.OrderStatusPublished, order.Status)

	booked, err = env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, booked.Status)

	changes := env.events.statusChanges()
	require.Len(t, changes, 4)
	scheduled := changes[2]
	assert.Equal(t, models.OrderStatusScheduled, scheduled.To)
	assert.Contains(t, scheduled.PostText, "ERID: 2VtzqxYfW8k")
	assert.True(t, scheduled.SlotTime.Equal(slotTime()))

	_, err = env.orders.UpdateStatus(env.ctx, env.tenant.ID, order.ID, &UpdateStatusRequest{Status: "cancelled"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestOrderLifecycle_RejectsSkippedStates(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "skipper", 3600)
	order := env.createOrder(t, env.createSlot(t, ch, slotTime()))

	erid := "abc"
	_, err := env.orders.UpdateStatus(env.ctx, env.tenant.ID, order.ID, &UpdateStatusRequest{
		Status: "marked",
		Erid:   &erid,
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := env.store.GetOrder(env.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDraft, stored.Status)
	assert.Nil(t, stored.Erid)
}

func TestOrderLifecycle_MarkRequiresErid(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "erid_check", 3600)
	order := env.createOrder(t, env.createSlot(t, ch, slotTime()))
	env.transition(t, order, models.OrderStatusPaid, "")

	_, err := env.orders.UpdateStatus(env.ctx, env.tenant.ID, order.ID, &UpdateStatusRequest{Status: "marked"})
	assert.ErrorIs(t, err, models.ErrValidation)

	erid := "late"
	_, err = env.orders.UpdateStatus(env.ctx, env.tenant.ID, order.ID, &UpdateStatusRequest{Status: "cancelled", Erid: &erid})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestOrderLifecycle_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "unknown_status", 3600)
	order := env.createOrder(t, env.createSlot(t, ch, slotTime()))

	_, err := env.orders.UpdateStatus(env.ctx, env.tenant.ID, order.ID, &UpdateStatusRequest{Status: "shipped"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "rebook", 3600)
	slot := env.createSlot(t, ch, slotTime())

	first := env.createOrder(t, slot)
	env.transition(t, first, models.OrderStatusPaid, "")
	cancelled := env.transition(t, first, models.OrderStatusCancelled, "")
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, ReasonUserCancelled, *cancelled.CancelReason)

	freed, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, freed.Status)

	releases := env.events.slotReleases()
	require.Len(t, releases, 1)
	assert.Equal(t, slot.ID, releases[0].SlotID)
	assert.Equal(t, ReasonUserCancelled, releases[0].Reason)

	second := env.createOrder(t, slot)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = env.orders.UpdateStatus(env.ctx, env.tenant.ID, first.ID, &UpdateStatusRequest{Status: "paid"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCreateOrder_ConcurrentClaimsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "hot_slot", 3600)
	slot := env.createSlot(t, ch, slotTime())

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		other     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(advertiser int64) {
			defer wg.Done()
			_, _, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, advertiser, &CreateOrderRequest{
				ChannelID: ch.ID,
				SlotID:    slot.ID,
				Content:   testContent(t),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, models.ErrSlotUnavailable):
				other = append(other, err)
			}
		}(int64(5000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Empty(t, other)

	orders, err := env.orders.ListOrders(env.ctx, env.tenant.ID, ListOrdersQuery{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCreateOrder_ConcurrentSameIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "retry_storm", 3600)
	content := testContent(t)

	for round := 0; round < 20; round++ {
		slot := env.createSlot(t, ch, slotTime().Add(time.Duration(round)*time.Hour))
		key := fmt.Sprintf("retry-%d", round)

		const callers = 8
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			mu      sync.Mutex
			ids     = map[uuid.UUID]int{}
			created int
			errs    []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				order, isNew, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, 777, &CreateOrderRequest{
					ChannelID:      ch.ID,
					SlotID:         slot.ID,
					Content:        content,
					IdempotencyKey: key,
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids[order.ID]++
				if isNew {
					created++
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Empty(t, errs, "round %d", round)
		assert.Len(t, ids, 1, "round %d", round)
		assert.Equal(t, 1, created, "round %d", round)
	}
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "idem", 3600)
	slot := env.createSlot(t, ch, slotTime())

	req := &CreateOrderRequest{
		ChannelID:      ch.ID,
		SlotID:         slot.ID,
		Content:        testContent(t),
		IdempotencyKey: "checkout-42",
	}
	first, created, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, 77, req)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, 77, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, env.events.created, 1)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "validation", 3600)
	other := env.createChannel(t, "validation_other", 3600)
	slot := env.createSlot(t, ch, slotTime())

	tests := []struct {
		name string
		req  *CreateOrderRequest
		want error
	}{
		{
			name: "missing content",
			req:  &CreateOrderRequest{ChannelID: ch.ID, SlotID: slot.ID},
			want: models.ErrValidation,
		},
		{
			name: "slot on another channel",
			req:  &CreateOrderRequest{ChannelID: other.ID, SlotID: slot.ID, Content: testContent(t)},
			want: models.ErrValidation,
		},
		{
			name: "unknown slot",
			req:  &CreateOrderRequest{ChannelID: ch.ID, SlotID: otherTenantID(), Content: testContent(t)},
			want: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, 1, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	free, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, free.Status)
}

func TestCreateOrder_PastSlot(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "past", 3600)
	slot := env.createSlot(t, ch, slotTime())

	env.setNow(slotTime().Add(time.Hour))
	_, _, err := env.orders.CreateOrder(env.ctx, env.tenant.ID, 1, &CreateOrderRequest{
		ChannelID: ch.ID,
		SlotID:    slot.ID,
		Content:   testContent(t),
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetOrder_OtherTenantIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "private", 3600)
	order := env.createOrder(t, env.createSlot(t, ch, slotTime()))

	_, err := env.orders.GetOrder(env.ctx, otherTenantID(), order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
