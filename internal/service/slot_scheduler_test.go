package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"adslot-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSlot_FreezesChannelSettings(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "frozen", 1800)
	slot := env.createSlot(t, ch, slotTime().Add(30*time.Minute))

	assert.Equal(t, models.SlotStatusFree, slot.Status)
	assert.Equal(t, 1800, slot.Duration)
	assert.Equal(t, int64(250000), slot.Price)

	newPrice := int64(999)
	_, err := env.channels.Update(env.ctx, env.tenant.ID, ch.ID, &UpdateChannelRequest{PricePerSlot: &newPrice})
	require.NoError(t, err)

	stored, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), stored.Price)
}

func TestCreateSlot_Validation(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "grid", 3600)

	inactive := false
	closed, err := env.channels.Create(env.ctx, env.tenant.ID, &CreateChannelRequest{
		Username: "closed",
		IsActive: &inactive,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		channel *models.Channel
		at      time.Time
		want    error
	}{
		{"off grid", ch, slotTime().Add(30 * time.Minute), models.ErrValidation},
		{"sub-second", ch, slotTime().Add(500 * time.Millisecond), models.ErrValidation},
		{"in the past", ch, testEpoch.Add(-time.Hour).Truncate(time.Hour), models.ErrValidation},
		{"inactive channel", closed, slotTime(), models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.scheduler.CreateSlot(env.ctx, env.tenant.ID, &CreateSlotRequest{
				ChannelID: tt.channel.ID,
				Datetime:  tt.at,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = env.scheduler.CreateSlot(env.ctx, otherTenantID(), &CreateSlotRequest{ChannelID: ch.ID, Datetime: slotTime()})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateSlot_AcceptsOtherTimezones(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "moscow", 900)

	msk := time.FixedZone("MSK", 3*60*60)
	slot := env.createSlot(t, ch, time.Date(2025, 3, 1, 13, 15, 0, 0, msk))
	assert.True(t, slot.Datetime.Equal(time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, slot.Datetime.Location())
}

func TestListSlots(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "listing", 3600)
	late := env.createSlot(t, ch, slotTime().Add(2*time.Hour))
	early := env.createSlot(t, ch, slotTime())
	env.createOrder(t, late)

	all, err := env.scheduler.ListSlots(env.ctx, env.tenant.ID, ListSlotsQuery{ChannelID: &ch.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, early.ID, all[0].ID)
	assert.Equal(t, late.ID, all[1].ID)

	free := models.SlotStatusFree
	onlyFree, err := env.scheduler.ListSlots(env.ctx, env.tenant.ID, ListSlotsQuery{Status: &free})
	require.NoError(t, err)
	require.Len(t, onlyFree, 1)
	assert.Equal(t, early.ID, onlyFree[0].ID)

	from, to := slotTime().Add(time.Hour), slotTime()
	_, err = env.scheduler.ListSlots(env.ctx, env.tenant.ID, ListSlotsQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestClaimAndReleaseSlot(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "claims", 3600)
	slot := env.createSlot(t, ch, slotTime())

	claimed, err := env.scheduler.ClaimSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, claimed.Status)

	_, err = env.scheduler.ClaimSlot(env.ctx, slot.ID)
	assert.ErrorIs(t, err, models.ErrSlotUnavailable)

	released, err := env.scheduler.ReleaseSlot(env.ctx, slot.ID, ReasonOrphanReclaimed)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, released.Status)

	again, err := env.scheduler.ReleaseSlot(env.ctx, slot.ID, ReasonOrphanReclaimed)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, again.Status)
	assert.Len(t, env.events.slotReleases(), 1)
}

func TestClaimSlot_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "contended", 3600)
	slot := env.createSlot(t, ch, slotTime())

	const callers = 32
	var (
		wg          sync.WaitGroup
		start       = make(chan struct{})
		mu          sync.Mutex
		succeeded   int
		unavailable int
		other       []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.scheduler.ClaimSlot(env.ctx, slot.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrSlotUnavailable):
				unavailable++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, unavailable)
	assert.Empty(t, other)

	stored, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, stored.Status)
}

func TestReleaseSlot_RefusesLiveOrder(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "held", 3600)
	slot := env.createSlot(t, ch, slotTime())
	env.createOrder(t, slot)

	_, err := env.scheduler.ReleaseSlot(env.ctx, slot.ID, ReasonOrphanReclaimed)
	assert.ErrorIs(t, err, models.ErrSlotUnavailable)

	stored, err := env.store.GetSlot(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusBooked, stored.Status)
}

func TestReleaseOwnedSlot(t *testing.T) {
	env := newTestEnv(t)
	ch := env.createChannel(t, "stuck", 3600)
	stuck := env.createSlot(t, ch, slotTime())
	held := env.createSlot(t, ch, slotTime().Add(time.Hour))
	env.createOrder(t, held)

	_, err := env.scheduler.ClaimSlot(env.ctx, stuck.ID)
	require.NoError(t, err)

	_, err = env.scheduler.ReleaseOwnedSlot(env.ctx, otherTenantID(), stuck.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	released, err := env.scheduler.ReleaseOwnedSlot(env.ctx, env.tenant.ID, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, released.Status)

	events := env.events.slotReleases()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonOwnerReleased, events[0].Reason)

	_, err = env.scheduler.ReleaseOwnedSlot(env.ctx, env.tenant.ID, held.ID)
	assert.ErrorIs(t, err, models.ErrSlotUnavailable)
}
