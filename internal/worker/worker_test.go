package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/service"
	"adslot-service/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: body}
}

func TestViewWorker_IngestsViews(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tenant, err := store.UpsertTenant(ctx, 1, "owner")
	require.NoError(t, err)
	ch, err := service.NewChannelService(store, nil, time.Minute).
		Create(ctx, tenant.ID, &service.CreateChannelRequest{Username: "views"})
	require.NoError(t, err)

	aggregator := service.NewAnalyticsAggregator(store, 7)
	w := NewViewWorker(nil, aggregator)

	event := &models.ViewsRecordedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeViewsRecorded),
		Views: []models.ViewEvent{
			{EventID: "p1", ChannelID: ch.ID, ViewedAt: time.Now(), Views: 12},
			{EventID: "p2", ChannelID: uuid.New(), ViewedAt: time.Now(), Views: 5},
		},
	}
	require.NoError(t, w.HandleMessage(ctx, encode(t, event)))
	assert.Equal(t, 1, aggregator.DirtyCount())
}

func TestAnalyticsWorker_MarksPublishedDays(t *testing.T) {
	aggregator := service.NewAnalyticsAggregator(memstore.New(), 7)
	w := NewAnalyticsWorker(nil, aggregator)
	ctx := context.Background()

	channelID := uuid.New()
	slotTime := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, to := range []models.OrderStatus{models.OrderStatusScheduled, models.OrderStatusPublished} {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
			ChannelID: channelID,
			To:        to,
			SlotTime:  slotTime,
		}
		require.NoError(t, w.HandleMessage(ctx, encode(t, event)))
	}
	assert.Equal(t, 1, aggregator.DirtyCount())
}

type fakeMessenger struct {
	mu    sync.Mutex
	users []int64
}

func (m *fakeMessenger) SendToChannel(ctx context.Context, username, text string) error {
	return nil
}

func (m *fakeMessenger) SendToUser(ctx context.Context, telegramID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, telegramID)
	return nil
}

func TestNotificationWorker_NotifiesOnNewOrders(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tenant, err := store.UpsertTenant(ctx, 1001, "owner")
	require.NoError(t, err)
	ch, err := service.NewChannelService(store, nil, time.Minute).
		Create(ctx, tenant.ID, &service.CreateChannelRequest{Username: "notify"})
	require.NoError(t, err)

	messenger := &fakeMessenger{}
	w := NewNotificationWorker(nil, service.NewNotifier(store, messenger))

	created := &models.OrderCreatedEvent{
		BaseEvent:    models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:      uuid.New(),
		TenantID:     tenant.ID,
		ChannelID:    ch.ID,
		AdvertiserID: 2002,
	}
	require.NoError(t, w.HandleMessage(ctx, encode(t, created)))

	scheduled := &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   created.OrderID,
		To:        models.OrderStatusScheduled,
	}
	require.NoError(t, w.HandleMessage(ctx, encode(t, scheduled)))

	assert.Equal(t, []int64{1001, 2002}, messenger.users)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released int
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

func TestJobRunner_RespectsLock(t *testing.T) {
	locker := &fakeLocker{held: map[string]string{}}
	runner := NewJobRunner(locker)

	var calls int
	j := job{name: "sweep", interval: time.Minute, run: func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	}}

	assert.True(t, runner.runOnce(context.Background(), j))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, locker.released)

	locker.held["lock:job:sweep"] = "other-instance"
	assert.False(t, runner.runOnce(context.Background(), j))
	assert.Equal(t, 1, calls)
}

func TestJobRunner_RunsWithoutLocker(t *testing.T) {
	failing := &fakeLocker{held: map[string]string{}, err: errors.New("redis down")}
	for _, runner := range []*JobRunner{NewJobRunner(nil), NewJobRunner(failing)} {
		var calls int
		ok := runner.runOnce(context.Background(), job{name: "agg", interval: time.Minute, run: func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("transient")
		}})
		assert.True(t, ok)
		assert.Equal(t, 1, calls)
	}
}

func TestJobRunner_StartStop(t *testing.T) {
	runner := NewJobRunner(nil)
	var calls atomic.Int32
	runner.Add("tick", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	runner.Add("disabled", 0, func(ctx context.Context) (int, error) {
		t.Error("disabled job must not run")
		return 0, nil
	})

	runner.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	runner.Stop()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}
