package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu       sync.Mutex
	created  []*models.OrderCreatedEvent
	changed  []*models.OrderStatusChangedEvent
	released []*models.SlotReleasedEvent
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, event)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return nil
}

func (p *recordingPublisher) PublishSlotReleased(ctx context.Context, event *models.SlotReleasedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, event)
	return nil
}

func (p *recordingPublisher) statusChanges() []*models.OrderStatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.OrderStatusChangedEvent(nil), p.changed...)
}

func (p *recordingPublisher) slotReleases() []*models.SlotReleasedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.SlotReleasedEvent(nil), p.released...)
}

func (p *recordingPublisher) orderCreations() []*models.OrderCreatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.OrderCreatedEvent(nil), p.created...)
}

type sentMessage struct {
	channel string
	userID  int64
	text    string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *recordingMessenger) SendToChannel(ctx context.Context, username, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{channel: username, text: text})
	return nil
}

func (m *recordingMessenger) SendToUser(ctx context.Context, telegramID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{userID: telegramID, text: text})
	return nil
}

func (m *recordingMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *recordingMessenger) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type testEnv struct {
	ctx       context.Context
	store     *memstore.Store
	events    *recordingPublisher
	channels  *ChannelService
	scheduler *SlotScheduler
	orders    *OrderService
	tenant    *models.Tenant

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		ctx:    context.Background(),
		store:  memstore.New(),
		events: &recordingPublisher{},
		now:    testEpoch,
	}
	env.store.SetClock(env.clock)

	env.channels = NewChannelService(env.store, nil, time.Minute)
	env.scheduler = NewSlotScheduler(env.store, env.channels, env.events)
	env.scheduler.now = env.clock
	env.orders = NewOrderService(env.store, env.channels, env.scheduler, env.events)
	env.orders.now = env.clock

	tenant, err := env.store.UpsertTenant(env.ctx, 1001, "Channel Owner")
	require.NoError(t, err)
	env.tenant = tenant
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

func (e *testEnv) createChannel(t *testing.T, username string, duration int) *models.Channel {
	t.Helper()
	price := int64(250000)
	ch, err := e.channels.Create(e.ctx, e.tenant.ID, &CreateChannelRequest{
		Username:     username,
		SlotDuration: &duration,
		PricePerSlot: &price,
	})
	require.NoError(t, err)
	return ch
}

func (e *testEnv) createSlot(t *testing.T, ch *models.Channel, at time.Time) *models.Slot {
	t.Helper()
	slot, err := e.scheduler.CreateSlot(e.ctx, e.tenant.ID, &CreateSlotRequest{
		ChannelID: ch.ID,
		Datetime:  at,
	})
	require.NoError(t, err)
	return slot
}

func (e *testEnv) createOrder(t *testing.T, slot *models.Slot) *models.Order {
	t.Helper()
	order, created, err := e.orders.CreateOrder(e.ctx, e.tenant.ID, e.tenant.TelegramID, &CreateOrderRequest{
		ChannelID: slot.ChannelID,
		SlotID:    slot.ID,
		Content:   testContent(t),
	})
	require.NoError(t, err)
	require.True(t, created)
	return order
}

func (e *testEnv) transition(t *testing.T, order *models.Order, to models.OrderStatus, erid string) *models.Order {
	t.Helper()
	req := &UpdateStatusRequest{Status: string(to)}
	if erid != "" {
		req.Erid = &erid
	}
	updated, err := e.orders.UpdateStatus(e.ctx, e.tenant.ID, order.ID, req)
	require.NoError(t, err)
	return updated
}

func testContent(t *testing.T) models.Content {
	t.Helper()
	c, err := models.NewContent("Spring sale: everything 20% off", "https://shop.example.com/sale")
	require.NoError(t, err)
	return c
}

func slotTime() time.Time {
	return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
}

func otherTenantID() uuid.UUID {
	return uuid.MustParse("00000000-0000-0000-0000-00000000beef")
}
