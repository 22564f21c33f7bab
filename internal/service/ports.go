package service

import (
	"context"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

// ChannelStore persists channels
type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *models.Channel) error
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	ListChannels(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error)
	UpdateChannel(ctx context.Context, ch *models.Channel) error
	CountChannels(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// SlotStore persists slots and performs the atomic claim/release
type SlotStore interface {
	CreateSlot(ctx context.Context, slot *models.Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error)
	ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error)
	ClaimSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error)
	ReleaseSlot(ctx context.Context, id uuid.UUID) (*models.Slot, bool, error)
	ReleaseOrphanedSlots(ctx context.Context, olderThan time.Time) ([]models.Slot, error)
}

// OrderStore persists orders. CreateOrder and TransitionOrder are single transactions
// that include their slot side effects.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Slot, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, *models.Slot, error)
	ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	CountOrders(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// AnalyticsStore holds raw view events and derived rollups
type AnalyticsStore interface {
	InsertViewEvents(ctx context.Context, events []models.ViewEvent) (int, error)
	ComputeDailyRollup(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error)
	UpsertRollup(ctx context.Context, r *models.DailyRollup) error
	ListActiveDays(ctx context.Context, from, to time.Time) ([]models.RollupKey, error)
	SumRollups(ctx context.Context, tenantID uuid.UUID) (int64, int64, error)
	ViewsByDay(ctx context.Context, tenantID uuid.UUID, from, to time.Time, channelID *uuid.UUID) ([]models.DayViews, error)
}

// TenantStore persists tenants
type TenantStore interface {
	UpsertTenant(ctx context.Context, telegramID int64, name string) (*models.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// APIKeyStore persists API key verifiers
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.ApiKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]models.ApiKey, error)
	DeleteAPIKey(ctx context.Context, tenantID, id uuid.UUID) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.ApiKey, error)
}

// EventLog records consumed event IDs
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Store is everything the service layer needs from storage
type Store interface {
	ChannelStore
	SlotStore
	OrderStore
	AnalyticsStore
	TenantStore
	APIKeyStore
	EventLog
	ListAllChannels(ctx context.Context) ([]models.Channel, error)
	ListDueScheduledOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	RevenueByTenant(ctx context.Context) ([]models.TenantRevenue, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ChannelCache is a read-through cache for channel configuration
type ChannelCache interface {
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	SetChannel(ctx context.Context, ch *models.Channel, ttl time.Duration) error
	InvalidateChannel(ctx context.Context, id uuid.UUID) error
}

// EventPublisher publishes domain events after commit
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishSlotReleased(ctx context.Context, event *models.SlotReleasedEvent) error
}

// Messenger delivers Telegram messages to a channel (by @username) or to a user
type Messenger interface {
	SendToChannel(ctx context.Context, username, text string) error
	SendToUser(ctx context.Context, telegramID int64, text string) error
}
