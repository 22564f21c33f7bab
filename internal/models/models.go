package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the account boundary for channels, orders and credentials
type Tenant struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Channel is an advertising channel owned by a tenant
type Channel struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TenantID     uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Username     string    `db:"username" json:"username"`
	SlotDuration int       `db:"slot_duration" json:"slot_duration"`
	PricePerSlot int64     `db:"price_per_slot" json:"price_per_slot"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Slot is a bookable point in time on a channel.
// Duration and Price are copied from the channel when the slot is created.
type Slot struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	TenantID  uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ChannelID uuid.UUID  `db:"channel_id" json:"channel_id"`
	Datetime  time.Time  `db:"datetime" json:"datetime"`
	Status    SlotStatus `db:"status" json:"status"`
	Duration  int        `db:"duration" json:"duration"`
	Price     int64      `db:"price" json:"price"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Order is an advertiser's booking of a single slot
type Order struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	TenantID       uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	AdvertiserID   int64       `db:"advertiser_id" json:"advertiser_id"`
	ChannelID      uuid.UUID   `db:"channel_id" json:"channel_id"`
	SlotID         uuid.UUID   `db:"slot_id" json:"slot_id"`
	Content        Content     `db:"content" json:"content"`
	Erid           *string     `db:"erid" json:"erid"`
	Status         OrderStatus `db:"status" json:"status"`
	IdempotencyKey *string     `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CancelReason   *string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Transition is a compare-and-swap request on an order's status
type Transition struct {
	OrderID      uuid.UUID
	From         OrderStatus
	To           OrderStatus
	Erid         *string
	CancelReason *string
	ReleaseSlot  bool
}

// ApiKey is a long-lived tenant credential. Only the verifier is stored.
type ApiKey struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TenantID   uuid.UUID `db:"tenant_id" json:"-"`
	Name       string    `db:"name" json:"name"`
	KeyHash    string    `db:"key_hash" json:"-"`
	KeyPreview string    `db:"key_preview" json:"key_preview"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ViewEvent is a raw view count reported for a published post
type ViewEvent struct {
	EventID   string    `db:"event_id" json:"event_id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	ChannelID uuid.UUID `db:"channel_id" json:"channel_id"`
	ViewedAt  time.Time `db:"viewed_at" json:"viewed_at"`
	Views     int64     `db:"views" json:"views"`
}

// DailyRollup is the derived per-channel, per-day analytics row
type DailyRollup struct {
	ChannelID       uuid.UUID `db:"channel_id" json:"channel_id"`
	Day             time.Time `db:"day" json:"day"`
	TenantID        uuid.UUID `db:"tenant_id" json:"tenant_id"`
	ViewsTotal      int64     `db:"views_total" json:"views_total"`
	OrdersPublished int64     `db:"orders_published" json:"orders_published"`
	RevenueTotal    int64     `db:"revenue_total" json:"revenue_total"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TenantRevenue is one tenant's share of the rolled-up revenue
type TenantRevenue struct {
	TenantID        uuid.UUID `db:"tenant_id" json:"tenant_id"`
	OrdersPublished int64     `db:"orders_published" json:"orders_published"`
	RevenueTotal    int64     `db:"revenue_total" json:"revenue_total"`
}

// RevenueReport is the cross-tenant revenue view for operators
type RevenueReport struct {
	TotalRevenue int64           `json:"total_revenue"`
	ByTenant     []TenantRevenue `json:"by_tenant"`
}

// RollupKey identifies one rollup row
type RollupKey struct {
	ChannelID uuid.UUID `db:"channel_id"`
	Day       time.Time `db:"day"`
}

// Summary is the tenant-wide analytics summary
type Summary struct {
	ChannelsCount int64 `json:"channels_count"`
	OrdersCount   int64 `json:"orders_count"`
	ViewsTotal    int64 `json:"views_total"`
	RevenueTotal  int64 `json:"revenue_total"`
}

// ViewPoint is one day of the views series
type ViewPoint struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// DayViews is a raw per-day sum as read from storage
type DayViews struct {
	Day   time.Time `db:"day"`
	Views int64     `db:"views"`
}

// SlotFilter narrows ListSlots
type SlotFilter struct {
	TenantID  uuid.UUID
	ChannelID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Status    *SlotStatus
}

// OrderFilter narrows ListOrders
type OrderFilter struct {
	TenantID  uuid.UUID
	ChannelID *uuid.UUID
	Status    *OrderStatus
}

// Identity is the caller resolved for a single request
type Identity struct {
	UserID   int64
	TenantID uuid.UUID
	Method   string
}

// Identity methods
const (
	AuthMethodBearer = "bearer"
	AuthMethodAPIKey = "api_key"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// DayOf truncates t to its UTC calendar day
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
