package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by this service
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeSlotReleased       = "SLOT_RELEASED"
)

// Event types consumed from external collaborators
const (
	EventTypePaymentConfirmed     = "PAYMENT_CONFIRMED"
	EventTypeEridAssigned         = "ERID_ASSIGNED"
	EventTypeContentApproved      = "CONTENT_APPROVED"
	EventTypePublicationConfirmed = "PUBLICATION_CONFIRMED"
	EventTypeOrderCancelRequested = "ORDER_CANCEL_REQUESTED"
	EventTypeViewsRecorded        = "VIEWS_RECORDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderCreatedEvent published when an order claims a slot
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      uuid.UUID `json:"order_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ChannelID    uuid.UUID `json:"channel_id"`
	SlotID       uuid.UUID `json:"slot_id"`
	AdvertiserID int64     `json:"advertiser_id"`
}

// OrderStatusChangedEvent published after every committed transition.
// PostText is set when the order becomes scheduled.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   uuid.UUID   `json:"order_id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	ChannelID uuid.UUID   `json:"channel_id"`
	SlotID    uuid.UUID   `json:"slot_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	SlotTime  time.Time   `json:"slot_time"`
	Reason    string      `json:"reason,omitempty"`
	PostText  string      `json:"post_text,omitempty"`
}

// SlotReleasedEvent published when a slot returns to free
type SlotReleasedEvent struct {
	BaseEvent
	SlotID    uuid.UUID `json:"slot_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Reason    string    `json:"reason"`
}

// OrderSignalEvent is an external status signal for one order.
// Erid is only meaningful for ERID_ASSIGNED.
type OrderSignalEvent struct {
	BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	Erid    string    `json:"erid,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// ViewsRecordedEvent carries a batch of raw view counts
type ViewsRecordedEvent struct {
	BaseEvent
	Views []ViewEvent `json:"views"`
}

// SignalTarget maps an external signal to the order status it requests
func SignalTarget(eventType string) (OrderStatus, bool) {
	switch eventType {
	case EventTypePaymentConfirmed:
		return OrderStatusPaid, true
	case EventTypeEridAssigned:
		return OrderStatusMarked, true
	case EventTypeContentApproved:
		return OrderStatusScheduled, true
	case EventTypePublicationConfirmed:
		return OrderStatusPublished, true
	case EventTypeOrderCancelRequested:
		return OrderStatusCancelled, true
	}
	return "", false
}
