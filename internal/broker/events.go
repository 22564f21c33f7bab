package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID.String()), event.EventType, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID.String()), event.EventType, event)
}

// PublishSlotReleased publishes SlotReleased event
func (ep *EventPublisher) PublishSlotReleased(ctx context.Context, event *models.SlotReleasedEvent) error {
	return ep.producer.PublishEvent(ctx, "slot-"+event.SlotID.String(), event.EventType, event)
}

func orderKey(id string) string {
	return "order-" + id
}

// NopPublisher drops every event. Used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return nil
}

func (NopPublisher) PublishSlotReleased(ctx context.Context, event *models.SlotReleasedEvent) error {
	return nil
}

// EventHandler routes incoming events by type
type EventHandler struct {
	onSignal        func(context.Context, *models.OrderSignalEvent) error
	onViewsRecorded func(context.Context, *models.ViewsRecordedEvent) error
	onStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	onOrderCreated  func(context.Context, *models.OrderCreatedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSignal registers a handler for every external order signal type
func (eh *EventHandler) OnSignal(handler func(context.Context, *models.OrderSignalEvent) error) {
	eh.onSignal = handler
}

// OnViewsRecorded registers a handler for VIEWS_RECORDED events
func (eh *EventHandler) OnViewsRecorded(handler func(context.Context, *models.ViewsRecordedEvent) error) {
	eh.onViewsRecorded = handler
}

// OnStatusChanged registers a handler for ORDER_STATUS_CHANGED events
func (eh *EventHandler) OnStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// OnOrderCreated registers a handler for ORDER_CREATED events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if baseEvent.EventID == "" {
		return fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	if _, ok := models.SignalTarget(baseEvent.EventType); ok {
		if eh.onSignal == nil {
			return nil
		}
		var event models.OrderSignalEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, baseEvent.EventType, err)
		}
		return eh.onSignal(ctx, &event)
	}

	switch baseEvent.EventType {
	case models.EventTypeViewsRecorded:
		if eh.onViewsRecorded != nil {
			var event models.ViewsRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, baseEvent.EventType, err)
			}
			return eh.onViewsRecorded(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if eh.onStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, baseEvent.EventType, err)
			}
			return eh.onStatusChanged(ctx, &event)
		}

	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, baseEvent.EventType, err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeSlotReleased:
		// own event on a shared topic

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
