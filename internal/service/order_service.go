package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 255

// OrderService handles the order lifecycle
type OrderService struct {
	store     OrderStore
	channels  *ChannelService
	scheduler *SlotScheduler
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	channels *ChannelService,
	scheduler *SlotScheduler,
	events EventPublisher,
) *OrderService {
	return &OrderService{
		store:     store,
		channels:  channels,
		scheduler: scheduler,
		events:    events,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateOrderRequest represents a request to book a slot
type CreateOrderRequest struct {
	ChannelID      uuid.UUID      `json:"channel_id" binding:"required"`
	SlotID         uuid.UUID      `json:"slot_id" binding:"required"`
	Content        models.Content `json:"content"`
	Erid           *string        `json:"erid,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// UpdateStatusRequest represents a status change request
type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Erid   *string `json:"erid,omitempty"`
}

// ListOrdersQuery narrows ListOrders; all fields optional
type ListOrdersQuery struct {
	ChannelID *uuid.UUID
	Status    *models.OrderStatus
}

// CreateOrder books a free slot. The claim and the order insert commit together;
// on ErrSlotUnavailable nothing is persisted. A repeated idempotency key returns
// the original order with created=false.
func (s *OrderService) CreateOrder(ctx context.Context, tenantID uuid.UUID, advertiserID int64, req *CreateOrderRequest) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.String("slot_id", req.SlotID.String()))
	defer span.End()

	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return nil, false, models.Validationf("idempotency key exceeds %d characters", maxIdempotencyKeyLength)
	}
	if key != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, tenantID, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", key),
				zap.String("order_id", existing.ID.String()))
			return existing, false, nil
		}
	}

	if err := s.validateCreate(ctx, tenantID, req); err != nil {
		if existing := s.replayAfterConflict(ctx, tenantID, key, err); existing != nil {
			return existing, false, nil
		}
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, false, err
	}

	order := &models.Order{
		ID:           uuid.New(),
		TenantID:     tenantID,
		AdvertiserID: advertiserID,
		ChannelID:    req.ChannelID,
		SlotID:       req.SlotID,
		Content:      req.Content,
		Erid:         normalizeErid(req.Erid),
		Status:       models.OrderStatusDraft,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	start := time.Now()
	_, err := s.store.CreateOrder(ctx, order)
	util.SlotClaimLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if existing := s.replayAfterConflict(ctx, tenantID, key, err); existing != nil {
			return existing, false, nil
		}
		util.RecordError(span, err)
		switch {
		case errors.Is(err, models.ErrSlotUnavailable):
			util.SlotClaimsTotal.WithLabelValues("unavailable").Inc()
			util.OrdersFailedTotal.WithLabelValues("slot_unavailable").Inc()
			return nil, false, err
		case errors.Is(err, models.ErrDuplicateKey):
			util.OrdersFailedTotal.WithLabelValues("slot_unavailable").Inc()
			return nil, false, models.SlotUnavailablef("slot %s already has a live order", req.SlotID)
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	util.SlotClaimsTotal.WithLabelValues("claimed").Inc()
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("slot_id", order.SlotID.String()),
		zap.Int64("advertiser_id", advertiserID))

	event := &models.OrderCreatedEvent{
		BaseEvent:    models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		TenantID:     order.TenantID,
		ChannelID:    order.ChannelID,
		SlotID:       order.SlotID,
		AdvertiserID: order.AdvertiserID,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, true, nil
}

// replayAfterConflict resolves a create that lost a race to a concurrent request
// carrying the same idempotency key. The winner committed its order before the
// slot became unavailable, so a second lookup finds it.
func (s *OrderService) replayAfterConflict(ctx context.Context, tenantID uuid.UUID, key string, err error) *models.Order {
	if key == "" {
		return nil
	}
	if !errors.Is(err, models.ErrSlotUnavailable) && !errors.Is(err, models.ErrDuplicateKey) {
		return nil
	}
	existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, tenantID, key)
	if lookupErr != nil || existing == nil {
		return nil
	}
	s.logger.Info("Concurrent duplicate order request resolved",
		zap.String("idempotency_key", key),
		zap.String("order_id", existing.ID.String()))
	return existing
}

func (s *OrderService) validateCreate(ctx context.Context, tenantID uuid.UUID, req *CreateOrderRequest) error {
	if req.Content.Kind == "" {
		return models.Validationf("content is required")
	}

	ch, err := s.channels.Get(ctx, tenantID, req.ChannelID)
	if err != nil {
		return err
	}
	if !ch.IsActive {
		return models.Validationf("channel %s is not active", ch.ID)
	}

	slot, err := s.scheduler.GetSlot(ctx, tenantID, req.SlotID)
	if err != nil {
		return err
	}
	if slot.ChannelID != req.ChannelID {
		return models.Validationf("slot %s does not belong to channel %s", slot.ID, req.ChannelID)
	}
	if !slot.Datetime.After(s.now()) {
		return models.Validationf("slot %s is in the past", slot.ID)
	}
	if slot.Status != models.SlotStatusFree {
		return models.SlotUnavailablef("slot %s is already booked", slot.ID)
	}
	return nil
}

// GetOrder retrieves an order owned by the tenant
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, models.NotFoundf("order %s", orderID)
	}
	return order, nil
}

// ListOrders lists the tenant's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, tenantID uuid.UUID, q ListOrdersQuery) ([]models.Order, error) {
	return s.store.ListOrders(ctx, models.OrderFilter{
		TenantID:  tenantID,
		ChannelID: q.ChannelID,
		Status:    q.Status,
	})
}

// UpdateStatus moves an order along the lifecycle. Invalid moves fail with
// ErrInvalidTransition and leave the order unchanged.
func (s *OrderService) UpdateStatus(ctx context.Context, tenantID, orderID uuid.UUID, req *UpdateStatusRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order_id", orderID.String()))
	defer span.End()

	to, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, order, to, req.Erid, "")
}

// ApplySignal applies an externally sourced status change to any order
func (s *OrderService) ApplySignal(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, erid *string, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ApplySignal",
		attribute.String("order_id", orderID.String()),
		attribute.String("to", string(to)))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, order, to, erid, reason)
}

func (s *OrderService) applyTransition(ctx context.Context, order *models.Order, to models.OrderStatus, erid *string, reason string) (*models.Order, error) {
	t, err := planTransition(order, to, erid, reason)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			util.OrderTransitionsRejected.WithLabelValues(string(order.Status), string(to)).Inc()
		}
		return nil, err
	}

	updated, released, err := s.store.TransitionOrder(ctx, t)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			util.OrderTransitionsRejected.WithLabelValues(string(order.Status), string(to)).Inc()
		}
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", updated.ID.String()),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)))

	if released != nil {
		s.scheduler.slotReleased(ctx, released, *t.CancelReason)
	}
	s.publishStatusChanged(ctx, updated, t)
	return updated, nil
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, t models.Transition) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		TenantID:  order.TenantID,
		ChannelID: order.ChannelID,
		SlotID:    order.SlotID,
		From:      t.From,
		To:        t.To,
	}
	if t.CancelReason != nil {
		event.Reason = *t.CancelReason
	}
	if t.To == models.OrderStatusScheduled {
		event.PostText = models.RenderPost(order.Content, order.Erid)
	}
	if slot, err := s.scheduler.store.GetSlot(ctx, order.SlotID); err == nil {
		event.SlotTime = slot.Datetime
	}

	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrSlotUnavailable):
		return "slot_unavailable"
	}
	return "error"
}
