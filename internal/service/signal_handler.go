package service

import (
	"context"
	"errors"
	"fmt"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"go.uber.org/zap"
)

// SignalHandler applies external status signals (payment, marking, approval,
// publication, cancellation) to orders. Each event is applied at most once.
type SignalHandler struct {
	log    EventLog
	orders *OrderService
	logger *zap.Logger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(log EventLog, orders *OrderService) *SignalHandler {
	return &SignalHandler{
		log:    log,
		orders: orders,
		logger: util.GetLogger(),
	}
}

// HandleSignal applies one signal. Signals that are not valid for the order's
// current state are recorded and dropped; only infrastructure errors are returned
// so the consumer retries them.
func (h *SignalHandler) HandleSignal(ctx context.Context, event *models.OrderSignalEvent) error {
	ctx, span := util.StartSpan(ctx, "SignalHandler.HandleSignal")
	defer span.End()

	processed, err := h.log.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.SignalsProcessedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	to, ok := models.SignalTarget(event.EventType)
	if !ok {
		h.logger.Warn("Unhandled signal type", zap.String("event_type", event.EventType))
		return nil
	}

	var erid *string
	if event.EventType == models.EventTypeEridAssigned {
		erid = &event.Erid
	}
	reason := event.Reason
	if to == models.OrderStatusCancelled && reason == "" {
		reason = ReasonExternalCancel
	}

	outcome := "applied"
	_, err = h.orders.ApplySignal(ctx, event.OrderID, to, erid, reason)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrValidation):
		outcome = "rejected"
		h.logger.Warn("Signal rejected",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err))
	default:
		util.RecordError(span, err)
		return fmt.Errorf("failed to apply %s: %w", event.EventType, err)
	}

	if err := h.log.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		h.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.SignalsProcessedTotal.WithLabelValues(event.EventType, outcome).Inc()
	return nil
}
