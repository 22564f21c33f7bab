package service

import (
	"context"
	"errors"
	"fmt"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotifierStore resolves the people an order event concerns
type NotifierStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Notifier sends direct messages to the channel owner and the advertiser when
// an order is created, paid or cancelled. Delivery is best effort: failed sends
// are logged and counted, only lookup errors are returned for retry.
type Notifier struct {
	store     NotifierStore
	messenger Messenger
	logger    *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(store NotifierStore, messenger Messenger) *Notifier {
	return &Notifier{
		store:     store,
		messenger: messenger,
		logger:    util.GetLogger(),
	}
}

// OrderCreated tells the owner about the new order and confirms it to the advertiser
func (n *Notifier) OrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "Notifier.OrderCreated")
	defer span.End()

	ch, owner, err := n.recipients(ctx, e.ChannelID, e.TenantID)
	if err != nil {
		return n.skipMissing(err, e.OrderID)
	}

	n.send(ctx, "order_created", owner.TelegramID,
		fmt.Sprintf("New order on @%s\nID: %s\nStatus: %s", ch.Username, shortID(e.OrderID), models.OrderStatusDraft))
	if e.AdvertiserID != 0 {
		n.send(ctx, "order_created", e.AdvertiserID,
			fmt.Sprintf("Your order was accepted\nChannel: @%s\nID: %s", ch.Username, shortID(e.OrderID)))
	}
	return nil
}

// StatusChanged notifies both parties about payment and cancellation.
// Other transitions are silent.
func (n *Notifier) StatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	var kind, text string
	switch e.To {
	case models.OrderStatusPaid:
		kind, text = "payment_received", fmt.Sprintf("Payment received for order %s", shortID(e.OrderID))
	case models.OrderStatusCancelled:
		kind, text = "order_cancelled", fmt.Sprintf("Order %s was cancelled", shortID(e.OrderID))
	default:
		return nil
	}

	ctx, span := util.StartSpan(ctx, "Notifier.StatusChanged")
	defer span.End()

	order, err := n.store.GetOrder(ctx, e.OrderID)
	if err != nil {
		return n.skipMissing(err, e.OrderID)
	}
	_, owner, err := n.recipients(ctx, order.ChannelID, order.TenantID)
	if err != nil {
		return n.skipMissing(err, e.OrderID)
	}

	n.send(ctx, kind, owner.TelegramID, text)
	if order.AdvertiserID != 0 && order.AdvertiserID != owner.TelegramID {
		n.send(ctx, kind, order.AdvertiserID, text)
	}
	return nil
}

func (n *Notifier) recipients(ctx context.Context, channelID, tenantID uuid.UUID) (*models.Channel, *models.Tenant, error) {
	ch, err := n.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	owner, err := n.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	return ch, owner, nil
}

func (n *Notifier) send(ctx context.Context, kind string, telegramID int64, text string) {
	if err := n.messenger.SendToUser(ctx, telegramID, text); err != nil {
		util.NotificationsSentTotal.WithLabelValues(kind, "failed").Inc()
		n.logger.Warn("Failed to send notification",
			zap.String("kind", kind),
			zap.Int64("telegram_id", telegramID),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues(kind, "sent").Inc()
}

func (n *Notifier) skipMissing(err error, orderID uuid.UUID) error {
	if errors.Is(err, models.ErrNotFound) {
		n.logger.Warn("Skipping notification for unknown order data",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return nil
	}
	return err
}

func shortID(id uuid.UUID) string {
	return id.String()[:8] + "…"
}
