package service

import (
	"context"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublisherStore finds scheduled orders that are due for publication
type PublisherStore interface {
	ListDueScheduledOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
}

// SignalApplier applies an order signal exactly once
type SignalApplier interface {
	HandleSignal(ctx context.Context, event *models.OrderSignalEvent) error
}

// PostPublisher posts scheduled orders to their channel once the slot time
// arrives, then confirms the publication with a PUBLICATION_CONFIRMED signal.
// Delivery is at least once: a post whose confirmation fails is sent again on
// the next pass.
type PostPublisher struct {
	store     PublisherStore
	messenger Messenger
	signals   SignalApplier
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

// NewPostPublisher creates a publisher handling at most batch orders per pass
func NewPostPublisher(store PublisherStore, messenger Messenger, signals SignalApplier, batch int) *PostPublisher {
	return &PostPublisher{
		store:     store,
		messenger: messenger,
		signals:   signals,
		batch:     batch,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Publish posts one batch of due orders and returns how many were confirmed
func (p *PostPublisher) Publish(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "PostPublisher.Publish")
	defer span.End()

	due, err := p.store.ListDueScheduledOrders(ctx, p.now(), p.batch)
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	published := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if p.publishOne(ctx, &due[i]) {
			published++
		}
	}

	if published > 0 {
		p.logger.Info("Published scheduled posts", zap.Int("count", published))
	}
	return published, nil
}

func (p *PostPublisher) publishOne(ctx context.Context, order *models.Order) bool {
	log := p.logger.With(zap.String("order_id", order.ID.String()))

	ch, err := p.store.GetChannel(ctx, order.ChannelID)
	if err != nil {
		util.PostsPublishedTotal.WithLabelValues("error").Inc()
		log.Error("Failed to load channel for publication", zap.Error(err))
		return false
	}

	if err := p.messenger.SendToChannel(ctx, ch.Username, models.RenderPost(order.Content, order.Erid)); err != nil {
		util.PostsPublishedTotal.WithLabelValues("send_failed").Inc()
		log.Warn("Failed to post to channel", zap.String("channel", ch.Username), zap.Error(err))
		return false
	}

	signal := &models.OrderSignalEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "publication-" + order.ID.String(),
			EventType: models.EventTypePublicationConfirmed,
			Timestamp: p.now().UTC(),
		},
		OrderID: order.ID,
	}
	if err := p.signals.HandleSignal(ctx, signal); err != nil {
		util.PostsPublishedTotal.WithLabelValues("confirm_failed").Inc()
		log.Error("Posted but failed to confirm publication", zap.Error(err))
		return false
	}

	util.PostsPublishedTotal.WithLabelValues("published").Inc()
	log.Info("Order published", zap.String("channel", ch.Username))
	return true
}
