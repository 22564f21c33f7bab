package worker

import (
	"context"

	"adslot-service/internal/broker"
	"adslot-service/internal/models"
	"adslot-service/internal/service"
	"adslot-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SignalWorker applies external order signals (payment, erid, approval,
// publication, cancellation) consumed from the signals topic
type SignalWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSignalWorker creates a new signal worker
func NewSignalWorker(consumer *broker.Consumer, signals *service.SignalHandler) *SignalWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSignal(signals.HandleSignal)

	return &SignalWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *SignalWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting signal worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage processes one raw message
func (w *SignalWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *SignalWorker) Stop() error {
	w.logger.Info("Stopping signal worker")
	return w.consumer.Close()
}

// ViewWorker ingests raw view counts into the analytics store
type ViewWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewViewWorker creates a new view ingestion worker
func NewViewWorker(consumer *broker.Consumer, aggregator *service.AnalyticsAggregator) *ViewWorker {
	w := &ViewWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnViewsRecorded(func(ctx context.Context, e *models.ViewsRecordedEvent) error {
		n, err := aggregator.IngestViews(ctx, e.Views)
		if err != nil {
			return err
		}
		w.logger.Debug("Ingested view events",
			zap.String("event_id", e.EventID),
			zap.Int("received", len(e.Views)),
			zap.Int("inserted", n))
		return nil
	})
	return w
}

// Start starts the worker
func (w *ViewWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting view worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage processes one raw message
func (w *ViewWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *ViewWorker) Stop() error {
	w.logger.Info("Stopping view worker")
	return w.consumer.Close()
}

// AnalyticsWorker follows this service's own order events and marks the
// rollup of every newly published order dirty
type AnalyticsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewAnalyticsWorker creates a new analytics worker
func NewAnalyticsWorker(consumer *broker.Consumer, aggregator *service.AnalyticsAggregator) *AnalyticsWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnStatusChanged(func(ctx context.Context, e *models.OrderStatusChangedEvent) error {
		if e.To == models.OrderStatusPublished && !e.SlotTime.IsZero() {
			aggregator.MarkDirty(e.ChannelID, e.SlotTime)
		}
		return nil
	})

	return &AnalyticsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *AnalyticsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting analytics worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage processes one raw message
func (w *AnalyticsWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *AnalyticsWorker) Stop() error {
	w.logger.Info("Stopping analytics worker")
	return w.consumer.Close()
}

// NotificationWorker follows order events and sends Telegram notifications
// to the channel owner and the advertiser
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier *service.Notifier) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(notifier.OrderCreated)
	eventHandler.OnStatusChanged(notifier.StatusChanged)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage processes one raw message
func (w *NotificationWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
