package service

import (
	"context"
	"errors"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"go.uber.org/zap"
)

// DraftSweeper cancels drafts that were never paid within the TTL, freeing their slots
type DraftSweeper struct {
	store  OrderStore
	orders *OrderService
	ttl    time.Duration
	batch  int
	logger *zap.Logger
	now    func() time.Time
}

// NewDraftSweeper creates a new draft sweeper
func NewDraftSweeper(store OrderStore, orders *OrderService, ttl time.Duration, batch int) *DraftSweeper {
	return &DraftSweeper{
		store:  store,
		orders: orders,
		ttl:    ttl,
		batch:  batch,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// Sweep cancels one batch of expired drafts and returns how many were cancelled.
// A draft paid concurrently loses the compare-and-swap and is skipped.
func (s *DraftSweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "DraftSweeper.Sweep")
	defer span.End()

	stale, err := s.store.ListStaleDrafts(ctx, s.now().Add(-s.ttl), s.batch)
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	cancelled := 0
	for i := range stale {
		order := stale[i]
		_, err := s.orders.applyTransition(ctx, &order, models.OrderStatusCancelled, nil, ReasonDraftExpired)
		if errors.Is(err, models.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to expire draft",
				zap.String("order_id", order.ID.String()), zap.Error(err))
			continue
		}
		cancelled++
		util.DraftsExpiredTotal.Inc()
	}

	if cancelled > 0 {
		s.logger.Info("Expired stale drafts", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

// SlotReconciler frees booked slots whose claimant order does not exist
type SlotReconciler struct {
	store     SlotStore
	scheduler *SlotScheduler
	grace     time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewSlotReconciler creates a new reconciler. Slots touched within grace are
// left alone so in-flight booking transactions are never raced.
func NewSlotReconciler(store SlotStore, scheduler *SlotScheduler, grace time.Duration) *SlotReconciler {
	return &SlotReconciler{
		store:     store,
		scheduler: scheduler,
		grace:     grace,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Reconcile releases orphaned slots and returns how many were freed
func (r *SlotReconciler) Reconcile(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "SlotReconciler.Reconcile")
	defer span.End()

	released, err := r.store.ReleaseOrphanedSlots(ctx, r.now().Add(-r.grace))
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	for i := range released {
		r.scheduler.slotReleased(ctx, &released[i], ReasonOrphanReclaimed)
	}
	if len(released) > 0 {
		r.logger.Warn("Released orphaned slots", zap.Int("count", len(released)))
	}
	return len(released), nil
}
