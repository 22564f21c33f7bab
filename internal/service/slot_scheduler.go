package service

import (
	"context"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SlotScheduler owns slot existence and the free/booked state of each slot
type SlotScheduler struct {
	store    SlotStore
	channels *ChannelService
	events   EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSlotScheduler creates a new slot scheduler
func NewSlotScheduler(store SlotStore, channels *ChannelService, events EventPublisher) *SlotScheduler {
	return &SlotScheduler{
		store:    store,
		channels: channels,
		events:   events,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CreateSlotRequest represents a request to open a slot
type CreateSlotRequest struct {
	ChannelID uuid.UUID `json:"channel_id" binding:"required"`
	Datetime  time.Time `json:"datetime" binding:"required"`
}

// ListSlotsQuery narrows ListSlots; all fields optional
type ListSlotsQuery struct {
	ChannelID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Status    *models.SlotStatus
}

// CreateSlot opens a free slot on a channel. The instant must be in the future,
// whole seconds, and on the channel's slot_duration grid counted from the Unix epoch.
// Overlapping slots on one channel are allowed.
func (s *SlotScheduler) CreateSlot(ctx context.Context, tenantID uuid.UUID, req *CreateSlotRequest) (*models.Slot, error) {
	ctx, span := util.StartSpan(ctx, "SlotScheduler.CreateSlot",
		attribute.String("channel_id", req.ChannelID.String()))
	defer span.End()

	ch, err := s.channels.Get(ctx, tenantID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if !ch.IsActive {
		return nil, models.Validationf("channel %s is not active", ch.ID)
	}

	at := req.Datetime.UTC()
	if at.Nanosecond() != 0 {
		return nil, models.Validationf("datetime must have whole-second precision")
	}
	if !at.After(s.now()) {
		return nil, models.Validationf("datetime must be in the future")
	}
	if at.Unix()%int64(ch.SlotDuration) != 0 {
		return nil, models.Validationf("datetime must align to the channel's %d second slot grid", ch.SlotDuration)
	}

	slot := &models.Slot{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ChannelID: ch.ID,
		Datetime:  at,
		Status:    models.SlotStatusFree,
		Duration:  ch.SlotDuration,
		Price:     ch.PricePerSlot,
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.SlotsCreatedTotal.Inc()
	s.logger.Info("Slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("channel_id", ch.ID.String()),
		zap.Time("datetime", slot.Datetime))
	return slot, nil
}

// ListSlots returns the tenant's slots ordered by datetime ascending
func (s *SlotScheduler) ListSlots(ctx context.Context, tenantID uuid.UUID, q ListSlotsQuery) ([]models.Slot, error) {
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, models.Validationf("date_from must not be after date_to")
	}
	if q.ChannelID != nil {
		if _, err := s.channels.Get(ctx, tenantID, *q.ChannelID); err != nil {
			return nil, err
		}
	}
	return s.store.ListSlots(ctx, models.SlotFilter{
		TenantID:  tenantID,
		ChannelID: q.ChannelID,
		From:      q.From,
		To:        q.To,
		Status:    q.Status,
	})
}

// GetSlot returns a slot owned by the tenant
func (s *SlotScheduler) GetSlot(ctx context.Context, tenantID, id uuid.UUID) (*models.Slot, error) {
	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.TenantID != tenantID {
		return nil, models.NotFoundf("slot %s", id)
	}
	return slot, nil
}

// ClaimSlot atomically moves a free slot to booked. Exactly one of any set of
// concurrent callers succeeds; the rest get ErrSlotUnavailable.
func (s *SlotScheduler) ClaimSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	ctx, span := util.StartSpan(ctx, "SlotScheduler.ClaimSlot",
		attribute.String("slot_id", id.String()))
	defer span.End()

	slot, err := s.store.ClaimSlot(ctx, id)
	if err != nil {
		util.SlotClaimsTotal.WithLabelValues("unavailable").Inc()
		return nil, err
	}
	util.SlotClaimsTotal.WithLabelValues("claimed").Inc()
	return slot, nil
}

// ReleaseSlot moves a booked slot back to free. Releasing a free slot is a no-op.
func (s *SlotScheduler) ReleaseSlot(ctx context.Context, id uuid.UUID, reason string) (*models.Slot, error) {
	ctx, span := util.StartSpan(ctx, "SlotScheduler.ReleaseSlot",
		attribute.String("slot_id", id.String()))
	defer span.End()

	slot, released, err := s.store.ReleaseSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if released {
		s.slotReleased(ctx, slot, reason)
	}
	return slot, nil
}

// ReleaseOwnedSlot lets a channel owner free a booked slot nobody holds, for
// example one left behind by a crashed booking. A slot held by a live order
// fails with ErrSlotUnavailable; cancel the order instead.
func (s *SlotScheduler) ReleaseOwnedSlot(ctx context.Context, tenantID, id uuid.UUID) (*models.Slot, error) {
	if _, err := s.GetSlot(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.ReleaseSlot(ctx, id, ReasonOwnerReleased)
}

func (s *SlotScheduler) slotReleased(ctx context.Context, slot *models.Slot, reason string) {
	util.SlotsReleasedTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Slot released",
		zap.String("slot_id", slot.ID.String()),
		zap.String("reason", reason))

	event := &models.SlotReleasedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeSlotReleased),
		SlotID:    slot.ID,
		ChannelID: slot.ChannelID,
		Reason:    reason,
	}
	if err := s.events.PublishSlotReleased(ctx, event); err != nil {
		s.logger.Error("Failed to publish SlotReleased event", zap.Error(err))
	}
}
