package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateChannel(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.Username == ch.Username {
			return fmt.Errorf("%w: channel @%s", models.ErrDuplicateKey, ch.Username)
		}
	}
	now := s.now().UTC()
	ch.CreatedAt, ch.UpdatedAt = now, now
	cp := *ch
	s.channels[ch.ID] = &cp
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, models.NotFoundf("channel %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListChannels(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Channel{}
	for _, c := range s.channels {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAllChannels(ctx context.Context) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateChannel(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.channels[ch.ID]
	if !ok {
		return models.NotFoundf("channel %s", ch.ID)
	}
	for _, c := range s.channels {
		if c.ID != ch.ID && c.Username == ch.Username {
			return fmt.Errorf("%w: channel @%s", models.ErrDuplicateKey, ch.Username)
		}
	}
	ch.UpdatedAt = s.now().UTC()
	ch.CreatedAt = cur.CreatedAt
	cp := *ch
	s.channels[ch.ID] = &cp
	return nil
}

func (s *Store) CountChannels(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.channels {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *models.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	slot.CreatedAt, slot.UpdatedAt = now, now
	cp := *slot
	s.slots[slot.ID] = &cp
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, models.NotFoundf("slot %s", id)
	}
	cp := *sl
	return &cp, nil
}

func (s *Store) ListSlots(ctx context.Context, f models.SlotFilter) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Slot{}
	for _, sl := range s.slots {
		if sl.TenantID != f.TenantID {
			continue
		}
		if f.ChannelID != nil && sl.ChannelID != *f.ChannelID {
			continue
		}
		if f.From != nil && sl.Datetime.Before(*f.From) {
			continue
		}
		if f.To != nil && sl.Datetime.After(*f.To) {
			continue
		}
		if f.Status != nil && sl.Status != *f.Status {
			continue
		}
		out = append(out, *sl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Datetime.Equal(out[j].Datetime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Datetime.Before(out[j].Datetime)
	})
	return out, nil
}

func (s *Store) ClaimSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok || sl.Status != models.SlotStatusFree {
		return nil, models.SlotUnavailablef("slot %s is booked or does not exist", id)
	}
	sl.Status = models.SlotStatusBooked
	sl.UpdatedAt = s.now().UTC()
	cp := *sl
	return &cp, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, id uuid.UUID) (*models.Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, false, models.NotFoundf("slot %s", id)
	}
	if sl.Status == models.SlotStatusFree {
		cp := *sl
		return &cp, false, nil
	}
	if s.liveOrderForSlot(id) {
		return nil, false, models.SlotUnavailablef("slot %s is held by a live order", id)
	}
	sl.Status = models.SlotStatusFree
	sl.UpdatedAt = s.now().UTC()
	cp := *sl
	return &cp, true, nil
}

func (s *Store) ReleaseOrphanedSlots(ctx context.Context, olderThan time.Time) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := []models.Slot{}
	for id, sl := range s.slots {
		if sl.Status != models.SlotStatusBooked || !sl.UpdatedAt.Before(olderThan) {
			continue
		}
		if s.liveOrderForSlot(id) {
			continue
		}
		sl.Status = models.SlotStatusFree
		sl.UpdatedAt = s.now().UTC()
		released = append(released, *sl)
	}
	return released, nil
}

func (s *Store) liveOrderForSlot(slotID uuid.UUID) bool {
	for _, o := range s.orders {
		if o.SlotID == slotID && o.Status.HoldsSlot() {
			return true
		}
	}
	return false
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[order.SlotID]
	if !ok || sl.ChannelID != order.ChannelID || sl.Status != models.SlotStatusFree {
		return nil, models.SlotUnavailablef("slot %s is booked or does not exist", order.SlotID)
	}
	if order.IdempotencyKey != nil {
		for _, o := range s.orders {
			if o.TenantID == order.TenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return nil, fmt.Errorf("%w: idempotency key", models.ErrDuplicateKey)
			}
		}
	}
	if s.liveOrderForSlot(order.SlotID) {
		return nil, fmt.Errorf("%w: order for slot %s", models.ErrDuplicateKey, order.SlotID)
	}

	now := s.now().UTC()
	sl.Status = models.SlotStatusBooked
	sl.UpdatedAt = now

	order.CreatedAt, order.UpdatedAt = now, now
	cp := *order
	s.orders[order.ID] = &cp

	slotCopy := *sl
	return &slotCopy, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	cp := *o
	return &cp, nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TenantID == tenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if o.TenantID != f.TenantID {
			continue
		}
		if f.ChannelID != nil && o.ChannelID != *f.ChannelID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, *models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[t.OrderID]
	if !ok || o.Status != t.From {
		return nil, nil, fmt.Errorf("%w: order %s is no longer %s", models.ErrInvalidTransition, t.OrderID, t.From)
	}

	now := s.now().UTC()
	o.Status = t.To
	if t.Erid != nil {
		erid := *t.Erid
		o.Erid = &erid
	}
	if t.CancelReason != nil {
		reason := *t.CancelReason
		o.CancelReason = &reason
	}
	o.UpdatedAt = now

	var released *models.Slot
	if t.ReleaseSlot {
		if sl, ok := s.slots[o.SlotID]; ok && sl.Status == models.SlotStatusBooked {
			sl.Status = models.SlotStatusFree
			sl.UpdatedAt = now
			cp := *sl
			released = &cp
		}
	}

	cp := *o
	return &cp, released, nil
}

func (s *Store) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if o.Status == models.OrderStatusDraft && o.CreatedAt.Before(before) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDueScheduledOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type due struct {
		order models.Order
		at    time.Time
	}
	var found []due
	for _, o := range s.orders {
		if o.Status != models.OrderStatusScheduled {
			continue
		}
		if sl, ok := s.slots[o.SlotID]; ok && !sl.Datetime.After(now) {
			found = append(found, due{order: *o, at: sl.Datetime})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]models.Order, 0, len(found))
	for _, d := range found {
		out = append(out, d.order)
	}
	return out, nil
}

func (s *Store) CountOrders(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.orders {
		if o.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}
