package memstore

import (
	"context"
	"sort"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

func (s *Store) InsertViewEvents(ctx context.Context, events []models.ViewEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, e := range events {
		if _, ok := s.viewEvents[e.EventID]; ok {
			continue
		}
		s.viewEvents[e.EventID] = e
		inserted++
	}
	return inserted, nil
}

func (s *Store) ComputeDailyRollup(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, models.NotFoundf("channel %s", channelID)
	}

	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)
	r := &models.DailyRollup{ChannelID: channelID, Day: start, TenantID: ch.TenantID}

	for _, e := range s.viewEvents {
		if e.ChannelID == channelID && !e.ViewedAt.Before(start) && e.ViewedAt.Before(end) {
			r.ViewsTotal += e.Views
		}
	}
	for _, o := range s.orders {
		if o.ChannelID != channelID || o.Status != models.OrderStatusPublished {
			continue
		}
		sl, ok := s.slots[o.SlotID]
		if !ok || sl.Datetime.Before(start) || !sl.Datetime.Before(end) {
			continue
		}
		r.OrdersPublished++
		r.RevenueTotal += sl.Price
	}
	return r, nil
}

func (s *Store) UpsertRollup(ctx context.Context, r *models.DailyRollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Day = models.DayOf(r.Day)
	cp.UpdatedAt = s.now().UTC()
	s.rollups[models.RollupKey{ChannelID: r.ChannelID, Day: cp.Day}] = &cp
	return nil
}

func (s *Store) GetRollup(ctx context.Context, channelID uuid.UUID, day time.Time) (*models.DailyRollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rollups[models.RollupKey{ChannelID: channelID, Day: models.DayOf(day)}]
	if !ok {
		return nil, models.NotFoundf("rollup %s %s", channelID, day.Format("2006-01-02"))
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListActiveDays(ctx context.Context, from, to time.Time) ([]models.RollupKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.RollupKey]struct{})
	for _, e := range s.viewEvents {
		if !e.ViewedAt.Before(from) && e.ViewedAt.Before(to) {
			seen[models.RollupKey{ChannelID: e.ChannelID, Day: models.DayOf(e.ViewedAt)}] = struct{}{}
		}
	}
	for _, o := range s.orders {
		if o.Status != models.OrderStatusPublished {
			continue
		}
		sl, ok := s.slots[o.SlotID]
		if ok && !sl.Datetime.Before(from) && sl.Datetime.Before(to) {
			seen[models.RollupKey{ChannelID: o.ChannelID, Day: models.DayOf(sl.Datetime)}] = struct{}{}
		}
	}

	keys := make([]models.RollupKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day.Equal(keys[j].Day) {
			return keys[i].ChannelID.String() < keys[j].ChannelID.String()
		}
		return keys[i].Day.Before(keys[j].Day)
	})
	return keys, nil
}

func (s *Store) SumRollups(ctx context.Context, tenantID uuid.UUID) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var views, revenue int64
	for _, r := range s.rollups {
		if r.TenantID == tenantID {
			views += r.ViewsTotal
			revenue += r.RevenueTotal
		}
	}
	return views, revenue, nil
}

func (s *Store) RevenueByTenant(ctx context.Context) ([]models.TenantRevenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTenant := map[uuid.UUID]*models.TenantRevenue{}
	for _, r := range s.rollups {
		tr, ok := byTenant[r.TenantID]
		if !ok {
			tr = &models.TenantRevenue{TenantID: r.TenantID}
			byTenant[r.TenantID] = tr
		}
		tr.OrdersPublished += r.OrdersPublished
		tr.RevenueTotal += r.RevenueTotal
	}
	out := make([]models.TenantRevenue, 0, len(byTenant))
	for _, tr := range byTenant {
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RevenueTotal == out[j].RevenueTotal {
			return out[i].TenantID.String() < out[j].TenantID.String()
		}
		return out[i].RevenueTotal > out[j].RevenueTotal
	})
	return out, nil
}

func (s *Store) ViewsByDay(ctx context.Context, tenantID uuid.UUID, from, to time.Time, channelID *uuid.UUID) ([]models.DayViews, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := models.DayOf(from), models.DayOf(to)
	sums := make(map[time.Time]int64)
	for _, r := range s.rollups {
		if r.TenantID != tenantID || r.Day.Before(start) || r.Day.After(end) {
			continue
		}
		if channelID != nil && r.ChannelID != *channelID {
			continue
		}
		sums[r.Day] += r.ViewsTotal
	}

	out := make([]models.DayViews, 0, len(sums))
	for d, v := range sums {
		out = append(out, models.DayViews{Day: d, Views: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
