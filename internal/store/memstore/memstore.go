// Package memstore is an in-process implementation of the store used by tests
// and by the memory storage driver. Every method takes one mutex, so slot
// claims are linearizable within a single process.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adslot-service/internal/models"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	tenants    map[uuid.UUID]*models.Tenant
	channels   map[uuid.UUID]*models.Channel
	slots      map[uuid.UUID]*models.Slot
	orders     map[uuid.UUID]*models.Order
	apiKeys    map[uuid.UUID]*models.ApiKey
	viewEvents map[string]models.ViewEvent
	rollups    map[models.RollupKey]*models.DailyRollup
	processed  map[string]string

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		tenants:    make(map[uuid.UUID]*models.Tenant),
		channels:   make(map[uuid.UUID]*models.Channel),
		slots:      make(map[uuid.UUID]*models.Slot),
		orders:     make(map[uuid.UUID]*models.Order),
		apiKeys:    make(map[uuid.UUID]*models.ApiKey),
		viewEvents: make(map[string]models.ViewEvent),
		rollups:    make(map[models.RollupKey]*models.DailyRollup),
		processed:  make(map[string]string),
		now:        time.Now,
	}
}

// SetClock replaces the timestamp source used for created_at/updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[eventID]; !ok {
		s.processed[eventID] = eventType
	}
	return nil
}

func (s *Store) UpsertTenant(ctx context.Context, telegramID int64, name string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tenants {
		if t.TelegramID == telegramID {
			if name != "" {
				t.Name = name
			}
			cp := *t
			return &cp, nil
		}
	}

	t := &models.Tenant{ID: uuid.New(), TelegramID: telegramID, Name: name, CreatedAt: s.now().UTC()}
	s.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, models.NotFoundf("tenant %s", id)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, key *models.ApiKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.apiKeys {
		if k.KeyHash == key.KeyHash {
			return fmt.Errorf("%w: api key", models.ErrDuplicateKey)
		}
	}
	key.CreatedAt = s.now().UTC()
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

func (s *Store) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]models.ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []models.ApiKey{}
	for _, k := range s.apiKeys {
		if k.TenantID == tenantID {
			keys = append(keys, *k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.TenantID != tenantID {
		return models.NotFoundf("api key %s", id)
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.apiKeys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, models.NotFoundf("api key")
}
