package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel defaults applied on create
const (
	DefaultSlotDuration = 3600
	DefaultPricePerSlot = int64(100000)
	maxUsernameLength   = 255
)

// AllowedSlotDurations is the fixed set of slot granularities in seconds
var AllowedSlotDurations = []int{900, 1800, 3600}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ChannelService owns channel configuration
type ChannelService struct {
	store    ChannelStore
	cache    ChannelCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewChannelService creates a channel registry. cache may be nil.
func NewChannelService(store ChannelStore, cache ChannelCache, cacheTTL time.Duration) *ChannelService {
	return &ChannelService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// CreateChannelRequest represents a request to register a channel
type CreateChannelRequest struct {
	Username     string `json:"username" binding:"required"`
	SlotDuration *int   `json:"slot_duration"`
	PricePerSlot *int64 `json:"price_per_slot"`
	IsActive     *bool  `json:"is_active"`
}

// UpdateChannelRequest is a partial update; nil fields are left unchanged
type UpdateChannelRequest struct {
	Username     *string `json:"username"`
	SlotDuration *int    `json:"slot_duration"`
	PricePerSlot *int64  `json:"price_per_slot"`
	IsActive     *bool   `json:"is_active"`
}

// Create registers a channel for the tenant
func (s *ChannelService) Create(ctx context.Context, tenantID uuid.UUID, req *CreateChannelRequest) (*models.Channel, error) {
	ctx, span := util.StartSpan(ctx, "ChannelService.Create")
	defer span.End()

	username, err := normalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}

	ch := &models.Channel{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Username:     username,
		SlotDuration: DefaultSlotDuration,
		PricePerSlot: DefaultPricePerSlot,
		IsActive:     true,
	}
	if req.SlotDuration != nil {
		ch.SlotDuration = *req.SlotDuration
	}
	if req.PricePerSlot != nil {
		ch.PricePerSlot = *req.PricePerSlot
	}
	if req.IsActive != nil {
		ch.IsActive = *req.IsActive
	}
	if err := validateChannelSettings(ch); err != nil {
		return nil, err
	}

	if err := s.store.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			return nil, models.Validationf("channel @%s is already registered", username)
		}
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Channel created",
		zap.String("channel_id", ch.ID.String()),
		zap.String("username", ch.Username))
	return ch, nil
}

// Get returns a channel owned by the tenant
func (s *ChannelService) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Channel, error) {
	ch, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenantID {
		return nil, models.NotFoundf("channel %s", id)
	}
	return ch, nil
}

// List returns the tenant's channels
func (s *ChannelService) List(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	return s.store.ListChannels(ctx, tenantID)
}

// Update applies a partial update. New settings affect slots created afterwards only.
func (s *ChannelService) Update(ctx context.Context, tenantID, id uuid.UUID, req *UpdateChannelRequest) (*models.Channel, error) {
	ctx, span := util.StartSpan(ctx, "ChannelService.Update")
	defer span.End()

	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.TenantID != tenantID {
		return nil, models.NotFoundf("channel %s", id)
	}

	if req.Username != nil {
		username, err := normalizeUsername(*req.Username)
		if err != nil {
			return nil, err
		}
		ch.Username = username
	}
	if req.SlotDuration != nil {
		ch.SlotDuration = *req.SlotDuration
	}
	if req.PricePerSlot != nil {
		ch.PricePerSlot = *req.PricePerSlot
	}
	if req.IsActive != nil {
		ch.IsActive = *req.IsActive
	}
	if err := validateChannelSettings(ch); err != nil {
		return nil, err
	}

	if err := s.store.UpdateChannel(ctx, ch); err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			return nil, models.Validationf("channel @%s is already registered", ch.Username)
		}
		util.RecordError(span, err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateChannel(ctx, id); err != nil {
			s.logger.Warn("Failed to invalidate channel cache",
				zap.String("channel_id", id.String()), zap.Error(err))
		}
	}

	s.logger.Info("Channel updated", zap.String("channel_id", id.String()))
	return ch, nil
}

// lookup is a read-through cached channel fetch
func (s *ChannelService) lookup(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	if s.cache != nil {
		ch, err := s.cache.GetChannel(ctx, id)
		if err != nil {
			s.logger.Warn("Channel cache read failed", zap.String("channel_id", id.String()), zap.Error(err))
		} else if ch != nil {
			return ch, nil
		}
	}

	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetChannel(ctx, ch, s.cacheTTL); err != nil {
			s.logger.Warn("Channel cache write failed", zap.String("channel_id", id.String()), zap.Error(err))
		}
	}
	return ch, nil
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if username == "" || len(username) > maxUsernameLength {
		return "", models.Validationf("username must be 1..%d characters", maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return "", models.Validationf("username may contain only letters, digits and underscores")
	}
	return username, nil
}

func validateChannelSettings(ch *models.Channel) error {
	if !isAllowedDuration(ch.SlotDuration) {
		return models.Validationf("slot_duration must be one of %v seconds", AllowedSlotDurations)
	}
	if ch.PricePerSlot < 0 {
		return models.Validationf("price_per_slot must be non-negative")
	}
	return nil
}

func isAllowedDuration(d int) bool {
	for _, allowed := range AllowedSlotDurations {
		if d == allowed {
			return true
		}
	}
	return false
}
