package service

import (
	"context"
	"fmt"

	"adslot-service/internal/models"
	"adslot-service/internal/util"
)

// AdminStore is the cross-tenant read access operators need
type AdminStore interface {
	ListAllChannels(ctx context.Context) ([]models.Channel, error)
	RevenueByTenant(ctx context.Context) ([]models.TenantRevenue, error)
}

// AdminService serves operator reports across all tenants. Access is granted
// to an allowlist of Telegram user ids.
type AdminService struct {
	store  AdminStore
	admins map[int64]struct{}
}

// NewAdminService creates an admin service for the given Telegram user ids
func NewAdminService(store AdminStore, adminIDs []int64) *AdminService {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &AdminService{store: store, admins: admins}
}

// Configured reports whether any admin is configured
func (s *AdminService) Configured() bool {
	return len(s.admins) > 0
}

// Authorize checks that the identity is an allowlisted admin logged in with a token
func (s *AdminService) Authorize(identity models.Identity) error {
	if identity.Method != models.AuthMethodBearer {
		return fmt.Errorf("%w: admin access requires a bearer token", models.ErrForbidden)
	}
	if _, ok := s.admins[identity.UserID]; !ok {
		return fmt.Errorf("%w: admin access required", models.ErrForbidden)
	}
	return nil
}

// ListChannels lists every channel of every tenant
func (s *AdminService) ListChannels(ctx context.Context) ([]models.Channel, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.ListChannels")
	defer span.End()

	channels, err := s.store.ListAllChannels(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Revenue totals rolled-up revenue per tenant. Figures lag bookings by one
// aggregation pass.
func (s *AdminService) Revenue(ctx context.Context) (*models.RevenueReport, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Revenue")
	defer span.End()

	byTenant, err := s.store.RevenueByTenant(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	report := &models.RevenueReport{ByTenant: byTenant}
	for _, tr := range byTenant {
		report.TotalRevenue += tr.RevenueTotal
	}
	return report, nil
}
