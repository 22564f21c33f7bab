package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	apiKeyPrefix      = "ak_"
	apiKeySecretBytes = 32
	maxAPIKeyName     = 255
)

// APIKeyService issues and revokes tenant API keys. Only a SHA-256 verifier
// and a short preview are persisted.
type APIKeyService struct {
	store   APIKeyStore
	tenants TenantStore
	logger  *zap.Logger
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(store APIKeyStore, tenants TenantStore) *APIKeyService {
	return &APIKeyService{
		store:   store,
		tenants: tenants,
		logger:  util.GetLogger(),
	}
}

// CreateAPIKeyRequest represents a request to issue a key
type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreatedAPIKey is returned once; Key is never retrievable again
type CreatedAPIKey struct {
	models.ApiKey
	Key string `json:"key"`
}

// Create issues a new key for the tenant
func (s *APIKeyService) Create(ctx context.Context, tenantID uuid.UUID, req *CreateAPIKeyRequest) (*CreatedAPIKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxAPIKeyName {
		return nil, models.Validationf("name must be 1..%d characters", maxAPIKeyName)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	key := models.ApiKey{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		KeyHash:    hashAPIKey(secret),
		KeyPreview: previewAPIKey(secret),
	}
	if err := s.store.CreateAPIKey(ctx, &key); err != nil {
		return nil, err
	}

	s.logger.Info("API key created",
		zap.String("api_key_id", key.ID.String()),
		zap.String("tenant_id", tenantID.String()))
	return &CreatedAPIKey{ApiKey: key, Key: secret}, nil
}

// List returns the tenant's keys without secrets
func (s *APIKeyService) List(ctx context.Context, tenantID uuid.UUID) ([]models.ApiKey, error) {
	return s.store.ListAPIKeys(ctx, tenantID)
}

// Revoke deletes a key owned by the tenant
func (s *APIKeyService) Revoke(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.DeleteAPIKey(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("API key revoked", zap.String("api_key_id", id.String()))
	return nil
}

// Resolve maps a presented secret to the owning tenant's identity
func (s *APIKeyService) Resolve(ctx context.Context, secret string) (*models.Identity, error) {
	if !strings.HasPrefix(secret, apiKeyPrefix) {
		return nil, fmt.Errorf("%w: malformed api key", models.ErrUnauthorized)
	}

	key, err := s.store.GetAPIKeyByHash(ctx, hashAPIKey(secret))
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown api key", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetTenant(ctx, key.TenantID)
	if err != nil {
		return nil, err
	}
	return &models.Identity{
		UserID:   tenant.TelegramID,
		TenantID: tenant.ID,
		Method:   models.AuthMethodAPIKey,
	}, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func previewAPIKey(secret string) string {
	if len(secret) <= len(apiKeyPrefix)+4 {
		return apiKeyPrefix + "••••"
	}
	return apiKeyPrefix + "••••" + secret[len(secret)-4:]
}
