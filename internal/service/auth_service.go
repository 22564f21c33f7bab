package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService exchanges Telegram login data for bearer tokens and verifies them
type AuthService struct {
	tenants      TenantStore
	secret       []byte
	tokenTTL     time.Duration
	botToken     string
	initDataTTL  time.Duration
	devLoginOpen bool
	logger       *zap.Logger
	now          func() time.Time
}

// AuthConfig holds token and Telegram verification settings
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	BotToken       string
	InitDataMaxAge time.Duration
	EnableDevLogin bool
}

// NewAuthService creates a new auth service
func NewAuthService(tenants TenantStore, cfg AuthConfig) *AuthService {
	return &AuthService{
		tenants:      tenants,
		secret:       []byte(cfg.JWTSecret),
		tokenTTL:     cfg.TokenTTL,
		botToken:     cfg.BotToken,
		initDataTTL:  cfg.InitDataMaxAge,
		devLoginOpen: cfg.EnableDevLogin,
		logger:       util.GetLogger(),
		now:          time.Now,
	}
}

// TokenResponse is returned by the identity exchange endpoints
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	TenantID    string `json:"tenant_id"`
}

// CallbackRequest carries the raw Telegram WebApp initData string
type CallbackRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

// DevLoginRequest logs in as an arbitrary Telegram user when dev login is enabled
type DevLoginRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Name       string `json:"name"`
}

// TelegramUser is the user object embedded in initData
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type tokenClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// DevLoginEnabled reports whether /auth/dev-login is served
func (s *AuthService) DevLoginEnabled() bool {
	return s.devLoginOpen
}

// Callback verifies Telegram initData, upserts the tenant and issues a token
func (s *AuthService) Callback(ctx context.Context, req *CallbackRequest) (*TokenResponse, error) {
	user, err := s.VerifyInitData(req.InitData)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.Username
	}
	return s.login(ctx, user.ID, name)
}

// DevLogin issues a token without Telegram verification
func (s *AuthService) DevLogin(ctx context.Context, req *DevLoginRequest) (*TokenResponse, error) {
	if !s.devLoginOpen {
		return nil, models.NotFoundf("dev login is disabled")
	}
	if req.TelegramID <= 0 {
		return nil, models.Validationf("telegram_id must be positive")
	}
	return s.login(ctx, req.TelegramID, req.Name)
}

func (s *AuthService) login(ctx context.Context, telegramID int64, name string) (*TokenResponse, error) {
	tenant, err := s.tenants.UpsertTenant(ctx, telegramID, name)
	if err != nil {
		return nil, err
	}

	token, err := s.IssueToken(telegramID, tenant.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in",
		zap.Int64("telegram_id", telegramID),
		zap.String("tenant_id", tenant.ID.String()))
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
		TenantID:    tenant.ID.String(),
	}, nil
}

// IssueToken signs an HS256 token for the user and tenant
func (s *AuthService) IssueToken(userID int64, tenantID uuid.UUID) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a bearer token into a request identity
func (s *AuthService) VerifyToken(raw string) (*models.Identity, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", models.ErrUnauthorized)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", models.ErrUnauthorized)
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant", models.ErrUnauthorized)
	}

	return &models.Identity{UserID: userID, TenantID: tenantID, Method: models.AuthMethodBearer}, nil
}

// VerifyInitData checks a Telegram WebApp initData string. The secret key is
// HMAC-SHA256("WebAppData", bot token); the hash covers the sorted key=value
// lines of every other field.
func (s *AuthService) VerifyInitData(initData string) (*TelegramUser, error) {
	if s.botToken == "" {
		return nil, fmt.Errorf("%w: telegram login is not configured", models.ErrUnauthorized)
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, models.Validationf("init_data is not a valid query string")
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("%w: init_data hash missing", models.ErrUnauthorized)
	}

	if !hmac.Equal([]byte(InitDataHash(s.botToken, values)), []byte(receivedHash)) {
		return nil, fmt.Errorf("%w: init_data hash mismatch", models.ErrUnauthorized)
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date missing", models.ErrUnauthorized)
	}
	if s.now().Sub(time.Unix(authDate, 0)) > s.initDataTTL {
		return nil, fmt.Errorf("%w: init_data expired", models.ErrUnauthorized)
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: init_data user missing", models.ErrUnauthorized)
	}
	return &user, nil
}

// InitDataHash computes the hex hash Telegram attaches to initData
func InitDataHash(botToken string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
