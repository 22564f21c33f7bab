package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-Id"
	headerAPIKey    = "X-API-Key"
	identityKey     = "identity"
	rateLimitWindow = time.Minute
)

// RateLimiter is a fixed-window request counter
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// requestIDMiddleware tags each request with an id and a request-scoped logger
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)

		logger := util.GetLogger().With(zap.String("request_id", id))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// loggerMiddleware writes one structured line per request
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		util.LoggerFrom(c.Request.Context()).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}

// authMiddleware resolves the caller from an API key or a bearer token
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			identity *models.Identity
			err      error
		)
		if key := c.GetHeader(headerAPIKey); key != "" {
			identity, err = h.apiKeys.Resolve(ctx, key)
		} else {
			token, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				respondError(c, models.ErrUnauthorized)
				return
			}
			identity, err = h.auth.VerifyToken(token)
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(identityKey, identity)
		logger := util.LoggerFrom(ctx).With(
			zap.String("tenant_id", identity.TenantID.String()),
			zap.String("auth_method", identity.Method))
		c.Request = c.Request.WithContext(util.WithLogger(ctx, logger))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// rateLimitMiddleware applies a per-caller fixed window. Authenticated requests
// are keyed by tenant, anonymous ones by client IP. Limiter errors fail open.
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil || h.rateLimit <= 0 {
			c.Next()
			return
		}

		key := "rl:ip:" + c.ClientIP()
		if identity, ok := identityFrom(c); ok {
			key = "rl:tenant:" + identity.TenantID.String()
		}

		allowed, retryAfter, err := h.limiter.Allow(c.Request.Context(), key, h.rateLimit, rateLimitWindow)
		if err != nil {
			util.LoggerFrom(c.Request.Context()).Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(h.rateLimit))
		if !allowed {
			util.RateLimitedTotal.Inc()
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (*models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*models.Identity)
	return identity, ok && identity != nil
}

// mustIdentity returns the caller; routes using it are always behind authMiddleware
func mustIdentity(c *gin.Context) *models.Identity {
	identity, _ := identityFrom(c)
	return identity
}
