package api

import (
	"context"
	"net/http"
	"time"

	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency probed by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the HTTP layer calls into
type Services struct {
	Channels  *service.ChannelService
	Scheduler *service.SlotScheduler
	Orders    *service.OrderService
	Analytics *service.AnalyticsAggregator
	APIKeys   *service.APIKeyService
	Auth      *service.AuthService
	// Admin may be nil; /admin then answers 503
	Admin     *service.AdminService

	// Limiter may be nil, which disables rate limiting
	Limiter            RateLimiter
	RateLimitPerMinute int

	Readiness map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	channels  *service.ChannelService
	scheduler *service.SlotScheduler
	orders    *service.OrderService
	analytics *service.AnalyticsAggregator
	apiKeys   *service.APIKeyService
	auth      *service.AuthService
	admin     *service.AdminService
	limiter   RateLimiter
	rateLimit int
	readiness map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(s Services) *Handler {
	return &Handler{
		channels:  s.Channels,
		scheduler: s.Scheduler,
		orders:    s.Orders,
		analytics: s.Analytics,
		apiKeys:   s.APIKeys,
		auth:      s.Auth,
		admin:     s.Admin,
		limiter:   s.Limiter,
		rateLimit: s.RateLimitPerMinute,
		readiness: s.Readiness,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(loggerMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/auth", h.rateLimitMiddleware())
	{
		authGroup.POST("/callback", h.authCallback)
		authGroup.POST("/dev-login", h.devLogin)
	}

	authed := router.Group("/", h.authMiddleware(), h.rateLimitMiddleware())
	{
		authed.GET("/channels", h.listChannels)
		authed.POST("/channels", h.createChannel)
		authed.GET("/channels/:id", h.getChannel)
		authed.PATCH("/channels/:id", h.updateChannel)

		authed.GET("/slots", h.listSlots)
		authed.POST("/slots", h.createSlot)
		authed.GET("/slots/:id", h.getSlot)
		authed.POST("/slots/:id/release", h.releaseSlot)

		authed.GET("/orders", h.listOrders)
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders/:id", h.getOrder)
		authed.PATCH("/orders/:id", h.updateOrderStatus)

		authed.GET("/analytics/summary", h.analyticsSummary)
		authed.GET("/analytics/views", h.analyticsViews)

		authed.GET("/api-keys", h.listAPIKeys)
		authed.POST("/api-keys", h.createAPIKey)
		authed.DELETE("/api-keys/:id", h.revokeAPIKey)

		admin := authed.Group("/admin", h.adminMiddleware())
		{
			admin.GET("/channels", h.adminListChannels)
			admin.GET("/revenue", h.adminRevenue)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// parseID reads a uuid path parameter, writing a 400 on failure
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
