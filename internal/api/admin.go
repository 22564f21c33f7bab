package api

import (
	"net/http"

	"adslot-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// adminMiddleware admits only allowlisted operators. With no admins configured
// the admin surface is switched off.
func (h *Handler) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.admin == nil || !h.admin.Configured() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin access is not configured"})
			return
		}

		identity := mustIdentity(c)
		if err := h.admin.Authorize(*identity); err != nil {
			util.LoggerFrom(c.Request.Context()).Warn("Admin access denied",
				zap.Int64("user_id", identity.UserID))
			respondError(c, err)
			return
		}
		c.Next()
	}
}

func (h *Handler) adminListChannels(c *gin.Context) {
	channels, err := h.admin.ListChannels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *Handler) adminRevenue(c *gin.Context) {
	report, err := h.admin.Revenue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
