package api

import (
	"net/http"

	"adslot-service/internal/models"
	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) analyticsSummary(c *gin.Context) {
	summary, err := h.analytics.GetSummary(c.Request.Context(), mustIdentity(c).TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) analyticsViews(c *gin.Context) {
	var q service.ViewsQuery
	var err error

	if q.From, err = optionalTime(c.Query("date_from")); err != nil {
		respondError(c, models.Validationf("date_from must be YYYY-MM-DD"))
		return
	}
	if q.To, err = optionalTime(c.Query("date_to")); err != nil {
		respondError(c, models.Validationf("date_to must be YYYY-MM-DD"))
		return
	}
	if q.ChannelID, err = optionalUUID(c.Query("channel_id")); err != nil {
		respondError(c, models.Validationf("invalid channel_id"))
		return
	}

	points, err := h.analytics.GetViews(c.Request.Context(), mustIdentity(c).TenantID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}
