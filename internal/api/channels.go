package api

import (
	"net/http"

	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listChannels(c *gin.Context) {
	channels, err := h.channels.List(c.Request.Context(), mustIdentity(c).TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *Handler) createChannel(c *gin.Context) {
	var req service.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ch, err := h.channels.Create(c.Request.Context(), mustIdentity(c).TenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *Handler) getChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ch, err := h.channels.Get(c.Request.Context(), mustIdentity(c).TenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) updateChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ch, err := h.channels.Update(c.Request.Context(), mustIdentity(c).TenantID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
