package api

import (
	"fmt"
	"net/http"

	"adslot-service/internal/models"
	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) authCallback(c *gin.Context) {
	var req service.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.auth.Callback(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) devLogin(c *gin.Context) {
	if !h.auth.DevLoginEnabled() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var req service.DevLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.auth.DevLogin(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listAPIKeys(c *gin.Context) {
	keys, err := h.apiKeys.List(c.Request.Context(), mustIdentity(c).TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// createAPIKey issues a key. Keys can only be minted with a bearer token.
func (h *Handler) createAPIKey(c *gin.Context) {
	identity := mustIdentity(c)
	if identity.Method != models.AuthMethodBearer {
		respondError(c, fmt.Errorf("%w: api keys cannot create api keys", models.ErrForbidden))
		return
	}

	var req service.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	key, err := h.apiKeys.Create(c.Request.Context(), identity.TenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) revokeAPIKey(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.apiKeys.Revoke(c.Request.Context(), mustIdentity(c).TenantID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
