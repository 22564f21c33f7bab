package api

import (
	"net/http"

	"adslot-service/internal/models"
	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation. A replayed Idempotency-Key returns the
// original order with 200 instead of 201.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	identity := mustIdentity(c)
	order, created, err := h.orders.CreateOrder(c.Request.Context(), identity.TenantID, identity.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), mustIdentity(c).TenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	var q service.ListOrdersQuery

	channelID, err := optionalUUID(c.Query("channel_id"))
	if err != nil {
		respondError(c, models.Validationf("invalid channel_id"))
		return
	}
	q.ChannelID = channelID

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		q.Status = &status
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), mustIdentity(c).TenantID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), mustIdentity(c).TenantID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
