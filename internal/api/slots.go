package api

import (
	"net/http"
	"time"

	"adslot-service/internal/models"
	"adslot-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func (h *Handler) listSlots(c *gin.Context) {
	var q service.ListSlotsQuery
	var err error

	if q.ChannelID, err = optionalUUID(c.Query("channel_id")); err != nil {
		respondError(c, models.Validationf("invalid channel_id"))
		return
	}
	if q.From, err = optionalTime(c.Query("date_from")); err != nil {
		respondError(c, models.Validationf("invalid date_from"))
		return
	}
	if q.To, err = optionalTime(c.Query("date_to")); err != nil {
		respondError(c, models.Validationf("invalid date_to"))
		return
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseSlotStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		q.Status = &status
	}

	slots, err := h.scheduler.ListSlots(c.Request.Context(), mustIdentity(c).TenantID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (h *Handler) createSlot(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	slot, err := h.scheduler.CreateSlot(c.Request.Context(), mustIdentity(c).TenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) getSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	slot, err := h.scheduler.GetSlot(c.Request.Context(), mustIdentity(c).TenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) releaseSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	slot, err := h.scheduler.ReleaseOwnedSlot(c.Request.Context(), mustIdentity(c).TenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// optionalTime accepts RFC 3339 timestamps or bare dates (UTC midnight)
func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
