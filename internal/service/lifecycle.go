package service

import (
	"strings"

	"adslot-service/internal/models"
)

// Cancellation reasons recorded on the order and on SlotReleased events
const (
	ReasonUserCancelled   = "cancelled"
	ReasonDraftExpired    = "draft_expired"
	ReasonExternalCancel  = "external_cancel"
	ReasonOrphanReclaimed = "orphan_reclaimed"
	ReasonOwnerReleased   = "owner_released"
)

// planTransition checks a requested status change against the lifecycle table
// and returns the compare-and-swap to apply. It does not touch storage.
//
//	draft -> paid -> marked -> scheduled -> published
//	any non-terminal -> cancelled (frees the slot)
func planTransition(order *models.Order, to models.OrderStatus, erid *string, reason string) (models.Transition, error) {
	if !order.Status.CanTransitionTo(to) {
		return models.Transition{}, models.InvalidTransitionf(order.Status, to)
	}

	t := models.Transition{
		OrderID: order.ID,
		From:    order.Status,
		To:      to,
	}

	erid = normalizeErid(erid)
	switch to {
	case models.OrderStatusMarked:
		if erid == nil && order.Erid == nil {
			return models.Transition{}, models.Validationf("erid is required to mark an order")
		}
		t.Erid = erid
	case models.OrderStatusCancelled:
		if reason == "" {
			reason = ReasonUserCancelled
		}
		t.CancelReason = &reason
		t.ReleaseSlot = true
	}

	if erid != nil && to != models.OrderStatusMarked {
		return models.Transition{}, models.Validationf("erid can only be set when marking an order")
	}
	return t, nil
}

func normalizeErid(erid *string) *string {
	if erid == nil {
		return nil
	}
	v := strings.TrimSpace(*erid)
	if v == "" {
		return nil
	}
	return &v
}
