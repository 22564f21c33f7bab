package models

import "strings"

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusMarked    OrderStatus = "marked"
	OrderStatusScheduled OrderStatus = "scheduled"
	OrderStatusPublished OrderStatus = "published"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SlotStatus is the booking state of a slot
type SlotStatus string

// Slot statuses
const (
	SlotStatusFree   SlotStatus = "free"
	SlotStatusBooked SlotStatus = "booked"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:     {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusMarked, OrderStatusCancelled},
	OrderStatusMarked:    {OrderStatusScheduled, OrderStatusCancelled},
	OrderStatusScheduled: {OrderStatusPublished, OrderStatusCancelled},
}

// ParseOrderStatus accepts only the closed set of order statuses
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case OrderStatusDraft, OrderStatusPaid, OrderStatusMarked,
		OrderStatusScheduled, OrderStatusPublished, OrderStatusCancelled:
		return st, nil
	}
	return "", Validationf("unknown order status %q", s)
}

// ParseSlotStatus accepts only free and booked
func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case SlotStatusFree, SlotStatusBooked:
		return st, nil
	}
	return "", Validationf("unknown slot status %q", s)
}

// IsTerminal reports whether no further transition is allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPublished || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsSlot reports whether an order in this state keeps its slot booked
func (s OrderStatus) HoldsSlot() bool {
	return s != OrderStatusCancelled
}
