package models

import (
	"errors"
	"fmt"
)

// Outcomes every caller is expected to handle. Wrap with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// ErrDuplicateKey is returned by stores when a unique key already exists
var ErrDuplicateKey = errors.New("duplicate key")

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func SlotUnavailablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, fmt.Sprintf(format, args...))
}

func InvalidTransitionf(from, to OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
