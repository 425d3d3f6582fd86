package model

import "errors"

var (
	// ErrInvalidInput covers bookings without a type, client or slot.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSlotUnavailable is returned when another booking claimed the slot after it was computed.
	ErrSlotUnavailable = errors.New("slot no longer available")
	ErrNotFound        = errors.New("not found")
	ErrInvalidStatus   = errors.New("invalid appointment status")
)
