package service

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState is returned when an operation is attempted against a
	// message whose lifecycle state does not allow it (send-now on a sent
	// or cancelled message, cancel on anything but scheduled, a second
	// dispatch of an already-sent message).
	ErrInvalidState = errors.New("invalid message state")
)
