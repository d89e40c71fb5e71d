package appointment

import (
	"errors"
	"fmt"
)

// Outcomes surfaced to callers. Match them with errors.Is.
var (
	ErrValidation = errors.New("invalid booking request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("slot already taken")
	ErrForbidden  = errors.New("forbidden")
	ErrTimeout    = errors.New("booking ledger did not respond in time")

	// ErrAlreadyTerminal also matches ErrForbidden.
	ErrAlreadyTerminal = fmt.Errorf("%w: appointment already cancelled or completed", ErrForbidden)
)
