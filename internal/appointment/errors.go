package appointment

import (
	"errors"
	"fmt"
)

// Domain outcomes. These are surfaced to callers verbatim.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrSlotUnavailable  = errors.New("slot unavailable")
	ErrNotFound         = errors.New("appointment not found")
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
	ErrInvalidState     = errors.New("invalid appointment state")
	ErrBusy             = errors.New("doctor calendar is busy, please retry")
)

// Infrastructure failures. Callers should not expose their detail.
var (
	ErrDuplicateID      = errors.New("duplicate appointment id")
	ErrStatusChanged    = errors.New("appointment status changed concurrently")
	ErrInternal         = errors.New("internal error")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ConflictError names the appointment a candidate slot overlaps.
type ConflictError struct {
	Existing Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot unavailable: overlaps existing appointment %s", e.Existing.Slot().Range())
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// IsDomainError reports whether err is an expected business outcome rather
// than an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrSlotUnavailable,
		ErrNotFound,
		ErrAlreadyCancelled,
		ErrInvalidState,
		ErrBusy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
