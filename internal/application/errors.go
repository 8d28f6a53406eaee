package application

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested session does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyReserved is returned when the user already holds a reservation.
	ErrAlreadyReserved = errors.New("application: already reserved")
	// ErrSlotTaken is returned when another user occupies the requested slot.
	ErrSlotTaken = errors.New("application: slot taken")
	// ErrInvalidSlot is returned for an unknown team or an index outside the team capacity.
	ErrInvalidSlot = errors.New("application: invalid slot")
	// ErrNoReservation is returned when releasing without a held reservation.
	ErrNoReservation = errors.New("application: no reservation")
	// ErrStoreUnavailable is returned when a slot or pointer store operation fails.
	ErrStoreUnavailable = errors.New("application: store unavailable")
	// ErrCatalogUnavailable is returned when the session catalog cannot be read.
	ErrCatalogUnavailable = errors.New("application: catalog unavailable")
)

var errViewInconsistent = errors.New("view is not consistent, reload required")

// AlreadyReservedError carries the reservation that blocked a new one.
type AlreadyReservedError struct {
	SessionID string
	Team      string
	SlotIndex int
}

// Error implements the error interface.
func (e *AlreadyReservedError) Error() string {
	if e == nil {
		return ErrAlreadyReserved.Error()
	}
	if e.Team == "" {
		return ErrAlreadyReserved.Error()
	}
	return fmt.Sprintf("%s: %s slot %d in session %s", ErrAlreadyReserved, e.Team, e.SlotIndex, e.SessionID)
}

// Is matches ErrAlreadyReserved.
func (e *AlreadyReservedError) Is(target error) bool {
	return target == ErrAlreadyReserved
}

// StoreError wraps a failed slot or pointer store operation.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// CatalogError wraps a failed session catalog operation.
type CatalogError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCatalogUnavailable, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is matches ErrCatalogUnavailable.
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalogUnavailable
}

// Retryable reports whether the caller may reload and try again.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrCatalogUnavailable)
}

// Message returns a short text suitable for showing to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyReserved):
		return "You have already reserved a slot in this session."
	case errors.Is(err, ErrSlotTaken):
		return "This slot is already reserved."
	case errors.Is(err, ErrInvalidSlot):
		return "That slot does not exist."
	case errors.Is(err, ErrNoReservation):
		return "No reservation to remove."
	case errors.Is(err, ErrStoreUnavailable):
		return "Failed to update reservations. Please try again."
	case errors.Is(err, ErrCatalogUnavailable):
		return "Failed to load session details. Please try again."
	case errors.Is(err, ErrNotFound):
		return "Session not found."
	default:
		return "Something went wrong. Please try again."
	}
}
