package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for matching with errors.Is.  Each typed error below
// reports Is(sentinel) == true for its own kind.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrSeatConflict     = errors.New("seat conflict")
	ErrScheduleConflict = errors.New("schedule conflict")
	ErrTransient        = errors.New("transient storage error")
	ErrIntegrity        = errors.New("integrity violation")
)

// ValidationError reports malformed input.  Seats lists offending seat
// keys when the problem is seat-specific (unknown or inactive seats,
// duplicates in a request).
type ValidationError struct {
	Field  string
	Reason string
	Seats  []SeatKey
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing room, showtime, seat, movie or
// reservation.
type NotFoundError struct {
	Entity string
	ID     uint64
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity string, id uint64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Entity, e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// SeatConflictError is returned when requested seats are no longer free
// at commit time.  Seats names exactly the unavailable seats so a
// client can deselect only those.
type SeatConflictError struct {
	ShowtimeID uint64
	Seats      []SeatKey
}

func (e *SeatConflictError) Error() string {
	labels := make([]string, 0, len(e.Seats))
	for _, k := range e.Seats {
		labels = append(labels, k.String())
	}
	return fmt.Sprintf("seats unavailable for showtime %d: %s", e.ShowtimeID, strings.Join(labels, ","))
}

func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// ScheduleConflictError reports an overlapping showtime in the same room
// on the same calendar day.
type ScheduleConflictError struct {
	ShowtimeID uint64
	RoomID     uint64
	Date       Date
	StartAt    string
	EndAt      string
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("room %d already has showtime %d on %s from %s to %s",
		e.RoomID, e.ShowtimeID, e.Date, e.StartAt, e.EndAt)
}

func (e *ScheduleConflictError) Is(target error) bool { return target == ErrScheduleConflict }

// TransientStorageError wraps a timeout or connection failure.  Callers
// may retry the whole operation a bounded number of times.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("%s: transient storage failure: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

func (e *TransientStorageError) Is(target error) bool { return target == ErrTransient }

// Temporary marks the error as retryable.
func (e *TransientStorageError) Temporary() bool { return true }

// IntegrityError is a storage constraint violation.  The booking path
// translates occupancy violations into SeatConflictError before they
// reach a caller.
type IntegrityError struct {
	Constraint string
	Err        error
}

func (e *IntegrityError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("integrity violation: %v", e.Err)
	}
	return fmt.Sprintf("integrity violation on %s: %v", e.Constraint, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// Names of the unique indexes the booking path cares about.  The
// repository copies them into IntegrityError.Constraint.
const (
	ConstraintSeatOccupancy  = "uq_rs_occupancy"
	ConstraintIdempotencyKey = "uq_res_user_idem"
)
