package application

import (
	"errors"
	"fmt"

	"github.com/example/hall-allocation/internal/allocation"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	// It is the allocation category so transports map both layers the same way.
	ErrUnauthorized = allocation.ErrUnauthorized
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = allocation.ErrNotFound
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = fmt.Errorf("%w: already exists", allocation.ErrConflict)
	// ErrRoomOccupied is returned when a room that still houses students is deleted.
	ErrRoomOccupied = fmt.Errorf("%w: room still has occupants", allocation.ErrPreconditionFailed)

	ErrInvalidCredentials = errors.New("application: invalid credentials")
	ErrSessionExpired     = errors.New("application: session expired")
	ErrSessionRevoked     = errors.New("application: session revoked")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
