package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned for check or foreign key failures and
	// for records that are missing required identifiers.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrBusy is returned when the database stayed locked past the retry budget.
	ErrBusy = errors.New("persistence: database busy")
)

// Uniqueness violations of the allocation tables. Each one is also an ErrDuplicate.
var (
	ErrBedTaken             = fmt.Errorf("%w: bed already assigned", ErrDuplicate)
	ErrStudentAssigned      = fmt.Errorf("%w: student already assigned to a bed", ErrDuplicate)
	ErrPendingRequestExists = fmt.Errorf("%w: student already has a pending request", ErrDuplicate)
)
