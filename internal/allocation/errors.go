package allocation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Error categories. Every specific allocation error wraps exactly one of these
// so transports can map failures without knowing each individual sentinel.
var (
	ErrNotFound           = errors.New("allocation: not found")
	ErrConflict           = errors.New("allocation: conflict")
	ErrInvalidInput       = errors.New("allocation: invalid input")
	ErrPreconditionFailed = errors.New("allocation: precondition failed")
	ErrUnauthorized       = errors.New("allocation: unauthorized")
)

var (
	ErrRoomNotFound    = fmt.Errorf("%w: room", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("%w: student", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("%w: allocation request", ErrNotFound)

	ErrBedOccupied             = fmt.Errorf("%w: bed already occupied", ErrConflict)
	ErrDuplicatePendingRequest = fmt.Errorf("%w: a pending request already exists", ErrConflict)
	ErrAlreadyAllocated        = fmt.Errorf("%w: student already holds a room", ErrConflict)
	ErrNoOpChange              = fmt.Errorf("%w: requested bed is the current bed", ErrConflict)
	ErrRoomFull                = fmt.Errorf("%w: room is full", ErrConflict)

	ErrInvalidBed      = fmt.Errorf("%w: bed number outside room capacity", ErrInvalidInput)
	ErrInvalidCapacity = fmt.Errorf("%w: capacity must be between %d and %d", ErrInvalidInput, MinCapacity, MaxCapacity)
	ErrInvalidStatus   = fmt.Errorf("%w: status transition not allowed", ErrInvalidInput)

	ErrNoCurrentAllocation        = fmt.Errorf("%w: student has no room allocated", ErrPreconditionFailed)
	ErrOccupiedBedsWouldBeRemoved = fmt.Errorf("%w: occupied beds would be removed", ErrPreconditionFailed)
)

// OccupiedBedsError names the occupied beds that a capacity shrink would drop.
type OccupiedBedsError struct {
	Beds []int
}

func (e *OccupiedBedsError) Error() string {
	if e == nil || len(e.Beds) == 0 {
		return ErrOccupiedBedsWouldBeRemoved.Error()
	}
	beds := append([]int(nil), e.Beds...)
	sort.Ints(beds)
	parts := make([]string, 0, len(beds))
	for _, bed := range beds {
		parts = append(parts, strconv.Itoa(bed))
	}
	return fmt.Sprintf("%s: beds %s", ErrOccupiedBedsWouldBeRemoved.Error(), strings.Join(parts, ", "))
}

// Is lets callers match the error against ErrOccupiedBedsWouldBeRemoved and its category.
func (e *OccupiedBedsError) Is(target error) bool {
	return target == ErrOccupiedBedsWouldBeRemoved || target == ErrPreconditionFailed
}
