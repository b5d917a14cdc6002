package allocation

import (
	"sort"
	"strings"
	"time"
)

const (
	// MinCapacity is the smallest number of beds a room may hold.
	MinCapacity = 1
	// MaxCapacity is the largest number of beds a room may hold.
	MaxCapacity = 6
)

// Occupant pairs a bed number with the student sleeping in it.
type Occupant struct {
	Bed        int
	StudentID  string
	AssignedAt time.Time
}

// Room is the inventory view of a single hall room and its occupancy set.
type Room struct {
	ID        string
	Block     string
	Number    string
	Floor     int
	Capacity  int
	Occupants []Occupant
}

// SameRoom reports whether block and number identify this room.
func (r Room) SameRoom(block, number string) bool {
	return SameRoom(r.Block, r.Number, block, number)
}

// CurrentOccupancy returns the number of occupied beds.
func (r Room) CurrentOccupancy() int {
	return len(r.Occupants)
}

// AvailableBeds returns the number of unoccupied beds.
func (r Room) AvailableBeds() int {
	available := r.Capacity - len(r.Occupants)
	if available < 0 {
		return 0
	}
	return available
}

// IsFull reports whether every bed is occupied.
func (r Room) IsFull() bool {
	return r.AvailableBeds() == 0
}

// OccupiedBeds returns the occupied bed numbers in ascending order.
func (r Room) OccupiedBeds() []int {
	beds := make([]int, 0, len(r.Occupants))
	for _, occupant := range r.Occupants {
		beds = append(beds, occupant.Bed)
	}
	sort.Ints(beds)
	return beds
}

// OccupantOf returns the occupant holding bed, if any.
func (r Room) OccupantOf(bed int) (Occupant, bool) {
	for _, occupant := range r.Occupants {
		if occupant.Bed == bed {
			return occupant, true
		}
	}
	return Occupant{}, false
}

// BedOf returns the bed held by studentID, if any.
func (r Room) BedOf(studentID string) (int, bool) {
	for _, occupant := range r.Occupants {
		if occupant.StudentID == studentID {
			return occupant.Bed, true
		}
	}
	return 0, false
}

// ValidBed reports whether bed lies inside the addressable range of the room.
func (r Room) ValidBed(bed int) bool {
	return bed >= 1 && bed <= r.Capacity
}

// CheckBed validates that bed can be handed to a new occupant.
func (r Room) CheckBed(bed int) error {
	if !r.ValidBed(bed) {
		return ErrInvalidBed
	}
	if _, taken := r.OccupantOf(bed); taken {
		return ErrBedOccupied
	}
	return nil
}

// ReserveBed adds the (bed, student) pair to the occupancy set.
func (r *Room) ReserveBed(bed int, studentID string, at time.Time) error {
	if err := r.CheckBed(bed); err != nil {
		return err
	}
	if _, holds := r.BedOf(studentID); holds {
		return ErrAlreadyAllocated
	}
	r.Occupants = append(r.Occupants, Occupant{Bed: bed, StudentID: studentID, AssignedAt: at})
	sortOccupants(r.Occupants)
	return nil
}

// ReleaseBed removes whichever pair belongs to studentID. Releasing a student
// that is not present is a no-op and reports false.
func (r *Room) ReleaseBed(studentID string) (int, bool) {
	for i, occupant := range r.Occupants {
		if occupant.StudentID != studentID {
			continue
		}
		r.Occupants = append(r.Occupants[:i], r.Occupants[i+1:]...)
		return occupant.Bed, true
	}
	return 0, false
}

// CheckResize validates a capacity change without applying it.
func (r Room) CheckResize(newCapacity int) error {
	if newCapacity < MinCapacity || newCapacity > MaxCapacity {
		return ErrInvalidCapacity
	}
	var dropped []int
	for _, bed := range r.OccupiedBeds() {
		if bed > newCapacity {
			dropped = append(dropped, bed)
		}
	}
	if len(dropped) > 0 {
		return &OccupiedBedsError{Beds: dropped}
	}
	return nil
}

// Resize applies a validated capacity change. Occupants are never touched.
func (r *Room) Resize(newCapacity int) (int, error) {
	if err := r.CheckResize(newCapacity); err != nil {
		return r.Capacity, err
	}
	old := r.Capacity
	r.Capacity = newCapacity
	return old, nil
}

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	out := r
	out.Occupants = append([]Occupant(nil), r.Occupants...)
	return out
}

// Residency is a student's current placement. The zero value means the
// student has no room.
type Residency struct {
	RoomID     string
	Block      string
	RoomNumber string
	Bed        int
	AssignedAt time.Time
}

// Allocated reports whether the residency names a bed.
func (r Residency) Allocated() bool {
	return r.Block != "" && r.RoomNumber != "" && r.Bed > 0
}

// Matches reports whether the residency is exactly block/room/bed.
func (r Residency) Matches(block, number string, bed int) bool {
	return r.Allocated() && SameRoom(r.Block, r.RoomNumber, block, number) && r.Bed == bed
}

// SameRoom compares two block/room pairs ignoring case and surrounding space.
func SameRoom(blockA, numberA, blockB, numberB string) bool {
	return strings.EqualFold(strings.TrimSpace(blockA), strings.TrimSpace(blockB)) &&
		strings.EqualFold(strings.TrimSpace(numberA), strings.TrimSpace(numberB))
}

// NormalizeBlock canonicalizes a block label.
func NormalizeBlock(block string) string {
	return strings.ToUpper(strings.TrimSpace(block))
}

// NormalizeRoomNumber canonicalizes a room number.
func NormalizeRoomNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

func sortOccupants(occupants []Occupant) {
	sort.Slice(occupants, func(i, j int) bool {
		return occupants[i].Bed < occupants[j].Bed
	})
}
