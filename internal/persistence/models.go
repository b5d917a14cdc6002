package persistence

import "time"

// User is a hall portal account. Students and wardens share the table; IsAdmin
// marks wardens.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Student is the resident profile attached to a user account. The ID equals
// the owning user's ID.
type Student struct {
	ID         string
	RollNumber string
	FullName   string
	Department string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Room is a hall room. CurrentOccupancy is a cached count of bed assignments.
type Room struct {
	ID               string
	Block            string
	Number           string
	Floor            int
	Capacity         int
	CurrentOccupancy int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BedAssignment is the single stored fact that a student sleeps in a bed.
// Room layouts and student residency are both read from it. Block, RoomNumber,
// StudentName and RollNumber are filled by joins on read.
type BedAssignment struct {
	RoomID      string
	Bed         int
	StudentID   string
	AssignedAt  time.Time
	Block       string
	RoomNumber  string
	StudentName string
	RollNumber  string
}

// AllocationRequest is one row of the allocation ledger.
type AllocationRequest struct {
	ID                  string
	StudentID           string
	Block               string
	RoomNumber          string
	Bed                 int
	RequestedBlock      string
	RequestedRoomNumber string
	RequestedBed        int
	Status              string
	IsActive            bool
	IsRoomChange        bool
	IsAdminAction       bool
	RequestedAt         time.Time
	ActionAt            *time.Time
	ActedBy             string
	StudentNotes        string
	AdminNotes          string
	AuditNotes          string
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}
