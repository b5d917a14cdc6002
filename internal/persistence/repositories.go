package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for hall accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// StudentRepository stores resident profiles.
type StudentRepository interface {
	// CreateStudent inserts the account and its profile atomically.
	CreateStudent(ctx context.Context, user User, student Student) error
	GetStudent(ctx context.Context, id string) (Student, error)
	GetStudentByRollNumber(ctx context.Context, rollNumber string) (Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
}

// RoomRepository exposes inventory setup operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	GetRoomByLabel(ctx context.Context, block, number string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// AllocationTx is the set of reads and writes an allocation operation
// performs as one unit over rooms, bed assignments and the request ledger.
type AllocationTx interface {
	GetStudent(ctx context.Context, id string) (Student, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	GetRoomByLabel(ctx context.Context, block, number string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	UpdateRoomCapacity(ctx context.Context, roomID string, capacity int, updatedAt time.Time) error
	// RefreshRoomOccupancy recomputes the cached occupancy of a room from its
	// bed assignments and returns the new value.
	RefreshRoomOccupancy(ctx context.Context, roomID string, updatedAt time.Time) (int, error)

	ListAssignmentsForRoom(ctx context.Context, roomID string) ([]BedAssignment, error)
	GetAssignmentForStudent(ctx context.Context, studentID string) (BedAssignment, error)
	InsertAssignment(ctx context.Context, assignment BedAssignment) error
	// DeleteAssignmentForStudent removes and returns the student's assignment.
	DeleteAssignmentForStudent(ctx context.Context, studentID string) (BedAssignment, error)

	GetRequest(ctx context.Context, id string) (AllocationRequest, error)
	ListRequestsForStudent(ctx context.Context, studentID string) ([]AllocationRequest, error)
	ListPendingRequests(ctx context.Context) ([]AllocationRequest, error)
	InsertRequest(ctx context.Context, request AllocationRequest) error
	UpdateRequest(ctx context.Context, request AllocationRequest) error
}

// AllocationStore runs allocation work against the store.
type AllocationStore interface {
	// WithinTx runs fn inside one write transaction. Returning an error rolls
	// every write back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx AllocationTx) error) error
	// View runs read-only fn outside a write transaction.
	View(ctx context.Context, fn func(ctx context.Context, tx AllocationTx) error) error
}
