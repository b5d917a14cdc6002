package application

import (
	"time"

	"github.com/example/hall-allocation/internal/allocation"
)

// Principal represents the authenticated user invoking a service method.
// Wardens are administrators; students carry their roll number.
type Principal struct {
	UserID     string
	IsAdmin    bool
	RollNumber string
}

// ----------------------------- Rooms -----------------------------

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Block    string
	Number   string
	Floor    int
	Capacity int
}

// Room is the inventory entry exposed by the room service.
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

// AvailableBeds returns the number of unoccupied beds.
func (r Room) AvailableBeds() int {
	if r.CurrentOccupancy >= r.Capacity {
		return 0
	}
	return r.Capacity - r.CurrentOccupancy
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// ----------------------------- Students -----------------------------

// StudentInput captures the attributes of a newly registered resident.
type StudentInput struct {
	RollNumber string
	FullName   string
	Department string
	Email      string
	Password   string
}

// Student is a registered resident. Placement is reported by the allocation service.
type Student struct {
	ID         string
	RollNumber string
	FullName   string
	Department string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RegisterStudentParams wraps the data required to register a student.
type RegisterStudentParams struct {
	Principal Principal
	Input     StudentInput
}

// ----------------------------- Accounts & sessions -----------------------------

// User is a hall portal account. Wardens are administrators.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
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

// Role is the part an account plays in the hall.
type Role string

const (
	RoleWarden  Role = "warden"
	RoleStudent Role = "student"
)

// Account is the identity behind a session: a warden, or a student with a
// residency profile.
type Account struct {
	UserID      string
	Email       string
	DisplayName string
	Role        Role
	RollNumber  string
	Department  string
}

// Principal returns the caller identity services authorize against.
func (a Account) Principal() Principal {
	return Principal{UserID: a.UserID, IsAdmin: a.Role == RoleWarden, RollNumber: a.RollNumber}
}

// AuthenticateParams carries a login attempt. Login is an email address or a
// student roll number.
type AuthenticateParams struct {
	Login       string
	Password    string
	Fingerprint string
}

// AuthenticateResult is the account and the session issued to it.
type AuthenticateResult struct {
	Account Account
	Session Session
}

// RefreshSessionParams captures the data required to refresh an existing session.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult captures the outcome of rotating a session token.
type RefreshSessionResult struct {
	Session Session
}

// ----------------------------- Allocation -----------------------------

// Placement names a bed.
type Placement struct {
	Block      string
	RoomNumber string
	Bed        int
}

// ApplyParams carries a student's ask for a bed, used both for first
// applications and for room changes.
type ApplyParams struct {
	Principal  Principal
	StudentID  string
	Block      string
	RoomNumber string
	Bed        int
	Notes      string
}

// EditRequestParams overwrites the ask of a pending request.
type EditRequestParams struct {
	Principal  Principal
	RequestID  string
	StudentID  string
	Block      string
	RoomNumber string
	Bed        int
	Notes      string
}

// CancelRequestParams withdraws a pending request.
type CancelRequestParams struct {
	Principal Principal
	RequestID string
	Notes     string
}

// Decision is an administrator's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DecideParams carries an approve or reject verdict.
type DecideParams struct {
	Principal Principal
	RequestID string
	Decision  Decision
	Notes     string
}

// DecisionResult reports the request after the verdict.
type DecisionResult struct {
	Request allocation.Request
	Status  allocation.Status
}

// AdminAllocateParams places the student of an existing request on an
// administrator-chosen bed.
type AdminAllocateParams struct {
	Principal  Principal
	RequestID  string
	Block      string
	RoomNumber string
	Bed        int
	Notes      string
}

// DirectAllocateParams places a student without a prior request.
type DirectAllocateParams struct {
	Principal  Principal
	StudentID  string
	Block      string
	RoomNumber string
	Bed        int
	Notes      string
}

// AllocationResult reports where a student was placed and what they asked for.
type AllocationResult struct {
	RequestID          string
	StudentID          string
	Allocated          Placement
	Requested          Placement
	DiffersFromRequest bool
}

// DeallocateParams removes a single student from their bed.
type DeallocateParams struct {
	Principal Principal
	StudentID string
	Reason    string
}

// BulkDeallocateParams removes several students in one batch.
type BulkDeallocateParams struct {
	Principal  Principal
	StudentIDs []string
	Reason     string
}

// BulkFailure explains why one student of a batch was skipped.
type BulkFailure struct {
	StudentID string
	Reason    string
}

// BulkDeallocateResult reports the outcome of a batch. FailedStudents renders
// each failure as "<id> (<reason>)".
type BulkDeallocateResult struct {
	DeallocatedCount int
	FailedStudents   []string
	Failures         []BulkFailure
	AffectedRooms    []string
}

// ResizeCapacityParams changes the number of beds in a room.
type ResizeCapacityParams struct {
	Principal  Principal
	Block      string
	RoomNumber string
	Capacity   int
}

// ResizeResult reports a capacity change.
type ResizeResult struct {
	RoomID      string
	Block       string
	RoomNumber  string
	OldCapacity int
	NewCapacity int
}

// StatusParams selects the student whose allocation status is read. An empty
// StudentID means the principal.
type StatusParams struct {
	Principal Principal
	StudentID string
}

// StudentAllocationStatus is the derived allocation state of one student.
type StudentAllocationStatus struct {
	StudentID         string
	State             allocation.State
	CurrentAllocation *allocation.Residency
	ApprovedRequest   *allocation.Request
	PendingRequest    *allocation.Request
	RejectedRequest   *allocation.Request
	CancelledRequest  *allocation.Request
}

// RoomRef addresses a room by its label.
type RoomRef struct {
	Principal  Principal
	Block      string
	RoomNumber string
}

// Roommate is an occupant as seen in a room layout.
type Roommate struct {
	StudentID  string
	FullName   string
	RollNumber string
	Bed        int
	AssignedAt time.Time
}

// RoomLayout is the occupancy view of a room.
type RoomLayout struct {
	RoomID           string
	Block            string
	RoomNumber       string
	Floor            int
	Capacity         int
	CurrentOccupancy int
	AvailableBeds    int
	AllocatedBeds    []int
	Roommates        []Roommate
}

// BedStatus describes a single bed of a room.
type BedStatus struct {
	Bed         int
	Occupied    bool
	StudentID   string
	StudentName string
	RollNumber  string
}

// OccupancyDrift records a room whose cached occupancy disagreed with its assignments.
type OccupancyDrift struct {
	RoomID     string
	Block      string
	RoomNumber string
	Cached     int
	Actual     int
}

// ReconcileReport summarises an occupancy reconciliation pass.
type ReconcileReport struct {
	RoomsChecked int
	Drifted      []OccupancyDrift
}
