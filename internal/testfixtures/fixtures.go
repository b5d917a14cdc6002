package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/persistence"
)

var (
	studentCounter uint64
	wardenCounter  uint64
	roomCounter    uint64
)

var referenceTime = time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Student fixtures -----------------------------

// StudentFixture represents a deterministic resident that can be materialised
// for application or persistence tests.
type StudentFixture struct {
	ID           string
	RollNumber   string
	FullName     string
	Department   string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// StudentOption configures the generated student fixture.
type StudentOption func(*StudentFixture)

// NewStudentFixture returns a deterministic student fixture with optional overrides.
func NewStudentFixture(opts ...StudentOption) StudentFixture {
	idx := atomic.AddUint64(&studentCounter, 1)
	id := fmt.Sprintf("student-%03d", idx)
	fixture := StudentFixture{
		ID:           id,
		RollNumber:   fmt.Sprintf("PH-%03d", idx),
		FullName:     fmt.Sprintf("Student %03d", idx),
		Department:   "Physics",
		Email:        fmt.Sprintf("%s@hall.example.edu", id),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithStudentID overrides the student identifier. The email follows the ID
// unless set explicitly afterwards.
func WithStudentID(id string) StudentOption {
	return func(f *StudentFixture) {
		f.ID = id
		f.Email = fmt.Sprintf("%s@hall.example.edu", id)
	}
}

// WithRollNumber overrides the roll number.
func WithRollNumber(rollNumber string) StudentOption {
	return func(f *StudentFixture) {
		f.RollNumber = rollNumber
	}
}

// WithStudentName overrides the full name.
func WithStudentName(name string) StudentOption {
	return func(f *StudentFixture) {
		f.FullName = name
	}
}

// WithStudentEmail overrides the login email.
func WithStudentEmail(email string) StudentOption {
	return func(f *StudentFixture) {
		f.Email = email
	}
}

// WithStudentPasswordHash overrides the stored password hash.
func WithStudentPasswordHash(hash string) StudentOption {
	return func(f *StudentFixture) {
		f.PasswordHash = hash
	}
}

// Persistence converts the fixture into the account and profile rows.
func (f StudentFixture) Persistence() (persistence.User, persistence.Student) {
	user := persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.FullName,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
	student := persistence.Student{
		ID:         f.ID,
		RollNumber: f.RollNumber,
		FullName:   f.FullName,
		Department: f.Department,
		Email:      f.Email,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.CreatedAt,
	}
	return user, student
}

// Application converts the fixture into an application student.
func (f StudentFixture) Application() application.Student {
	return application.Student{
		ID:         f.ID,
		RollNumber: f.RollNumber,
		FullName:   f.FullName,
		Department: f.Department,
		Email:      f.Email,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.CreatedAt,
	}
}

// Principal returns the principal of the student acting on their own behalf.
func (f StudentFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, RollNumber: f.RollNumber}
}

// ----------------------------- Warden fixtures -----------------------------

// WardenFixture is an administrator account.
type WardenFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
}

// NewWardenFixture returns a deterministic administrator.
func NewWardenFixture() WardenFixture {
	idx := atomic.AddUint64(&wardenCounter, 1)
	id := fmt.Sprintf("warden-%03d", idx)
	return WardenFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@hall.example.edu", id),
		DisplayName:  fmt.Sprintf("Warden %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%s", id),
	}
}

// Persistence converts the fixture into an account row.
func (f WardenFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		IsAdmin:      true,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
}

// Principal returns the administrator principal.
func (f WardenFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, IsAdmin: true}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room record.
type RoomFixture struct {
	ID        string
	Block     string
	Number    string
	Floor     int
	Capacity  int
	CreatedAt time.Time
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a room in block A with two beds unless overridden.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:        fmt.Sprintf("room-%03d", idx),
		Block:     "A",
		Number:    fmt.Sprintf("%d", 100+idx),
		Floor:     1,
		Capacity:  2,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomLabel sets the block and number, deriving the ID from them.
func WithRoomLabel(block, number string) RoomOption {
	return func(f *RoomFixture) {
		f.Block = block
		f.Number = number
		f.ID = fmt.Sprintf("room-%s%s", block, number)
	}
}

// WithRoomID overrides the room identifier.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomCapacity overrides the capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(f *RoomFixture) {
		f.Capacity = capacity
	}
}

// WithRoomFloor overrides the floor.
func WithRoomFloor(floor int) RoomOption {
	return func(f *RoomFixture) {
		f.Floor = floor
	}
}

// Persistence converts the fixture into a persistence room.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:        f.ID,
		Block:     f.Block,
		Number:    f.Number,
		Floor:     f.Floor,
		Capacity:  f.Capacity,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Application converts the fixture into an application room.
func (f RoomFixture) Application() application.Room {
	return application.Room{
		ID:        f.ID,
		Block:     f.Block,
		Number:    f.Number,
		Floor:     f.Floor,
		Capacity:  f.Capacity,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Input converts the fixture into room creation input.
func (f RoomFixture) Input() application.RoomInput {
	return application.RoomInput{Block: f.Block, Number: f.Number, Floor: f.Floor, Capacity: f.Capacity}
}

// ----------------------------- Notifications -----------------------------

// RecordingNotifier captures notifications. When Err is set every delivery
// is recorded and then fails with it.
type RecordingNotifier struct {
	Err error

	mu   sync.Mutex
	sent []application.Notification
}

// Notify records n.
func (r *RecordingNotifier) Notify(ctx context.Context, n application.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	return r.Err
}

// Notifications returns a copy of everything recorded so far.
func (r *RecordingNotifier) Notifications() []application.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]application.Notification(nil), r.sent...)
}

// ForStudent returns the kinds sent to one student, in arrival order.
func (r *RecordingNotifier) ForStudent(studentID string) []application.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []application.NotificationKind
	for _, n := range r.sent {
		if n.StudentID == studentID {
			kinds = append(kinds, n.Kind)
		}
	}
	return kinds
}

// Reset forgets recorded notifications.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
