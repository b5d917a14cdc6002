package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/hall-allocation/internal/persistence"
	"github.com/example/hall-allocation/internal/persistence/sqlite"
	"github.com/example/hall-allocation/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database for integration-style tests.
type SQLiteHarness struct {
	Storage    *sqlite.Storage
	Users      persistence.UserRepository
	Students   persistence.StudentRepository
	Rooms      persistence.RoomRepository
	Sessions   persistence.SessionRepository
	Allocation persistence.AllocationStore

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Close is registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "hall.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := sqlite.OpenWithConfig(context.Background(), migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:    storage,
		Users:      storage,
		Students:   storage,
		Rooms:      storage,
		Sessions:   storage,
		Allocation: storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedRooms inserts empty rooms.
func (h *SQLiteHarness) SeedRooms(tb testing.TB, rooms ...RoomFixture) {
	tb.Helper()
	for _, room := range rooms {
		if err := h.Rooms.CreateRoom(context.Background(), room.Persistence()); err != nil {
			tb.Fatalf("failed to seed room %s: %v", room.ID, err)
		}
	}
}

// SeedStudents inserts student accounts and profiles.
func (h *SQLiteHarness) SeedStudents(tb testing.TB, students ...StudentFixture) {
	tb.Helper()
	for _, student := range students {
		user, profile := student.Persistence()
		if err := h.Students.CreateStudent(context.Background(), user, profile); err != nil {
			tb.Fatalf("failed to seed student %s: %v", student.ID, err)
		}
	}
}

// SeedWardens inserts administrator accounts.
func (h *SQLiteHarness) SeedWardens(tb testing.TB, wardens ...WardenFixture) {
	tb.Helper()
	for _, warden := range wardens {
		if err := h.Users.CreateUser(context.Background(), warden.Persistence()); err != nil {
			tb.Fatalf("failed to seed warden %s: %v", warden.ID, err)
		}
	}
}

// Room reads a room row, including its cached occupancy.
func (h *SQLiteHarness) Room(tb testing.TB, id string) persistence.Room {
	tb.Helper()
	room, err := h.Rooms.GetRoom(context.Background(), id)
	if err != nil {
		tb.Fatalf("failed to read room %s: %v", id, err)
	}
	return room
}

// Requests returns every ledger row of a student, oldest first.
func (h *SQLiteHarness) Requests(tb testing.TB, studentID string) []persistence.AllocationRequest {
	tb.Helper()
	var out []persistence.AllocationRequest
	err := h.Allocation.View(context.Background(), func(ctx context.Context, tx persistence.AllocationTx) error {
		var err error
		out, err = tx.ListRequestsForStudent(ctx, studentID)
		return err
	})
	if err != nil {
		tb.Fatalf("failed to list requests for %s: %v", studentID, err)
	}
	return out
}

// CheckOccupancy verifies the stored room and residency facts agree: every
// cached occupancy equals its assignment count, no bed exceeds capacity and
// no student holds two beds.
func (h *SQLiteHarness) CheckOccupancy(tb testing.TB) {
	tb.Helper()
	err := h.Allocation.View(context.Background(), func(ctx context.Context, tx persistence.AllocationTx) error {
		rooms, err := tx.ListRooms(ctx)
		if err != nil {
			return err
		}
		holder := make(map[string]string)
		for _, room := range rooms {
			assignments, err := tx.ListAssignmentsForRoom(ctx, room.ID)
			if err != nil {
				return err
			}
			if room.CurrentOccupancy != len(assignments) {
				tb.Errorf("room %s: cached occupancy %d, assignments %d", room.ID, room.CurrentOccupancy, len(assignments))
			}
			if len(assignments) > room.Capacity {
				tb.Errorf("room %s: %d occupants exceed capacity %d", room.ID, len(assignments), room.Capacity)
			}
			for _, a := range assignments {
				if a.Bed < 1 || a.Bed > room.Capacity {
					tb.Errorf("room %s: bed %d outside 1..%d", room.ID, a.Bed, room.Capacity)
				}
				if other, ok := holder[a.StudentID]; ok {
					tb.Errorf("student %s holds beds in %s and %s", a.StudentID, other, room.ID)
				}
				holder[a.StudentID] = room.ID
			}
		}
		return nil
	})
	if err != nil {
		tb.Fatalf("failed to check occupancy: %v", err)
	}
}
