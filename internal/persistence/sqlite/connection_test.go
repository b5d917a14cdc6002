package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/example/hall-allocation/internal/persistence"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	storage := NewStorageFromDB(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	storage.retry = NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}, storage.logger)
	return storage, mock
}

func TestErrorMapperMapError(t *testing.T) {
	mapper := NewErrorMapper()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "bed primary key", err: errors.New("UNIQUE constraint failed: bed_assignments.room_id, bed_assignments.bed_number"), want: persistence.ErrBedTaken},
		{name: "student unique", err: errors.New("UNIQUE constraint failed: bed_assignments.student_id"), want: persistence.ErrStudentAssigned},
		{name: "pending index", err: errors.New("UNIQUE constraint failed: allocation_requests.student_id"), want: persistence.ErrPendingRequestExists},
		{name: "other unique", err: errors.New("UNIQUE constraint failed: users.email"), want: persistence.ErrDuplicate},
		{name: "check", err: errors.New("CHECK constraint failed: capacity BETWEEN 1 AND 6"), want: persistence.ErrConstraintViolation},
		{name: "foreign key", err: errors.New("FOREIGN KEY constraint failed"), want: persistence.ErrConstraintViolation},
		{name: "locked", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: persistence.ErrBusy},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, mapper.MapError(tc.err), tc.want)
		})
	}

	require.NoError(t, mapper.MapError(nil))
	require.ErrorIs(t, mapper.MapError(errors.New("UNIQUE constraint failed: users.email")), persistence.ErrDuplicate)
	require.NotErrorIs(t, mapper.MapError(errors.New("UNIQUE constraint failed: users.email")), persistence.ErrBedTaken)
}

func TestWithinTxRollsBackMappedConstraintError(t *testing.T) {
	storage, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bed_assignments").
		WithArgs("room-a101", 1, "S2", sqlmock.AnyArg()).
		WillReturnError(errors.New("UNIQUE constraint failed: bed_assignments.room_id, bed_assignments.bed_number"))
	mock.ExpectRollback()

	err := storage.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		return tx.InsertAssignment(ctx, persistence.BedAssignment{RoomID: "room-a101", Bed: 1, StudentID: "S2", AssignedAt: baseTime})
	})
	require.ErrorIs(t, err, persistence.ErrBedTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesBusyDatabase(t *testing.T) {
	storage, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rooms SET capacity").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rooms SET capacity").
		WithArgs(4, sqlmock.AnyArg(), "room-a101").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := storage.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		attempts++
		return tx.UpdateRoomCapacity(ctx, "room-a101", 4, baseTime)
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxGivesUpAfterRetryBudget(t *testing.T) {
	storage, mock := newMockStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
	}

	err := storage.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	require.ErrorIs(t, err, persistence.ErrBusy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxMissingRoomIsNotFound(t *testing.T) {
	storage, mock := newMockStorage(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rooms SET capacity").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := storage.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		return tx.UpdateRoomCapacity(ctx, "missing", 4, baseTime)
	})
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestViewReadsInsideOneTransaction(t *testing.T) {
	storage, mock := newMockStorage(t)
	ctx := context.Background()

	columns := []string{"id", "block", "room_number", "floor", "capacity", "current_occupancy", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rooms ORDER BY").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery("FROM bed_assignments").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := storage.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		if _, err := tx.ListRooms(ctx); err != nil {
			return err
		}
		_, err := tx.ListAssignmentsForRoom(ctx, "room-a101")
		return err
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM rooms ORDER BY").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectCommit()

	err = storage.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		rooms, err := tx.ListRooms(ctx)
		require.Empty(t, rooms)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryHelperHonoursContext(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := helper.WithRetry(ctx, func() error { return persistence.ErrBusy })
	require.ErrorIs(t, err, context.Canceled)
}
