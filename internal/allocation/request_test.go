package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openParams(id string, at time.Time) OpenParams {
	return OpenParams{ID: id, StudentID: "S1", Block: "A", RoomNumber: "101", Bed: 2, Notes: " near window ", At: at}
}

func TestLedgerOpen(t *testing.T) {
	ledger := NewLedger(nil)

	req, err := ledger.Open(openParams("r1", testTime))
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.True(t, req.IsActive)
	require.False(t, req.IsRoomChange)
	require.Equal(t, "near window", req.StudentNotes)
	require.Equal(t, "A", req.RequestedBlock)

	_, err = ledger.Open(openParams("r2", testTime.Add(time.Minute)))
	require.ErrorIs(t, err, ErrDuplicatePendingRequest)
	require.Len(t, ledger.Requests(), 1)
}

func TestLedgerOpenAfterDeactivation(t *testing.T) {
	first := Request{ID: "r1", StudentID: "S1", Status: StatusPending, IsActive: true, RequestedAt: testTime}
	first.Deactivate("superseded", testTime.Add(time.Hour))
	ledger := NewLedger([]Request{first})

	_, err := ledger.Open(openParams("r2", testTime.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Len(t, ledger.Active(), 1)
}

func TestRequestTransition(t *testing.T) {
	t.Run("pending to approved", func(t *testing.T) {
		req := Request{ID: "r1", Status: StatusPending, IsActive: true, RequestedAt: testTime}
		require.NoError(t, req.Transition(StatusApproved, "admin", "ok", testTime.Add(time.Hour)))
		require.Equal(t, StatusApproved, req.Status)
		require.Equal(t, "admin", req.ActedBy)
		require.Equal(t, "ok", req.AdminNotes)
		require.NotNil(t, req.ActionAt)
	})

	t.Run("terminal states do not move", func(t *testing.T) {
		for _, status := range []Status{StatusApproved, StatusRejected, StatusCancelled} {
			req := Request{Status: status, IsActive: true}
			require.ErrorIs(t, req.Transition(StatusRejected, "admin", "", testTime), ErrInvalidStatus)
		}
	})

	t.Run("inactive pending does not move", func(t *testing.T) {
		req := Request{Status: StatusPending, IsActive: false}
		require.ErrorIs(t, req.Transition(StatusApproved, "admin", "", testTime), ErrInvalidStatus)
	})

	t.Run("pending is not a target", func(t *testing.T) {
		req := Request{Status: StatusPending, IsActive: true}
		require.ErrorIs(t, req.Transition(StatusPending, "admin", "", testTime), ErrInvalidStatus)
	})
}

func TestRequestRepoint(t *testing.T) {
	req := Request{
		ID: "r1", StudentID: "S1", Block: "A", RoomNumber: "101", Bed: 2,
		RequestedBlock: "A", RequestedRoomNumber: "101", RequestedBed: 2,
		Status: StatusPending, IsActive: true, RequestedAt: testTime,
	}
	require.NoError(t, req.Repoint("B", "202", 1, "admin", "moved", testTime.Add(time.Hour)))
	require.Equal(t, StatusApproved, req.Status)
	require.Equal(t, "B", req.Block)
	require.Equal(t, "A", req.RequestedBlock)
	require.True(t, req.DiffersFromAsk())

	require.NoError(t, req.Repoint("B", "202", 3, "admin", "", testTime.Add(2*time.Hour)), "approved requests can be re-pointed")
	require.Equal(t, 3, req.Bed)

	req.Deactivate("deallocated", testTime.Add(3*time.Hour))
	require.ErrorIs(t, req.Repoint("A", "101", 2, "admin", "", testTime), ErrInvalidStatus)
}

func TestRequestDeactivateKeepsAuditTrail(t *testing.T) {
	req := Request{Status: StatusApproved, IsActive: true}
	req.Deactivate("deallocated by admin", testTime)
	req.Deactivate("bulk cleanup", testTime.Add(time.Minute))
	require.False(t, req.IsActive)
	require.Equal(t, StatusApproved, req.Status)
	require.Contains(t, req.AuditNotes, "deallocated by admin")
	require.Contains(t, req.AuditNotes, "\n[2024-08-01T09:01:00Z] bulk cleanup")
}

func TestEditPending(t *testing.T) {
	t.Run("overwrites ask and bumps time", func(t *testing.T) {
		req := Request{ID: "r1", StudentID: "S1", Block: "A", RoomNumber: "101", Bed: 2, Status: StatusPending, IsActive: true, RequestedAt: testTime}
		later := testTime.Add(time.Hour)
		require.NoError(t, EditPending(&req, "S1", "B", "201", 4, "quiet", later))
		require.Equal(t, "B", req.Block)
		require.Equal(t, "201", req.RequestedRoomNumber)
		require.Equal(t, 4, req.RequestedBed)
		require.Equal(t, later, req.RequestedAt)
	})

	t.Run("other student is unauthorized", func(t *testing.T) {
		req := Request{StudentID: "S1", Status: StatusPending, IsActive: true}
		require.ErrorIs(t, EditPending(&req, "S2", "A", "101", 1, "", testTime), ErrUnauthorized)
	})

	t.Run("non pending is not found", func(t *testing.T) {
		req := Request{StudentID: "S1", Status: StatusApproved, IsActive: true}
		require.ErrorIs(t, EditPending(&req, "S1", "A", "101", 1, "", testTime), ErrRequestNotFound)
		require.ErrorIs(t, EditPending(nil, "S1", "A", "101", 1, "", testTime), ErrNotFound)
	})
}
