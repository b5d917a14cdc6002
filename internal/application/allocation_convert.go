package application

import (
	"context"
	"errors"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/persistence"
)

// mapStoreError translates persistence failures raised inside an allocation
// transaction into allocation errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrBedTaken):
		return allocation.ErrBedOccupied
	case errors.Is(err, persistence.ErrStudentAssigned):
		return allocation.ErrAlreadyAllocated
	case errors.Is(err, persistence.ErrPendingRequestExists):
		return allocation.ErrDuplicatePendingRequest
	}
	return err
}

func notFoundAs(err, target error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return target
	}
	return err
}

func toDomainRequest(r persistence.AllocationRequest) allocation.Request {
	return allocation.Request{
		ID:                  r.ID,
		StudentID:           r.StudentID,
		Block:               r.Block,
		RoomNumber:          r.RoomNumber,
		Bed:                 r.Bed,
		RequestedBlock:      r.RequestedBlock,
		RequestedRoomNumber: r.RequestedRoomNumber,
		RequestedBed:        r.RequestedBed,
		Status:              allocation.Status(r.Status),
		IsActive:            r.IsActive,
		IsRoomChange:        r.IsRoomChange,
		IsAdminAction:       r.IsAdminAction,
		RequestedAt:         r.RequestedAt,
		ActionAt:            r.ActionAt,
		ActedBy:             r.ActedBy,
		StudentNotes:        r.StudentNotes,
		AdminNotes:          r.AdminNotes,
		AuditNotes:          r.AuditNotes,
	}
}

func toPersistenceRequest(r allocation.Request) persistence.AllocationRequest {
	return persistence.AllocationRequest{
		ID:                  r.ID,
		StudentID:           r.StudentID,
		Block:               r.Block,
		RoomNumber:          r.RoomNumber,
		Bed:                 r.Bed,
		RequestedBlock:      r.RequestedBlock,
		RequestedRoomNumber: r.RequestedRoomNumber,
		RequestedBed:        r.RequestedBed,
		Status:              string(r.Status),
		IsActive:            r.IsActive,
		IsRoomChange:        r.IsRoomChange,
		IsAdminAction:       r.IsAdminAction,
		RequestedAt:         r.RequestedAt,
		ActionAt:            r.ActionAt,
		ActedBy:             r.ActedBy,
		StudentNotes:        r.StudentNotes,
		AdminNotes:          r.AdminNotes,
		AuditNotes:          r.AuditNotes,
	}
}

func toDomainRequests(models []persistence.AllocationRequest) []allocation.Request {
	if len(models) == 0 {
		return nil
	}
	out := make([]allocation.Request, 0, len(models))
	for _, model := range models {
		out = append(out, toDomainRequest(model))
	}
	return out
}

func toResidency(a persistence.BedAssignment) allocation.Residency {
	return allocation.Residency{
		RoomID:     a.RoomID,
		Block:      a.Block,
		RoomNumber: a.RoomNumber,
		Bed:        a.Bed,
		AssignedAt: a.AssignedAt,
	}
}

func toApplicationRoom(r persistence.Room) Room {
	return Room{
		ID:               r.ID,
		Block:            r.Block,
		Number:           r.Number,
		Floor:            r.Floor,
		Capacity:         r.Capacity,
		CurrentOccupancy: r.CurrentOccupancy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// loadRoom builds the inventory view of a room from its bed assignments.
func loadRoom(ctx context.Context, tx persistence.AllocationTx, room persistence.Room) (allocation.Room, []persistence.BedAssignment, error) {
	assignments, err := tx.ListAssignmentsForRoom(ctx, room.ID)
	if err != nil {
		return allocation.Room{}, nil, err
	}
	inventory := allocation.Room{
		ID:       room.ID,
		Block:    room.Block,
		Number:   room.Number,
		Floor:    room.Floor,
		Capacity: room.Capacity,
	}
	for _, a := range assignments {
		inventory.Occupants = append(inventory.Occupants, allocation.Occupant{Bed: a.Bed, StudentID: a.StudentID, AssignedAt: a.AssignedAt})
	}
	return inventory, assignments, nil
}

// findRoom resolves a room label inside a transaction.
func findRoom(ctx context.Context, tx persistence.AllocationTx, block, number string) (persistence.Room, error) {
	room, err := tx.GetRoomByLabel(ctx, allocation.NormalizeBlock(block), allocation.NormalizeRoomNumber(number))
	if err != nil {
		return persistence.Room{}, notFoundAs(err, allocation.ErrRoomNotFound)
	}
	return room, nil
}

// currentResidency returns the student's placement, or the zero Residency
// when the student has no bed.
func currentResidency(ctx context.Context, tx persistence.AllocationTx, studentID string) (allocation.Residency, error) {
	assignment, err := tx.GetAssignmentForStudent(ctx, studentID)
	if errors.Is(err, persistence.ErrNotFound) {
		return allocation.Residency{}, nil
	}
	if err != nil {
		return allocation.Residency{}, err
	}
	return toResidency(assignment), nil
}

func loadLedger(ctx context.Context, tx persistence.AllocationTx, studentID string) (*allocation.Ledger, error) {
	models, err := tx.ListRequestsForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return allocation.NewLedger(toDomainRequests(models)), nil
}

func requireStudent(ctx context.Context, tx persistence.AllocationTx, studentID string) (persistence.Student, error) {
	student, err := tx.GetStudent(ctx, studentID)
	if err != nil {
		return persistence.Student{}, notFoundAs(err, allocation.ErrStudentNotFound)
	}
	return student, nil
}
