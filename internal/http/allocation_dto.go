package http

import (
	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/application"
)

// placementRequest is the body of apply, room change, edit and allocate.
// StudentID lets an administrator act for a student; students omit it.
type placementRequest struct {
	StudentID  string `json:"student_id"`
	Block      string `json:"block" validate:"required"`
	RoomNumber string `json:"room_number" validate:"required"`
	Bed        int    `json:"bed" validate:"required,min=1"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type directRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	Block      string `json:"block" validate:"required"`
	RoomNumber string `json:"room_number" validate:"required"`
	Bed        int    `json:"bed" validate:"required,min=1"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type bulkDeallocateRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	Reason     string   `json:"reason" validate:"max=1000"`
}

type requestDTO struct {
	ID                  string `json:"id"`
	StudentID           string `json:"student_id"`
	Block               string `json:"block"`
	RoomNumber          string `json:"room_number"`
	Bed                 int    `json:"bed"`
	RequestedBlock      string `json:"requested_block,omitempty"`
	RequestedRoomNumber string `json:"requested_room_number,omitempty"`
	RequestedBed        int    `json:"requested_bed,omitempty"`
	Status              string `json:"status"`
	IsActive            bool   `json:"is_active"`
	IsRoomChange        bool   `json:"is_room_change"`
	IsAdminAction       bool   `json:"is_admin_action"`
	RequestedAt         string `json:"requested_at"`
	ActionAt            string `json:"action_at,omitempty"`
	ActedBy             string `json:"acted_by,omitempty"`
	StudentNotes        string `json:"student_notes,omitempty"`
	AdminNotes          string `json:"admin_notes,omitempty"`
}

type requestResponse struct {
	Request requestDTO `json:"request"`
}

type requestListResponse struct {
	Requests []requestDTO `json:"requests"`
}

type placementDTO struct {
	Block      string `json:"block"`
	RoomNumber string `json:"room_number"`
	Bed        int    `json:"bed"`
}

type allocationResponse struct {
	RequestID          string       `json:"request_id"`
	StudentID          string       `json:"student_id"`
	Allocated          placementDTO `json:"allocated"`
	Requested          placementDTO `json:"requested"`
	DiffersFromRequest bool         `json:"differs_from_request"`
}

type residencyDTO struct {
	Block      string `json:"block"`
	RoomNumber string `json:"room_number"`
	Bed        int    `json:"bed"`
	AssignedAt string `json:"assigned_at"`
}

type statusResponse struct {
	StudentID         string        `json:"student_id"`
	Status            string        `json:"status"`
	CurrentAllocation *residencyDTO `json:"current_allocation"`
	ApprovedRequest   *requestDTO   `json:"approved_request,omitempty"`
	PendingRequest    *requestDTO   `json:"pending_request,omitempty"`
	RejectedRequest   *requestDTO   `json:"rejected_request,omitempty"`
	CancelledRequest  *requestDTO   `json:"cancelled_request,omitempty"`
}

type bulkDeallocateResponse struct {
	DeallocatedCount int      `json:"deallocated_count"`
	FailedStudents   []string `json:"failed_students"`
	AffectedRooms    []string `json:"affected_rooms"`
}

type driftDTO struct {
	RoomID     string `json:"room_id"`
	Block      string `json:"block"`
	RoomNumber string `json:"room_number"`
	Cached     int    `json:"cached"`
	Actual     int    `json:"actual"`
}

type reconcileResponse struct {
	RoomsChecked int        `json:"rooms_checked"`
	Drifted      []driftDTO `json:"drifted"`
}

func toRequestDTO(r allocation.Request) requestDTO {
	dto := requestDTO{
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
		RequestedAt:         formatTimestamp(r.RequestedAt),
		ActedBy:             r.ActedBy,
		StudentNotes:        r.StudentNotes,
		AdminNotes:          r.AdminNotes,
	}
	if r.ActionAt != nil {
		dto.ActionAt = formatTimestamp(*r.ActionAt)
	}
	return dto
}

func optionalRequestDTO(r *allocation.Request) *requestDTO {
	if r == nil {
		return nil
	}
	dto := toRequestDTO(*r)
	return &dto
}

func toAllocationDTO(result application.AllocationResult) allocationResponse {
	return allocationResponse{
		RequestID:          result.RequestID,
		StudentID:          result.StudentID,
		Allocated:          placementDTO(result.Allocated),
		Requested:          placementDTO(result.Requested),
		DiffersFromRequest: result.DiffersFromRequest,
	}
}

func toStatusDTO(status application.StudentAllocationStatus) statusResponse {
	resp := statusResponse{
		StudentID:        status.StudentID,
		Status:           string(status.State),
		ApprovedRequest:  optionalRequestDTO(status.ApprovedRequest),
		PendingRequest:   optionalRequestDTO(status.PendingRequest),
		RejectedRequest:  optionalRequestDTO(status.RejectedRequest),
		CancelledRequest: optionalRequestDTO(status.CancelledRequest),
	}
	if status.CurrentAllocation != nil {
		resp.CurrentAllocation = &residencyDTO{
			Block:      status.CurrentAllocation.Block,
			RoomNumber: status.CurrentAllocation.RoomNumber,
			Bed:        status.CurrentAllocation.Bed,
			AssignedAt: formatTimestamp(status.CurrentAllocation.AssignedAt),
		}
	}
	return resp
}
