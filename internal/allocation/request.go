package allocation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the stored lifecycle state of an allocation request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Request is a single ledger entry: a student's ask, or an admin's action on
// behalf of a student. Block/RoomNumber/Bed hold what is (or would be)
// allocated; the Requested* fields keep the original ask for auditing.
type Request struct {
	ID                  string
	StudentID           string
	Block               string
	RoomNumber          string
	Bed                 int
	RequestedBlock      string
	RequestedRoomNumber string
	RequestedBed        int
	Status              Status
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

// DiffersFromAsk reports whether the allocated placement differs from the original ask.
func (r Request) DiffersFromAsk() bool {
	if r.RequestedBlock == "" && r.RequestedRoomNumber == "" && r.RequestedBed == 0 {
		return false
	}
	return !SameRoom(r.Block, r.RoomNumber, r.RequestedBlock, r.RequestedRoomNumber) || r.Bed != r.RequestedBed
}

// LastActivity returns the most recent instant the request changed state.
func (r Request) LastActivity() time.Time {
	if r.ActionAt != nil && r.ActionAt.After(r.RequestedAt) {
		return *r.ActionAt
	}
	return r.RequestedAt
}

// Transition moves a pending, active request to a terminal status.
func (r *Request) Transition(status Status, actor, notes string, at time.Time) error {
	if !r.IsActive || r.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, r.Status, status)
	}
	switch status {
	case StatusApproved, StatusRejected, StatusCancelled:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, r.Status, status)
	}
	r.Status = status
	r.ActedBy = actor
	if strings.TrimSpace(notes) != "" {
		if status == StatusCancelled {
			r.StudentNotes = strings.TrimSpace(notes)
		} else {
			r.AdminNotes = strings.TrimSpace(notes)
		}
	}
	stamp := at
	r.ActionAt = &stamp
	return nil
}

// Repoint records an admin-chosen placement. A pending request becomes
// approved; an approved one keeps its status and only changes placement.
func (r *Request) Repoint(block, number string, bed int, actor, notes string, at time.Time) error {
	if !r.IsActive || (r.Status != StatusPending && r.Status != StatusApproved) {
		return fmt.Errorf("%w: cannot allocate a %s request", ErrInvalidStatus, r.Status)
	}
	if r.RequestedBlock == "" {
		r.RequestedBlock, r.RequestedRoomNumber, r.RequestedBed = r.Block, r.RoomNumber, r.Bed
	}
	r.Block, r.RoomNumber, r.Bed = block, number, bed
	r.Status = StatusApproved
	r.ActedBy = actor
	if strings.TrimSpace(notes) != "" {
		r.AdminNotes = strings.TrimSpace(notes)
	}
	stamp := at
	r.ActionAt = &stamp
	return nil
}

// Deactivate retires the request from current-status queries and appends an
// audit note. History is kept.
func (r *Request) Deactivate(note string, at time.Time) {
	r.IsActive = false
	r.appendAudit(note, at)
}

func (r *Request) appendAudit(note string, at time.Time) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
	if r.AuditNotes == "" {
		r.AuditNotes = entry
		return
	}
	r.AuditNotes += "\n" + entry
}

// OpenParams captures a new ledger entry.
type OpenParams struct {
	ID           string
	StudentID    string
	Block        string
	RoomNumber   string
	Bed          int
	Notes        string
	IsRoomChange bool
	At           time.Time
}

// Ledger is the set of requests recorded for one student.
type Ledger struct {
	requests []Request
}

// NewLedger wraps the requests of a single student.
func NewLedger(requests []Request) *Ledger {
	cloned := append([]Request(nil), requests...)
	sort.SliceStable(cloned, func(i, j int) bool {
		return cloned[i].RequestedAt.Before(cloned[j].RequestedAt)
	})
	return &Ledger{requests: cloned}
}

// Requests returns the ledger entries oldest first.
func (l *Ledger) Requests() []Request {
	return append([]Request(nil), l.requests...)
}

// LatestActive returns the most recently requested active entry with status.
func (l *Ledger) LatestActive(status Status) (Request, bool) {
	for i := len(l.requests) - 1; i >= 0; i-- {
		req := l.requests[i]
		if req.IsActive && req.Status == status {
			return req, true
		}
	}
	return Request{}, false
}

// ActivePending returns the operative pending request, if any.
func (l *Ledger) ActivePending() (Request, bool) {
	return l.LatestActive(StatusPending)
}

// Active returns every active entry.
func (l *Ledger) Active() []Request {
	out := make([]Request, 0, len(l.requests))
	for _, req := range l.requests {
		if req.IsActive {
			out = append(out, req)
		}
	}
	return out
}

// Open appends a new pending request.
func (l *Ledger) Open(params OpenParams) (Request, error) {
	if _, exists := l.ActivePending(); exists {
		return Request{}, ErrDuplicatePendingRequest
	}
	req := Request{
		ID:                  params.ID,
		StudentID:           params.StudentID,
		Block:               params.Block,
		RoomNumber:          params.RoomNumber,
		Bed:                 params.Bed,
		RequestedBlock:      params.Block,
		RequestedRoomNumber: params.RoomNumber,
		RequestedBed:        params.Bed,
		Status:              StatusPending,
		IsActive:            true,
		IsRoomChange:        params.IsRoomChange,
		RequestedAt:         params.At,
		StudentNotes:        strings.TrimSpace(params.Notes),
	}
	l.requests = append(l.requests, req)
	return req, nil
}

// EditPending overwrites the ask of a pending request owned by studentID and
// moves it to the back of the queue.
func EditPending(req *Request, studentID, block, number string, bed int, notes string, at time.Time) error {
	if req == nil || !req.IsActive || req.Status != StatusPending {
		return ErrRequestNotFound
	}
	if req.StudentID != studentID {
		return ErrUnauthorized
	}
	req.Block, req.RoomNumber, req.Bed = block, number, bed
	req.RequestedBlock, req.RequestedRoomNumber, req.RequestedBed = block, number, bed
	req.StudentNotes = strings.TrimSpace(notes)
	req.RequestedAt = at
	return nil
}
