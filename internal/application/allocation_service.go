package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/persistence"
)

const defaultNotifyTimeout = 5 * time.Second

// AllocationService is the allocation engine. Every mutating operation runs
// in one store transaction over rooms, bed assignments and the request
// ledger; notifications are sent after commit and never fail the operation.
type AllocationService struct {
	store         persistence.AllocationStore
	notifier      Notifier
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
	notifyTimeout time.Duration
	maxCapacity   int

	inflight sync.WaitGroup
}

// AllocationOption tunes an AllocationService.
type AllocationOption func(*AllocationService)

// WithNotifyTimeout bounds each notification delivery.
func WithNotifyTimeout(timeout time.Duration) AllocationOption {
	return func(s *AllocationService) {
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithMaxCapacity lowers the largest capacity a room may be resized to.
// Values outside the allocation bounds are ignored.
func WithMaxCapacity(capacity int) AllocationOption {
	return func(s *AllocationService) {
		if capacity >= allocation.MinCapacity && capacity <= allocation.MaxCapacity {
			s.maxCapacity = capacity
		}
	}
}

// NewAllocationService constructs the allocation engine.
func NewAllocationService(store persistence.AllocationStore, notifier Notifier, idGenerator func() string, now func() time.Time) *AllocationService {
	return NewAllocationServiceWithLogger(store, notifier, idGenerator, now, nil)
}

// NewAllocationServiceWithLogger constructs the allocation engine with a specified logger.
func NewAllocationServiceWithLogger(store persistence.AllocationStore, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger, opts ...AllocationOption) *AllocationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	s := &AllocationService{
		store:         store,
		notifier:      notifier,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
		notifyTimeout: defaultNotifyTimeout,
		maxCapacity:   allocation.MaxCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AllocationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AllocationService", operation, attrs...)
}

// Wait blocks until every notification dispatched so far has been handled.
func (s *AllocationService) Wait() {
	if s != nil {
		s.inflight.Wait()
	}
}

func (s *AllocationService) ready() error {
	if s == nil {
		return fmt.Errorf("AllocationService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("allocation store not configured")
	}
	return nil
}

// ApplyForRoom records a student's first application for a bed. Rooms and
// residency are untouched until an administrator approves it.
func (s *AllocationService) ApplyForRoom(ctx context.Context, params ApplyParams) (request allocation.Request, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ApplyForRoom",
		"principal_id", params.Principal.UserID,
		"student_id", params.StudentID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"bed", params.Bed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to apply for room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("request_id", request.ID).InfoContext(ctx, "room application submitted")
	}()

	var studentID string
	if studentID, err = actingStudent(params.Principal, params.StudentID); err != nil {
		return
	}
	if vErr := validatePlacement(params.Block, params.RoomNumber); vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		if _, err := requireStudent(ctx, tx, studentID); err != nil {
			return err
		}
		residency, err := currentResidency(ctx, tx, studentID)
		if err != nil {
			return err
		}
		ledger, err := loadLedger(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if _, approved := ledger.LatestActive(allocation.StatusApproved); approved || residency.Allocated() {
			return allocation.ErrAlreadyAllocated
		}
		if _, pending := ledger.ActivePending(); pending {
			return allocation.ErrDuplicatePendingRequest
		}

		room, err := findRoom(ctx, tx, params.Block, params.RoomNumber)
		if err != nil {
			return err
		}
		inventory, _, err := loadRoom(ctx, tx, room)
		if err != nil {
			return err
		}
		if inventory.IsFull() {
			return allocation.ErrRoomFull
		}
		if err := inventory.CheckBed(params.Bed); err != nil {
			return err
		}

		now := s.now()
		opened, err := ledger.Open(allocation.OpenParams{
			ID:         s.idGenerator(),
			StudentID:  studentID,
			Block:      room.Block,
			RoomNumber: room.Number,
			Bed:        params.Bed,
			Notes:      params.Notes,
			At:         now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertRequest(ctx, toPersistenceRequest(opened)); err != nil {
			return err
		}
		request = opened
		outbox = append(outbox, requestNotification(NotificationRequestSubmitted, opened, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		request = allocation.Request{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// EditPendingRequest overwrites the ask of a pending request and moves it to
// the back of the queue.
func (s *AllocationService) EditPendingRequest(ctx context.Context, params EditRequestParams) (request allocation.Request, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "EditPendingRequest",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"bed", params.Bed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to edit pending request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "pending request edited")
	}()

	studentID := strings.TrimSpace(params.StudentID)
	if !params.Principal.IsAdmin {
		if studentID == "" {
			studentID = params.Principal.UserID
		}
		if studentID == "" || studentID != params.Principal.UserID {
			err = ErrUnauthorized
			return
		}
	}
	vErr := validatePlacement(params.Block, params.RoomNumber)
	if strings.TrimSpace(params.RequestID) == "" {
		vErr.add("request_id", "request id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		model, err := tx.GetRequest(ctx, params.RequestID)
		if err != nil {
			return notFoundAs(err, allocation.ErrRequestNotFound)
		}
		req := toDomainRequest(model)
		owner := studentID
		if owner == "" {
			owner = req.StudentID
		}

		now := s.now()
		if err := allocation.EditPending(&req, owner, params.Block, params.RoomNumber, params.Bed, params.Notes, now); err != nil {
			return err
		}

		room, err := findRoom(ctx, tx, params.Block, params.RoomNumber)
		if err != nil {
			return err
		}
		inventory, _, err := loadRoom(ctx, tx, room)
		if err != nil {
			return err
		}
		if req.IsRoomChange {
			residency, err := currentResidency(ctx, tx, req.StudentID)
			if err != nil {
				return err
			}
			if residency.Matches(room.Block, room.Number, params.Bed) {
				return allocation.ErrNoOpChange
			}
		} else if inventory.IsFull() {
			return allocation.ErrRoomFull
		}
		if err := inventory.CheckBed(params.Bed); err != nil {
			return err
		}

		req.Block, req.RoomNumber = room.Block, room.Number
		req.RequestedBlock, req.RequestedRoomNumber = room.Block, room.Number
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
		request = req
		outbox = append(outbox, requestNotification(NotificationRequestUpdated, req, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		request = allocation.Request{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// RequestRoomChange records a student's ask to move from their current bed.
func (s *AllocationService) RequestRoomChange(ctx context.Context, params ApplyParams) (request allocation.Request, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RequestRoomChange",
		"principal_id", params.Principal.UserID,
		"student_id", params.StudentID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"bed", params.Bed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to request room change", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("request_id", request.ID).InfoContext(ctx, "room change requested")
	}()

	var studentID string
	if studentID, err = actingStudent(params.Principal, params.StudentID); err != nil {
		return
	}
	if vErr := validatePlacement(params.Block, params.RoomNumber); vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		if _, err := requireStudent(ctx, tx, studentID); err != nil {
			return err
		}
		residency, err := currentResidency(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !residency.Allocated() {
			return allocation.ErrNoCurrentAllocation
		}
		if residency.Matches(params.Block, params.RoomNumber, params.Bed) {
			return allocation.ErrNoOpChange
		}
		ledger, err := loadLedger(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if _, pending := ledger.ActivePending(); pending {
			return allocation.ErrDuplicatePendingRequest
		}

		room, err := findRoom(ctx, tx, params.Block, params.RoomNumber)
		if err != nil {
			return err
		}
		// Occupied beds come from the assignment rows, not the cached counter.
		inventory, _, err := loadRoom(ctx, tx, room)
		if err != nil {
			return err
		}
		if err := inventory.CheckBed(params.Bed); err != nil {
			return err
		}

		now := s.now()
		opened, err := ledger.Open(allocation.OpenParams{
			ID:           s.idGenerator(),
			StudentID:    studentID,
			Block:        room.Block,
			RoomNumber:   room.Number,
			Bed:          params.Bed,
			Notes:        params.Notes,
			IsRoomChange: true,
			At:           now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertRequest(ctx, toPersistenceRequest(opened)); err != nil {
			return err
		}
		request = opened
		outbox = append(outbox, requestNotification(NotificationRoomChangeRequested, opened, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		request = allocation.Request{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// CancelRequest withdraws a pending request. The request stays active so the
// student's derived state reads cancelled until something newer happens.
func (s *AllocationService) CancelRequest(ctx context.Context, params CancelRequestParams) (request allocation.Request, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CancelRequest",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "request cancelled")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if strings.TrimSpace(params.RequestID) == "" {
		err = allocation.ErrRequestNotFound
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		model, err := tx.GetRequest(ctx, params.RequestID)
		if err != nil {
			return notFoundAs(err, allocation.ErrRequestNotFound)
		}
		req := toDomainRequest(model)
		if !params.Principal.IsAdmin && req.StudentID != params.Principal.UserID {
			return ErrUnauthorized
		}
		if !req.IsActive || req.Status != allocation.StatusPending {
			return allocation.ErrRequestNotFound
		}

		now := s.now()
		if err := req.Transition(allocation.StatusCancelled, params.Principal.UserID, params.Notes, now); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
		request = req
		outbox = append(outbox, requestNotification(NotificationRequestCancelled, req, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		request = allocation.Request{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// AdminDecide approves or rejects a pending request. Approval releases the
// student's old bed for room changes and reserves the requested one.
func (s *AllocationService) AdminDecide(ctx context.Context, params DecideParams) (result DecisionResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AdminDecide",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
		"decision", string(params.Decision),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to decide request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(result.Status)).InfoContext(ctx, "request decided")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	vErr := &ValidationError{}
	if strings.TrimSpace(params.RequestID) == "" {
		vErr.add("request_id", "request id is required")
	}
	if params.Decision != DecisionApprove && params.Decision != DecisionReject {
		vErr.add("decision", "decision must be approve or reject")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		model, err := tx.GetRequest(ctx, params.RequestID)
		if err != nil {
			return notFoundAs(err, allocation.ErrRequestNotFound)
		}
		req := toDomainRequest(model)
		if !req.IsActive || req.Status != allocation.StatusPending {
			return fmt.Errorf("%w: request is %s", allocation.ErrInvalidStatus, req.Status)
		}

		now := s.now()
		if params.Decision == DecisionReject {
			if err := req.Transition(allocation.StatusRejected, params.Principal.UserID, params.Notes, now); err != nil {
				return err
			}
			if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
				return err
			}
			result = DecisionResult{Request: req, Status: req.Status}
			outbox = append(outbox, requestNotification(NotificationRequestRejected, req, now))
			return nil
		}

		residency, err := currentResidency(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		if residency.Allocated() && !req.IsRoomChange {
			return allocation.ErrAlreadyAllocated
		}
		if _, err := s.place(ctx, tx, req.StudentID, residency, req.Block, req.RoomNumber, req.Bed, now); err != nil {
			return err
		}
		if err := req.Transition(allocation.StatusApproved, params.Principal.UserID, params.Notes, now); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
		if err := retireOthers(ctx, tx, req.StudentID, req.ID, "superseded by approval of request "+req.ID, now); err != nil {
			return err
		}
		result = DecisionResult{Request: req, Status: req.Status}
		outbox = append(outbox, requestNotification(NotificationRequestApproved, req, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		result = DecisionResult{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// AdminAllocate places the student of a pending or approved request on a bed
// chosen by an administrator. The request records what was allocated and
// keeps the original ask.
func (s *AllocationService) AdminAllocate(ctx context.Context, params AdminAllocateParams) (result AllocationResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AdminAllocate",
		"principal_id", params.Principal.UserID,
		"request_id", params.RequestID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"bed", params.Bed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to allocate request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"student_id", result.StudentID,
			"differs_from_request", result.DiffersFromRequest,
		).InfoContext(ctx, "request allocated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	vErr := validatePlacement(params.Block, params.RoomNumber)
	if strings.TrimSpace(params.RequestID) == "" {
		vErr.add("request_id", "request id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		model, err := tx.GetRequest(ctx, params.RequestID)
		if err != nil {
			return notFoundAs(err, allocation.ErrRequestNotFound)
		}
		req := toDomainRequest(model)
		if !req.IsActive || (req.Status != allocation.StatusPending && req.Status != allocation.StatusApproved) {
			return fmt.Errorf("%w: request is %s", allocation.ErrInvalidStatus, req.Status)
		}

		residency, err := currentResidency(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		now := s.now()
		placed, err := s.place(ctx, tx, req.StudentID, residency, params.Block, params.RoomNumber, params.Bed, now)
		if err != nil {
			return err
		}
		if err := req.Repoint(placed.Block, placed.RoomNumber, placed.Bed, params.Principal.UserID, params.Notes, now); err != nil {
			return err
		}
		req.IsAdminAction = true
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
		if err := retireOthers(ctx, tx, req.StudentID, req.ID, "superseded by admin allocation "+req.ID, now); err != nil {
			return err
		}
		result = allocationResult(req)
		outbox = append(outbox, allocationNotification(req, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		result = AllocationResult{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// AdminAllocateDirect places a student on a bed without an existing request.
// A pending request of the student is superseded and its ask is reported
// alongside the allocation.
func (s *AllocationService) AdminAllocateDirect(ctx context.Context, params DirectAllocateParams) (result AllocationResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AdminAllocateDirect",
		"principal_id", params.Principal.UserID,
		"student_id", params.StudentID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"bed", params.Bed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to allocate student", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"request_id", result.RequestID,
			"differs_from_request", result.DiffersFromRequest,
		).InfoContext(ctx, "student allocated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	studentID := strings.TrimSpace(params.StudentID)
	vErr := validatePlacement(params.Block, params.RoomNumber)
	if studentID == "" {
		vErr.add("student_id", "student id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		if _, err := requireStudent(ctx, tx, studentID); err != nil {
			return err
		}
		residency, err := currentResidency(ctx, tx, studentID)
		if err != nil {
			return err
		}
		ledger, err := loadLedger(ctx, tx, studentID)
		if err != nil {
			return err
		}

		now := s.now()
		var asked Placement
		if pending, ok := ledger.ActivePending(); ok {
			asked = Placement{Block: pending.RequestedBlock, RoomNumber: pending.RequestedRoomNumber, Bed: pending.RequestedBed}
			if asked.Block == "" {
				asked = Placement{Block: pending.Block, RoomNumber: pending.RoomNumber, Bed: pending.Bed}
			}
			pending.Deactivate("superseded by direct allocation", now)
			if err := tx.UpdateRequest(ctx, toPersistenceRequest(pending)); err != nil {
				return err
			}
		}

		placed, err := s.place(ctx, tx, studentID, residency, params.Block, params.RoomNumber, params.Bed, now)
		if err != nil {
			return err
		}
		if asked.Block == "" {
			asked = placed
		}

		stamp := now
		req := allocation.Request{
			ID:                  s.idGenerator(),
			StudentID:           studentID,
			Block:               placed.Block,
			RoomNumber:          placed.RoomNumber,
			Bed:                 placed.Bed,
			RequestedBlock:      asked.Block,
			RequestedRoomNumber: asked.RoomNumber,
			RequestedBed:        asked.Bed,
			Status:              allocation.StatusApproved,
			IsActive:            true,
			IsRoomChange:        residency.Allocated(),
			IsAdminAction:       true,
			RequestedAt:         now,
			ActionAt:            &stamp,
			ActedBy:             params.Principal.UserID,
			AdminNotes:          strings.TrimSpace(params.Notes),
		}
		if err := tx.InsertRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
		if err := retireOthers(ctx, tx, studentID, req.ID, "superseded by direct allocation "+req.ID, now); err != nil {
			return err
		}
		result = allocationResult(req)
		outbox = append(outbox, allocationNotification(req, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		result = AllocationResult{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// Deallocate frees the student's bed and retires every active request.
// Students may only deallocate themselves.
func (s *AllocationService) Deallocate(ctx context.Context, params DeallocateParams) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Deallocate",
		"principal_id", params.Principal.UserID,
		"student_id", params.StudentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deallocate student", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "student deallocated")
	}()

	studentID, err := actingStudent(params.Principal, params.StudentID)
	if err != nil {
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		if _, err := requireStudent(ctx, tx, studentID); err != nil {
			return err
		}
		now := s.now()
		released, err := s.release(ctx, tx, studentID, deallocationNote(params.Reason), now)
		if err != nil {
			return err
		}
		if _, err := tx.RefreshRoomOccupancy(ctx, released.RoomID, now); err != nil {
			return err
		}
		outbox = append(outbox, deallocationNotification(released, params.Reason, now))
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// BulkDeallocate frees the beds of several students in one transaction.
// Students that cannot be deallocated are reported, not fatal. Each affected
// room's occupancy is recomputed from the surviving assignments once every
// student has been processed.
func (s *AllocationService) BulkDeallocate(ctx context.Context, params BulkDeallocateParams) (result BulkDeallocateResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "BulkDeallocate",
		"principal_id", params.Principal.UserID,
		"requested_count", len(params.StudentIDs),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to bulk deallocate", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"deallocated_count", result.DeallocatedCount,
			"failed_count", len(result.Failures),
		).InfoContext(ctx, "bulk deallocation finished")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	studentIDs := uniqueIDs(params.StudentIDs)
	if len(studentIDs) == 0 {
		vErr := &ValidationError{}
		vErr.add("student_ids", "at least one student id is required")
		err = vErr
		return
	}

	var outbox []Notification
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		outbox = nil
		result = BulkDeallocateResult{}
		now := s.now()
		note := deallocationNote(params.Reason)

		for _, studentID := range studentIDs {
			if _, err := requireStudent(ctx, tx, studentID); err != nil {
				if errors.Is(err, allocation.ErrStudentNotFound) {
					result.addFailure(studentID, "student not found")
					continue
				}
				return err
			}
			released, err := s.release(ctx, tx, studentID, note, now)
			if errors.Is(err, allocation.ErrNoCurrentAllocation) {
				result.addFailure(studentID, "no room allocated")
				continue
			}
			if err != nil {
				return err
			}
			result.DeallocatedCount++
			if !slices.Contains(result.AffectedRooms, released.RoomID) {
				result.AffectedRooms = append(result.AffectedRooms, released.RoomID)
			}
			outbox = append(outbox, deallocationNotification(released, params.Reason, now))
		}

		for _, roomID := range result.AffectedRooms {
			if _, err := tx.RefreshRoomOccupancy(ctx, roomID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		result = BulkDeallocateResult{}
		return
	}

	s.dispatch(ctx, logger, outbox)
	return
}

// ResizeCapacity changes the number of beds in a room. Shrinking never
// evicts: occupied beds above the new capacity reject the change.
func (s *AllocationService) ResizeCapacity(ctx context.Context, params ResizeCapacityParams) (result ResizeResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ResizeCapacity",
		"principal_id", params.Principal.UserID,
		"block", params.Block,
		"room_number", params.RoomNumber,
		"capacity", params.Capacity,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to resize room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("old_capacity", result.OldCapacity).InfoContext(ctx, "room resized")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validatePlacement(params.Block, params.RoomNumber); vErr.HasErrors() {
		err = vErr
		return
	}
	if params.Capacity < allocation.MinCapacity || params.Capacity > s.maxCapacity {
		err = allocation.ErrInvalidCapacity
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		room, err := findRoom(ctx, tx, params.Block, params.RoomNumber)
		if err != nil {
			return err
		}
		inventory, _, err := loadRoom(ctx, tx, room)
		if err != nil {
			return err
		}
		old, err := inventory.Resize(params.Capacity)
		if err != nil {
			return err
		}
		if err := tx.UpdateRoomCapacity(ctx, room.ID, inventory.Capacity, s.now()); err != nil {
			return err
		}
		result = ResizeResult{
			RoomID:      room.ID,
			Block:       room.Block,
			RoomNumber:  room.Number,
			OldCapacity: old,
			NewCapacity: inventory.Capacity,
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		result = ResizeResult{}
	}
	return
}

// GetStudentAllocationStatus derives the student's state from the ledger and
// reports the current placement.
func (s *AllocationService) GetStudentAllocationStatus(ctx context.Context, params StatusParams) (status StudentAllocationStatus, err error) {
	if err = s.ready(); err != nil {
		return
	}

	var studentID string
	if studentID, err = actingStudent(params.Principal, params.StudentID); err != nil {
		return
	}

	err = s.store.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		if _, err := requireStudent(ctx, tx, studentID); err != nil {
			return err
		}
		residency, err := currentResidency(ctx, tx, studentID)
		if err != nil {
			return err
		}
		ledger, err := loadLedger(ctx, tx, studentID)
		if err != nil {
			return err
		}

		snap := allocation.DeriveState(ledger)
		status = StudentAllocationStatus{
			StudentID:        studentID,
			State:            snap.State,
			ApprovedRequest:  snap.Approved,
			PendingRequest:   snap.Pending,
			RejectedRequest:  snap.Rejected,
			CancelledRequest: snap.Cancelled,
		}
		if residency.Allocated() {
			status.CurrentAllocation = &residency
		}
		return nil
	})
	if err != nil {
		s.loggerWith(ctx, "GetStudentAllocationStatus", "student_id", studentID).
			ErrorContext(ctx, "failed to read allocation status", "error", err, "error_kind", ErrorKind(err))
		status = StudentAllocationStatus{}
	}
	return
}

// GetRoomLayout reports the occupancy of a room and who sleeps where.
func (s *AllocationService) GetRoomLayout(ctx context.Context, ref RoomRef) (layout RoomLayout, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if vErr := validatePlacement(ref.Block, ref.RoomNumber); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		room, err := findRoom(ctx, tx, ref.Block, ref.RoomNumber)
		if err != nil {
			return err
		}
		inventory, assignments, err := loadRoom(ctx, tx, room)
		if err != nil {
			return err
		}
		layout = RoomLayout{
			RoomID:           room.ID,
			Block:            room.Block,
			RoomNumber:       room.Number,
			Floor:            room.Floor,
			Capacity:         inventory.Capacity,
			CurrentOccupancy: inventory.CurrentOccupancy(),
			AvailableBeds:    inventory.AvailableBeds(),
			AllocatedBeds:    inventory.OccupiedBeds(),
		}
		for _, a := range assignments {
			layout.Roommates = append(layout.Roommates, Roommate{
				StudentID:  a.StudentID,
				FullName:   a.StudentName,
				RollNumber: a.RollNumber,
				Bed:        a.Bed,
				AssignedAt: a.AssignedAt,
			})
		}
		return nil
	})
	if err != nil {
		layout = RoomLayout{}
	}
	return
}

// GetBedStatus reports every bed of a room, occupied or not.
func (s *AllocationService) GetBedStatus(ctx context.Context, ref RoomRef) (beds []BedStatus, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if vErr := validatePlacement(ref.Block, ref.RoomNumber); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		room, err := findRoom(ctx, tx, ref.Block, ref.RoomNumber)
		if err != nil {
			return err
		}
		assignments, err := tx.ListAssignmentsForRoom(ctx, room.ID)
		if err != nil {
			return err
		}
		byBed := make(map[int]persistence.BedAssignment, len(assignments))
		for _, a := range assignments {
			byBed[a.Bed] = a
		}
		beds = make([]BedStatus, 0, room.Capacity)
		for bed := 1; bed <= room.Capacity; bed++ {
			status := BedStatus{Bed: bed}
			if a, ok := byBed[bed]; ok {
				status.Occupied = true
				status.StudentID = a.StudentID
				status.StudentName = a.StudentName
				status.RollNumber = a.RollNumber
			}
			beds = append(beds, status)
		}
		return nil
	})
	if err != nil {
		beds = nil
	}
	return
}

// ListPendingRequests returns the operative pending requests, oldest first.
func (s *AllocationService) ListPendingRequests(ctx context.Context, principal Principal) (requests []allocation.Request, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.store.View(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		models, err := tx.ListPendingRequests(ctx)
		if err != nil {
			return err
		}
		requests = toDomainRequests(models)
		return nil
	})
	if err != nil {
		requests = nil
	}
	return
}

// ReconcileOccupancy recomputes every room's cached occupancy from its bed
// assignments and reports the rooms that had drifted.
func (s *AllocationService) ReconcileOccupancy(ctx context.Context, principal Principal) (report ReconcileReport, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ReconcileOccupancy", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reconcile occupancy", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"rooms_checked", report.RoomsChecked,
			"rooms_drifted", len(report.Drifted),
		).InfoContext(ctx, "occupancy reconciled")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.AllocationTx) error {
		report = ReconcileReport{}
		rooms, err := tx.ListRooms(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		for _, room := range rooms {
			actual, err := tx.RefreshRoomOccupancy(ctx, room.ID, now)
			if err != nil {
				return err
			}
			report.RoomsChecked++
			if actual != room.CurrentOccupancy {
				report.Drifted = append(report.Drifted, OccupancyDrift{
					RoomID:     room.ID,
					Block:      room.Block,
					RoomNumber: room.Number,
					Cached:     room.CurrentOccupancy,
					Actual:     actual,
				})
			}
		}
		return nil
	})
	if err != nil {
		report = ReconcileReport{}
	}
	return
}

// place moves studentID onto the target bed, releasing the bed named by
// residency first, and refreshes the cached occupancy of every room touched.
func (s *AllocationService) place(ctx context.Context, tx persistence.AllocationTx, studentID string, residency allocation.Residency, block, number string, bed int, at time.Time) (Placement, error) {
	room, err := findRoom(ctx, tx, block, number)
	if err != nil {
		return Placement{}, err
	}
	target := Placement{Block: room.Block, RoomNumber: room.Number, Bed: bed}
	if residency.Allocated() && residency.RoomID == room.ID && residency.Bed == bed {
		return target, nil
	}

	if residency.Allocated() {
		if _, err := tx.DeleteAssignmentForStudent(ctx, studentID); err != nil {
			return Placement{}, err
		}
	}

	inventory, _, err := loadRoom(ctx, tx, room)
	if err != nil {
		return Placement{}, err
	}
	if err := inventory.ReserveBed(bed, studentID, at); err != nil {
		return Placement{}, err
	}
	err = tx.InsertAssignment(ctx, persistence.BedAssignment{RoomID: room.ID, Bed: bed, StudentID: studentID, AssignedAt: at})
	if err != nil {
		return Placement{}, mapStoreError(err)
	}

	if _, err := tx.RefreshRoomOccupancy(ctx, room.ID, at); err != nil {
		return Placement{}, err
	}
	if residency.Allocated() && residency.RoomID != room.ID {
		if _, err := tx.RefreshRoomOccupancy(ctx, residency.RoomID, at); err != nil {
			return Placement{}, err
		}
	}
	return target, nil
}

// release removes the student's bed assignment and deactivates every active
// request. The caller refreshes the room's occupancy.
func (s *AllocationService) release(ctx context.Context, tx persistence.AllocationTx, studentID, note string, at time.Time) (persistence.BedAssignment, error) {
	released, err := tx.DeleteAssignmentForStudent(ctx, studentID)
	if err != nil {
		return persistence.BedAssignment{}, notFoundAs(err, allocation.ErrNoCurrentAllocation)
	}
	models, err := tx.ListRequestsForStudent(ctx, studentID)
	if err != nil {
		return persistence.BedAssignment{}, err
	}
	for _, model := range models {
		if !model.IsActive {
			continue
		}
		req := toDomainRequest(model)
		req.Deactivate(note, at)
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return persistence.BedAssignment{}, err
		}
	}
	return released, nil
}

// retireOthers deactivates the student's other active approved, rejected and
// cancelled requests once a new placement is recorded.
func retireOthers(ctx context.Context, tx persistence.AllocationTx, studentID, keepID, note string, at time.Time) error {
	models, err := tx.ListRequestsForStudent(ctx, studentID)
	if err != nil {
		return err
	}
	for _, model := range models {
		if model.ID == keepID || !model.IsActive {
			continue
		}
		req := toDomainRequest(model)
		if req.Status == allocation.StatusPending {
			continue
		}
		req.Deactivate(note, at)
		if err := tx.UpdateRequest(ctx, toPersistenceRequest(req)); err != nil {
			return err
		}
	}
	return nil
}

func (s *AllocationService) dispatch(ctx context.Context, logger *slog.Logger, notifications []Notification) {
	if s.notifier == nil || len(notifications) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, n := range notifications {
		s.inflight.Add(1)
		go func(n Notification) {
			defer s.inflight.Done()
			notifyCtx, cancel := context.WithTimeout(base, s.notifyTimeout)
			defer cancel()
			if err := s.notifier.Notify(notifyCtx, n); err != nil {
				logger.WarnContext(notifyCtx, "notification delivery failed",
					"student_id", n.StudentID,
					"kind", string(n.Kind),
					"error", err,
				)
			}
		}(n)
	}
}

func (r *BulkDeallocateResult) addFailure(studentID, reason string) {
	r.Failures = append(r.Failures, BulkFailure{StudentID: studentID, Reason: reason})
	r.FailedStudents = append(r.FailedStudents, fmt.Sprintf("%s (%s)", studentID, reason))
}

func allocationResult(req allocation.Request) AllocationResult {
	return AllocationResult{
		RequestID:          req.ID,
		StudentID:          req.StudentID,
		Allocated:          Placement{Block: req.Block, RoomNumber: req.RoomNumber, Bed: req.Bed},
		Requested:          Placement{Block: req.RequestedBlock, RoomNumber: req.RequestedRoomNumber, Bed: req.RequestedBed},
		DiffersFromRequest: req.DiffersFromAsk(),
	}
}

func requestNotification(kind NotificationKind, req allocation.Request, at time.Time) Notification {
	payload := map[string]string{
		"request_id": req.ID,
		"status":     string(req.Status),
	}
	placementPayload("", Placement{Block: req.Block, RoomNumber: req.RoomNumber, Bed: req.Bed}, payload)
	if req.IsRoomChange {
		payload["room_change"] = "true"
	}
	if req.StudentNotes != "" {
		payload["student_notes"] = req.StudentNotes
	}
	if req.AdminNotes != "" {
		payload["admin_notes"] = req.AdminNotes
	}
	return Notification{StudentID: req.StudentID, Kind: kind, Payload: payload, OccurredAt: at}
}

func allocationNotification(req allocation.Request, at time.Time) Notification {
	if !req.DiffersFromAsk() {
		return requestNotification(NotificationAllocated, req, at)
	}
	n := requestNotification(NotificationAllocatedDifferentRoom, req, at)
	placementPayload("requested_", Placement{Block: req.RequestedBlock, RoomNumber: req.RequestedRoomNumber, Bed: req.RequestedBed}, n.Payload)
	return n
}

func deallocationNotification(released persistence.BedAssignment, reason string, at time.Time) Notification {
	payload := map[string]string{}
	placementPayload("", Placement{Block: released.Block, RoomNumber: released.RoomNumber, Bed: released.Bed}, payload)
	if reason = strings.TrimSpace(reason); reason != "" {
		payload["reason"] = reason
	}
	return Notification{StudentID: released.StudentID, Kind: NotificationDeallocated, Payload: payload, OccurredAt: at}
}

func deallocationNote(reason string) string {
	if reason = strings.TrimSpace(reason); reason != "" {
		return "deallocated: " + reason
	}
	return "deallocated"
}

// actingStudent resolves the student an operation acts on. Students may only
// act on themselves; administrators may name anyone.
func actingStudent(principal Principal, studentID string) (string, error) {
	id := strings.TrimSpace(studentID)
	if id == "" {
		id = principal.UserID
	}
	if id == "" {
		vErr := &ValidationError{}
		vErr.add("student_id", "student id is required")
		return "", vErr
	}
	if !principal.IsAdmin && principal.UserID != id {
		return "", ErrUnauthorized
	}
	return id, nil
}

func validatePlacement(block, number string) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(block) == "" {
		vErr.add("block", "block is required")
	}
	if strings.TrimSpace(number) == "" {
		vErr.add("room_number", "room number is required")
	}
	return vErr
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
