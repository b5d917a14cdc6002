package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/application"
)

type allocationService interface {
	ApplyForRoom(ctx context.Context, params application.ApplyParams) (allocation.Request, error)
	EditPendingRequest(ctx context.Context, params application.EditRequestParams) (allocation.Request, error)
	RequestRoomChange(ctx context.Context, params application.ApplyParams) (allocation.Request, error)
	CancelRequest(ctx context.Context, params application.CancelRequestParams) (allocation.Request, error)
	AdminDecide(ctx context.Context, params application.DecideParams) (application.DecisionResult, error)
	AdminAllocate(ctx context.Context, params application.AdminAllocateParams) (application.AllocationResult, error)
	AdminAllocateDirect(ctx context.Context, params application.DirectAllocateParams) (application.AllocationResult, error)
	Deallocate(ctx context.Context, params application.DeallocateParams) error
	BulkDeallocate(ctx context.Context, params application.BulkDeallocateParams) (application.BulkDeallocateResult, error)
	GetStudentAllocationStatus(ctx context.Context, params application.StatusParams) (application.StudentAllocationStatus, error)
	ListPendingRequests(ctx context.Context, principal application.Principal) ([]allocation.Request, error)
	ReconcileOccupancy(ctx context.Context, principal application.Principal) (application.ReconcileReport, error)
}

type AllocationHandler struct {
	service   allocationService
	responder responder
	logger    *slog.Logger
}

func NewAllocationHandler(service allocationService, logger *slog.Logger) *AllocationHandler {
	base := defaultLogger(logger)
	return &AllocationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AllocationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AllocationHandler", operation, attrs...)
}

func (h *AllocationHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// fail logs a service error and writes the mapped response.
func (h *AllocationHandler) fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(r.Context(), w, err)
}

func (h *AllocationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.submit(w, r, "Apply", h.service.ApplyForRoom)
}

func (h *AllocationHandler) RequestRoomChange(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.submit(w, r, "RequestRoomChange", h.service.RequestRoomChange)
}

func (h *AllocationHandler) submit(w http.ResponseWriter, r *http.Request, operation string, call func(context.Context, application.ApplyParams) (allocation.Request, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "principal_id", principal.UserID)

	var req placementRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid allocation request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	created, err := call(r.Context(), application.ApplyParams{
		Principal:  principal,
		StudentID:  req.StudentID,
		Block:      req.Block,
		RoomNumber: req.RoomNumber,
		Bed:        req.Bed,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "allocation request failed", err)
		return
	}

	logger.InfoContext(r.Context(), "allocation request submitted", "request_id", created.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, requestResponse{Request: toRequestDTO(created)})
}

func (h *AllocationHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requestID := r.PathValue("id")
	logger := h.log(r.Context(), "Edit", "principal_id", principal.UserID, "request_id", requestID)

	var req placementRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid edit request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	updated, err := h.service.EditPendingRequest(r.Context(), application.EditRequestParams{
		Principal:  principal,
		RequestID:  requestID,
		StudentID:  req.StudentID,
		Block:      req.Block,
		RoomNumber: req.RoomNumber,
		Bed:        req.Bed,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "request edit failed", err)
		return
	}

	logger.InfoContext(r.Context(), "pending request edited")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestResponse{Request: toRequestDTO(updated)})
}

func (h *AllocationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requestID := r.PathValue("id")
	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "request_id", requestID)

	var req notesRequest
	if err := decodeOptionalRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid cancel request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	cancelled, err := h.service.CancelRequest(r.Context(), application.CancelRequestParams{
		Principal: principal,
		RequestID: requestID,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "request cancellation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "pending request cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestResponse{Request: toRequestDTO(cancelled)})
}

func (h *AllocationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requests, err := h.service.ListPendingRequests(r.Context(), principal)
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "ListPending", "principal_id", principal.UserID), "pending queue failed", err)
		return
	}

	dtos := make([]requestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRequestDTO(req))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestListResponse{Requests: dtos})
}

func (h *AllocationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requestID := r.PathValue("id")
	logger := h.log(r.Context(), "Decide", "principal_id", principal.UserID, "request_id", requestID)

	var req decisionRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid decision request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	result, err := h.service.AdminDecide(r.Context(), application.DecideParams{
		Principal: principal,
		RequestID: requestID,
		Decision:  application.Decision(req.Decision),
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "decision failed", err)
		return
	}

	logger.InfoContext(r.Context(), "request decided", "status", string(result.Status))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, requestResponse{Request: toRequestDTO(result.Request)})
}

func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requestID := r.PathValue("id")
	logger := h.log(r.Context(), "Allocate", "principal_id", principal.UserID, "request_id", requestID)

	var req placementRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid allocate request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	result, err := h.service.AdminAllocate(r.Context(), application.AdminAllocateParams{
		Principal:  principal,
		RequestID:  requestID,
		Block:      req.Block,
		RoomNumber: req.RoomNumber,
		Bed:        req.Bed,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "allocation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "student allocated", "student_id", result.StudentID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAllocationDTO(result))
}

func (h *AllocationHandler) AllocateDirect(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "AllocateDirect", "principal_id", principal.UserID)

	var req directRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid direct allocation", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	result, err := h.service.AdminAllocateDirect(r.Context(), application.DirectAllocateParams{
		Principal:  principal,
		StudentID:  req.StudentID,
		Block:      req.Block,
		RoomNumber: req.RoomNumber,
		Bed:        req.Bed,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(w, r, logger, "direct allocation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "student allocated directly", "student_id", result.StudentID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAllocationDTO(result))
}

func (h *AllocationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))

	status, err := h.service.GetStudentAllocationStatus(r.Context(), application.StatusParams{
		Principal: principal,
		StudentID: studentID,
	})
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "Status", "principal_id", principal.UserID, "student_id", studentID), "status lookup failed", err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStatusDTO(status))
}

func (h *AllocationHandler) Deallocate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	studentID := r.PathValue("id")
	logger := h.log(r.Context(), "Deallocate", "principal_id", principal.UserID, "student_id", studentID)

	var req reasonRequest
	if err := decodeOptionalRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid deallocation request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	if err := h.service.Deallocate(r.Context(), application.DeallocateParams{
		Principal: principal,
		StudentID: studentID,
		Reason:    req.Reason,
	}); err != nil {
		h.fail(w, r, logger, "deallocation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "student deallocated")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AllocationHandler) BulkDeallocate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "BulkDeallocate", "principal_id", principal.UserID)

	var req bulkDeallocateRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid bulk deallocation", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	result, err := h.service.BulkDeallocate(r.Context(), application.BulkDeallocateParams{
		Principal:  principal,
		StudentIDs: req.StudentIDs,
		Reason:     req.Reason,
	})
	if err != nil {
		h.fail(w, r, logger, "bulk deallocation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "bulk deallocation finished", "deallocated", result.DeallocatedCount, "failed", len(result.FailedStudents))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bulkDeallocateResponse{
		DeallocatedCount: result.DeallocatedCount,
		FailedStudents:   nonNil(result.FailedStudents),
		AffectedRooms:    nonNil(result.AffectedRooms),
	})
}

func (h *AllocationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Reconcile", "principal_id", principal.UserID)

	report, err := h.service.ReconcileOccupancy(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "reconciliation failed", err)
		return
	}

	resp := reconcileResponse{RoomsChecked: report.RoomsChecked, Drifted: make([]driftDTO, 0, len(report.Drifted))}
	for _, d := range report.Drifted {
		resp.Drifted = append(resp.Drifted, driftDTO{
			RoomID:     d.RoomID,
			Block:      d.Block,
			RoomNumber: d.RoomNumber,
			Cached:     d.Cached,
			Actual:     d.Actual,
		})
	}
	logger.InfoContext(r.Context(), "occupancy reconciled", "drifted", len(resp.Drifted))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
