package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/application"
)

var (
	errBadRequestBody      = errors.New("request body is not valid JSON")
	errMissingSessionToken = errors.New("a session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: "internal server error"})
		return
	}

	resp := errorResponse{ErrorCode: code, Message: err.Error()}
	var occupied *allocation.OccupiedBedsError
	if errors.As(err, &occupied) {
		resp.Beds = occupied.Beds
	}
	r.writeJSON(ctx, w, status, resp)
}

// classify maps an error to its HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS"
	case errors.Is(err, application.ErrSessionExpired), errors.Is(err, application.ErrSessionRevoked):
		return http.StatusUnauthorized, "AUTH_SESSION_EXPIRED"
	case errors.Is(err, allocation.ErrUnauthorized):
		return http.StatusForbidden, "AUTH_FORBIDDEN"

	case errors.Is(err, allocation.ErrRoomNotFound):
		return http.StatusNotFound, "ROOM_NOT_FOUND"
	case errors.Is(err, allocation.ErrStudentNotFound):
		return http.StatusNotFound, "STUDENT_NOT_FOUND"
	case errors.Is(err, allocation.ErrRequestNotFound):
		return http.StatusNotFound, "REQUEST_NOT_FOUND"
	case errors.Is(err, allocation.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, allocation.ErrBedOccupied):
		return http.StatusConflict, "BED_OCCUPIED"
	case errors.Is(err, allocation.ErrDuplicatePendingRequest):
		return http.StatusConflict, "DUPLICATE_PENDING_REQUEST"
	case errors.Is(err, allocation.ErrAlreadyAllocated):
		return http.StatusConflict, "ALREADY_ALLOCATED"
	case errors.Is(err, allocation.ErrNoOpChange):
		return http.StatusConflict, "NO_OP_CHANGE"
	case errors.Is(err, allocation.ErrRoomFull):
		return http.StatusConflict, "ROOM_FULL"
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, allocation.ErrConflict):
		return http.StatusConflict, "CONFLICT"

	case errors.Is(err, allocation.ErrInvalidBed):
		return http.StatusUnprocessableEntity, "INVALID_BED"
	case errors.Is(err, allocation.ErrInvalidCapacity):
		return http.StatusUnprocessableEntity, "INVALID_CAPACITY"
	case errors.Is(err, allocation.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "INVALID_STATUS"
	case errors.Is(err, allocation.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "INVALID_INPUT"

	case errors.Is(err, allocation.ErrNoCurrentAllocation):
		return http.StatusPreconditionFailed, "NO_CURRENT_ALLOCATION"
	case errors.Is(err, allocation.ErrOccupiedBedsWouldBeRemoved):
		return http.StatusPreconditionFailed, "OCCUPIED_BEDS_WOULD_BE_REMOVED"
	case errors.Is(err, application.ErrRoomOccupied):
		return http.StatusPreconditionFailed, "ROOM_OCCUPIED"
	case errors.Is(err, allocation.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "PRECONDITION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Beds      []int             `json:"beds,omitempty"`
}
