package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/hall-allocation/internal/application"
)

type studentService interface {
	RegisterStudent(ctx context.Context, params application.RegisterStudentParams) (application.Student, error)
	GetStudent(ctx context.Context, principal application.Principal, studentID string) (application.Student, error)
	FindByRollNumber(ctx context.Context, principal application.Principal, rollNumber string) (application.Student, error)
	ListStudents(ctx context.Context, principal application.Principal) ([]application.Student, error)
}

type StudentHandler struct {
	service   studentService
	responder responder
	logger    *slog.Logger
}

func NewStudentHandler(service studentService, logger *slog.Logger) *StudentHandler {
	base := defaultLogger(logger)
	return &StudentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StudentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StudentHandler", operation, attrs...)
}

func (h *StudentHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req studentRequest
	if err := decodeRequest(r, &req); err != nil {
		h.log(r.Context(), "Register", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "invalid student request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	logger := h.log(r.Context(), "Register", "principal_id", principal.UserID, "roll_number", req.RollNumber)

	student, err := h.service.RegisterStudent(r.Context(), application.RegisterStudentParams{
		Principal: principal,
		Input: application.StudentInput{
			RollNumber: req.RollNumber,
			FullName:   req.FullName,
			Department: req.Department,
			Email:      req.Email,
			Password:   req.Password,
		},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "student registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("student_id", student.ID).InfoContext(r.Context(), "student registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, studentResponse{Student: toStudentDTO(student)})
}

// List returns every student, or the single match of ?roll_number=.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	if roll := strings.TrimSpace(r.URL.Query().Get("roll_number")); roll != "" {
		student, err := h.service.FindByRollNumber(r.Context(), principal, roll)
		if err != nil {
			h.log(r.Context(), "List", "principal_id", principal.UserID, "roll_number", roll).ErrorContext(r.Context(), "student lookup failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		h.responder.writeJSON(r.Context(), w, http.StatusOK, studentListResponse{Students: []studentDTO{toStudentDTO(student)}})
		return
	}

	students, err := h.service.ListStudents(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "student listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]studentDTO, 0, len(students))
	for _, student := range students {
		dtos = append(dtos, toStudentDTO(student))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentListResponse{Students: dtos})
}

func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")

	student, err := h.service.GetStudent(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "student_id", id).ErrorContext(r.Context(), "student lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: toStudentDTO(student)})
}

type studentRequest struct {
	RollNumber string `json:"roll_number" validate:"required,max=32"`
	FullName   string `json:"full_name" validate:"required,max=128"`
	Department string `json:"department" validate:"max=128"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
}

type studentDTO struct {
	ID         string `json:"id"`
	RollNumber string `json:"roll_number"`
	FullName   string `json:"full_name"`
	Department string `json:"department,omitempty"`
	Email      string `json:"email"`
	CreatedAt  string `json:"created_at"`
}

type studentResponse struct {
	Student studentDTO `json:"student"`
}

type studentListResponse struct {
	Students []studentDTO `json:"students"`
}

func toStudentDTO(student application.Student) studentDTO {
	return studentDTO{
		ID:         student.ID,
		RollNumber: student.RollNumber,
		FullName:   student.FullName,
		Department: student.Department,
		Email:      student.Email,
		CreatedAt:  formatTimestamp(student.CreatedAt),
	}
}
