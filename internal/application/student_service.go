package application

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/persistence"
)

// StudentRepository captures the persistence operations needed by the student service.
type StudentRepository interface {
	// CreateStudent stores the login account and the resident profile together.
	CreateStudent(ctx context.Context, student Student, passwordHash string) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	GetStudentByRollNumber(ctx context.Context, rollNumber string) (Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
}

// StudentService registers residents and exposes their profiles.
type StudentService struct {
	students     StudentRepository
	idGenerator  func() string
	now          func() time.Time
	hashPassword func(password string) (string, error)
}

// NewStudentService wires dependencies for the student service. A nil hasher
// falls back to argon2id with the default parameters.
func NewStudentService(students StudentRepository, idGenerator func() string, now func() time.Time, hashPassword func(string) (string, error)) *StudentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if hashPassword == nil {
		hashPassword = HashPassword
	}
	return &StudentService{students: students, idGenerator: idGenerator, now: now, hashPassword: hashPassword}
}

// RegisterStudent validates input and creates a student account for administrators.
func (s *StudentService) RegisterStudent(ctx context.Context, params RegisterStudentParams) (Student, error) {
	if s == nil {
		return Student{}, fmt.Errorf("StudentService is nil")
	}
	if !params.Principal.IsAdmin {
		return Student{}, ErrUnauthorized
	}

	normalized := normalizeStudentInput(params.Input)
	vErr := validateStudentInput(normalized)
	if vErr.HasErrors() {
		return Student{}, vErr
	}

	student := Student{
		ID:         s.idGenerator(),
		RollNumber: normalized.RollNumber,
		FullName:   normalized.FullName,
		Department: normalized.Department,
		Email:      normalized.Email,
		CreatedAt:  s.now(),
	}
	student.UpdatedAt = student.CreatedAt

	if s.students == nil {
		return student, nil
	}

	hash, err := s.hashPassword(normalized.Password)
	if err != nil {
		return Student{}, fmt.Errorf("hash password: %w", err)
	}

	persisted, err := s.students.CreateStudent(ctx, student, hash)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return Student{}, ErrAlreadyExists
		}
		return Student{}, err
	}

	return persisted, nil
}

// GetStudent returns a profile. Students may only read their own.
func (s *StudentService) GetStudent(ctx context.Context, principal Principal, studentID string) (Student, error) {
	if s == nil {
		return Student{}, fmt.Errorf("StudentService is nil")
	}
	if !principal.IsAdmin && principal.UserID != studentID {
		return Student{}, ErrUnauthorized
	}
	if s.students == nil {
		return Student{}, fmt.Errorf("student repository not configured")
	}

	student, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return Student{}, mapStudentRepoError(err)
	}
	return student, nil
}

// FindByRollNumber resolves a roll number for administrators.
func (s *StudentService) FindByRollNumber(ctx context.Context, principal Principal, rollNumber string) (Student, error) {
	if s == nil {
		return Student{}, fmt.Errorf("StudentService is nil")
	}
	if !principal.IsAdmin {
		return Student{}, ErrUnauthorized
	}
	if s.students == nil {
		return Student{}, fmt.Errorf("student repository not configured")
	}

	student, err := s.students.GetStudentByRollNumber(ctx, strings.ToUpper(strings.TrimSpace(rollNumber)))
	if err != nil {
		return Student{}, mapStudentRepoError(err)
	}
	return student, nil
}

// ListStudents returns every resident ordered by roll number for administrators.
func (s *StudentService) ListStudents(ctx context.Context, principal Principal) ([]Student, error) {
	if s == nil {
		return nil, fmt.Errorf("StudentService is nil")
	}
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	if s.students == nil {
		return nil, nil
	}

	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Student, len(students))
	copy(out, students)

	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNumber == out[j].RollNumber {
			return out[i].ID < out[j].ID
		}
		return out[i].RollNumber < out[j].RollNumber
	})

	return out, nil
}

func normalizeStudentInput(input StudentInput) StudentInput {
	return StudentInput{
		RollNumber: strings.ToUpper(strings.TrimSpace(input.RollNumber)),
		FullName:   strings.TrimSpace(input.FullName),
		Department: strings.TrimSpace(input.Department),
		Email:      strings.ToLower(strings.TrimSpace(input.Email)),
		Password:   input.Password,
	}
}

func validateStudentInput(input StudentInput) *ValidationError {
	vErr := &ValidationError{}

	if input.RollNumber == "" {
		vErr.add("roll_number", "roll number is required")
	}
	if input.FullName == "" {
		vErr.add("full_name", "full name is required")
	}

	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		vErr.add("email", "email is invalid")
	}

	if problem := passwordProblem(input.Password, input.RollNumber); problem != "" {
		vErr.add("password", problem)
	}

	return vErr
}

func mapStudentRepoError(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return allocation.ErrStudentNotFound
	}
	return err
}
