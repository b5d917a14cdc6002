package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/hall-allocation/internal/persistence"
)

const studentSelect = `
	SELECT s.id, s.roll_number, s.full_name, s.department, u.email, s.created_at, s.updated_at
	FROM students s
	JOIN users u ON u.id = s.id`

// CreateStudent inserts the account and its resident profile in one
// transaction. A new student never has a bed assignment.
func (s *Storage) CreateStudent(ctx context.Context, user persistence.User, student persistence.Student) error {
	if user.ID == "" || student.ID != user.ID || strings.TrimSpace(student.RollNumber) == "" {
		return persistence.ErrConstraintViolation
	}
	user = stampUser(user)
	if student.CreatedAt.IsZero() {
		student.CreatedAt = user.CreatedAt
	}
	if student.UpdatedAt.IsZero() {
		student.UpdatedAt = student.CreatedAt
	}

	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := s.insertUser(ctx, tx, user); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO students (id, roll_number, full_name, department, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				student.ID,
				strings.TrimSpace(student.RollNumber),
				student.FullName,
				student.Department,
				formatTime(student.CreatedAt),
				formatTime(student.UpdatedAt),
			)
			return s.mapper.MapError(err)
		})
	})
}

// GetStudent retrieves a resident profile by ID.
func (s *Storage) GetStudent(ctx context.Context, id string) (persistence.Student, error) {
	return getStudent(ctx, s.pool.DB(), s.mapper, id)
}

// GetStudentByRollNumber retrieves a resident profile by its external roll number.
func (s *Storage) GetStudentByRollNumber(ctx context.Context, rollNumber string) (persistence.Student, error) {
	rollNumber = strings.TrimSpace(rollNumber)
	if rollNumber == "" {
		return persistence.Student{}, persistence.ErrNotFound
	}
	row := s.pool.DB().QueryRowContext(ctx, studentSelect+` WHERE s.roll_number = ?`, rollNumber)
	return scanStudent(row, s.mapper)
}

// ListStudents returns every resident ordered by roll number.
func (s *Storage) ListStudents(ctx context.Context) ([]persistence.Student, error) {
	rows, err := s.pool.DB().QueryContext(ctx, studentSelect+` ORDER BY s.roll_number ASC`)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var students []persistence.Student
	for rows.Next() {
		student, err := scanStudent(rows, s.mapper)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return students, nil
}

func getStudent(ctx context.Context, q queryer, mapper *ErrorMapper, id string) (persistence.Student, error) {
	if id == "" {
		return persistence.Student{}, persistence.ErrNotFound
	}
	return scanStudent(q.QueryRowContext(ctx, studentSelect+` WHERE s.id = ?`, id), mapper)
}

func scanStudent(row rowScanner, mapper *ErrorMapper) (persistence.Student, error) {
	var (
		student              persistence.Student
		createdAt, updatedAt string
	)
	err := row.Scan(&student.ID, &student.RollNumber, &student.FullName, &student.Department,
		&student.Email, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Student{}, mapper.MapError(err)
	}
	if student.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Student{}, err
	}
	if student.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Student{}, err
	}
	return student, nil
}
