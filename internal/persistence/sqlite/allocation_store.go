package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/hall-allocation/internal/persistence"
)

// WithinTx runs fn inside one IMMEDIATE transaction, so concurrent writers
// queue on the database write lock and every read inside fn is current. The
// whole transaction is retried when SQLite reports the database busy, which
// means fn may run more than once and must only touch state through tx.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.AllocationTx) error) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			return fn(ctx, &allocationTx{q: tx, mapper: s.mapper})
		})
	})
}

// View runs fn inside one read-only transaction, so a status or layout built
// from several queries reflects a single commit.
func (s *Storage) View(ctx context.Context, fn func(ctx context.Context, tx persistence.AllocationTx) error) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
			return fn(ctx, &allocationTx{q: tx, mapper: s.mapper})
		})
	})
}

type allocationTx struct {
	q      queryer
	mapper *ErrorMapper
}

func (t *allocationTx) GetStudent(ctx context.Context, id string) (persistence.Student, error) {
	return getStudent(ctx, t.q, t.mapper, id)
}

func (t *allocationTx) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	return getRoom(ctx, t.q, t.mapper, id)
}

func (t *allocationTx) GetRoomByLabel(ctx context.Context, block, number string) (persistence.Room, error) {
	return getRoomByLabel(ctx, t.q, t.mapper, block, number)
}

func (t *allocationTx) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	return listRooms(ctx, t.q, t.mapper)
}

func (t *allocationTx) UpdateRoomCapacity(ctx context.Context, roomID string, capacity int, updatedAt time.Time) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE rooms SET capacity = ?, updated_at = ? WHERE id = ?`,
		capacity, formatTime(updatedAt), roomID)
	if err != nil {
		return t.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

func (t *allocationTx) RefreshRoomOccupancy(ctx context.Context, roomID string, updatedAt time.Time) (int, error) {
	result, err := t.q.ExecContext(ctx, `
		UPDATE rooms
		SET current_occupancy = (SELECT COUNT(*) FROM bed_assignments WHERE room_id = rooms.id),
		    updated_at = ?
		WHERE id = ?`,
		formatTime(updatedAt), roomID)
	if err != nil {
		return 0, t.mapper.MapError(err)
	}
	if err := requireRowsAffected(result); err != nil {
		return 0, err
	}

	var occupancy int
	if err := t.q.QueryRowContext(ctx, `SELECT current_occupancy FROM rooms WHERE id = ?`, roomID).Scan(&occupancy); err != nil {
		return 0, t.mapper.MapError(err)
	}
	return occupancy, nil
}

const assignmentSelect = `
	SELECT a.room_id, a.bed_number, a.student_id, a.assigned_at,
	       r.block, r.room_number, st.full_name, st.roll_number
	FROM bed_assignments a
	JOIN rooms r ON r.id = a.room_id
	JOIN students st ON st.id = a.student_id`

func (t *allocationTx) ListAssignmentsForRoom(ctx context.Context, roomID string) ([]persistence.BedAssignment, error) {
	rows, err := t.q.QueryContext(ctx, assignmentSelect+` WHERE a.room_id = ? ORDER BY a.bed_number ASC`, roomID)
	if err != nil {
		return nil, t.mapper.MapError(err)
	}
	defer rows.Close()

	var assignments []persistence.BedAssignment
	for rows.Next() {
		assignment, err := t.scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, t.mapper.MapError(err)
	}
	return assignments, nil
}

func (t *allocationTx) GetAssignmentForStudent(ctx context.Context, studentID string) (persistence.BedAssignment, error) {
	if studentID == "" {
		return persistence.BedAssignment{}, persistence.ErrNotFound
	}
	return t.scanAssignment(t.q.QueryRowContext(ctx, assignmentSelect+` WHERE a.student_id = ?`, studentID))
}

func (t *allocationTx) InsertAssignment(ctx context.Context, assignment persistence.BedAssignment) error {
	if assignment.RoomID == "" || assignment.StudentID == "" || assignment.Bed < 1 {
		return persistence.ErrConstraintViolation
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO bed_assignments (room_id, bed_number, student_id, assigned_at)
		VALUES (?, ?, ?, ?)`,
		assignment.RoomID, assignment.Bed, assignment.StudentID, formatTime(assignment.AssignedAt))
	return t.mapper.MapError(err)
}

func (t *allocationTx) DeleteAssignmentForStudent(ctx context.Context, studentID string) (persistence.BedAssignment, error) {
	assignment, err := t.GetAssignmentForStudent(ctx, studentID)
	if err != nil {
		return persistence.BedAssignment{}, err
	}
	result, err := t.q.ExecContext(ctx, `DELETE FROM bed_assignments WHERE student_id = ?`, studentID)
	if err != nil {
		return persistence.BedAssignment{}, t.mapper.MapError(err)
	}
	if err := requireRowsAffected(result); err != nil {
		return persistence.BedAssignment{}, err
	}
	return assignment, nil
}

func (t *allocationTx) scanAssignment(row rowScanner) (persistence.BedAssignment, error) {
	var (
		assignment persistence.BedAssignment
		assignedAt string
	)
	err := row.Scan(&assignment.RoomID, &assignment.Bed, &assignment.StudentID, &assignedAt,
		&assignment.Block, &assignment.RoomNumber, &assignment.StudentName, &assignment.RollNumber)
	if err != nil {
		return persistence.BedAssignment{}, t.mapper.MapError(err)
	}
	if assignment.AssignedAt, err = parseTime(assignedAt); err != nil {
		return persistence.BedAssignment{}, err
	}
	return assignment, nil
}

const requestColumns = `id, student_id, block, room_number, bed_number,
	requested_block, requested_room_number, requested_bed_number,
	status, is_active, is_room_change, is_admin_action,
	requested_at, action_at, acted_by, student_notes, admin_notes, audit_notes`

func (t *allocationTx) GetRequest(ctx context.Context, id string) (persistence.AllocationRequest, error) {
	if id == "" {
		return persistence.AllocationRequest{}, persistence.ErrNotFound
	}
	return t.scanRequest(t.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM allocation_requests WHERE id = ?`, id))
}

func (t *allocationTx) ListRequestsForStudent(ctx context.Context, studentID string) ([]persistence.AllocationRequest, error) {
	return t.listRequests(ctx, `SELECT `+requestColumns+`
		FROM allocation_requests
		WHERE student_id = ?
		ORDER BY requested_at ASC, id ASC`, studentID)
}

// ListPendingRequests returns the operative pending requests oldest first.
func (t *allocationTx) ListPendingRequests(ctx context.Context) ([]persistence.AllocationRequest, error) {
	return t.listRequests(ctx, `SELECT `+requestColumns+`
		FROM allocation_requests
		WHERE status = 'pending' AND is_active = 1
		ORDER BY requested_at ASC, id ASC`)
}

func (t *allocationTx) InsertRequest(ctx context.Context, request persistence.AllocationRequest) error {
	if request.ID == "" || request.StudentID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO allocation_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requestArgs(request)...)
	return t.mapper.MapError(err)
}

func (t *allocationTx) UpdateRequest(ctx context.Context, request persistence.AllocationRequest) error {
	if request.ID == "" {
		return persistence.ErrConstraintViolation
	}
	args := requestArgs(request)[2:]
	args = append(args, request.ID)
	result, err := t.q.ExecContext(ctx, `
		UPDATE allocation_requests
		SET block = ?, room_number = ?, bed_number = ?,
		    requested_block = ?, requested_room_number = ?, requested_bed_number = ?,
		    status = ?, is_active = ?, is_room_change = ?, is_admin_action = ?,
		    requested_at = ?, action_at = ?, acted_by = ?,
		    student_notes = ?, admin_notes = ?, audit_notes = ?
		WHERE id = ?`,
		args...)
	if err != nil {
		return t.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

// requestArgs returns the column values in requestColumns order.
func requestArgs(r persistence.AllocationRequest) []any {
	return []any{
		r.ID,
		r.StudentID,
		r.Block,
		r.RoomNumber,
		r.Bed,
		r.RequestedBlock,
		r.RequestedRoomNumber,
		r.RequestedBed,
		r.Status,
		boolToInt(r.IsActive),
		boolToInt(r.IsRoomChange),
		boolToInt(r.IsAdminAction),
		formatTime(r.RequestedAt),
		formatTimePtr(r.ActionAt),
		r.ActedBy,
		r.StudentNotes,
		r.AdminNotes,
		r.AuditNotes,
	}
}

func (t *allocationTx) listRequests(ctx context.Context, query string, args ...any) ([]persistence.AllocationRequest, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.mapper.MapError(err)
	}
	defer rows.Close()

	var requests []persistence.AllocationRequest
	for rows.Next() {
		request, err := t.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, t.mapper.MapError(err)
	}
	return requests, nil
}

func (t *allocationTx) scanRequest(row rowScanner) (persistence.AllocationRequest, error) {
	var (
		request                               persistence.AllocationRequest
		isActive, isRoomChange, isAdminAction int
		requestedAt                           string
		actionAt                              sql.NullString
	)
	err := row.Scan(
		&request.ID,
		&request.StudentID,
		&request.Block,
		&request.RoomNumber,
		&request.Bed,
		&request.RequestedBlock,
		&request.RequestedRoomNumber,
		&request.RequestedBed,
		&request.Status,
		&isActive,
		&isRoomChange,
		&isAdminAction,
		&requestedAt,
		&actionAt,
		&request.ActedBy,
		&request.StudentNotes,
		&request.AdminNotes,
		&request.AuditNotes,
	)
	if err != nil {
		return persistence.AllocationRequest{}, t.mapper.MapError(err)
	}
	request.IsActive = isActive == 1
	request.IsRoomChange = isRoomChange == 1
	request.IsAdminAction = isAdminAction == 1

	if request.RequestedAt, err = parseTime(requestedAt); err != nil {
		return persistence.AllocationRequest{}, err
	}
	if request.ActionAt, err = parseTimePtr(actionAt); err != nil {
		return persistence.AllocationRequest{}, err
	}
	return request, nil
}
