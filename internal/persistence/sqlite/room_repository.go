package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/example/hall-allocation/internal/persistence"
)

const roomColumns = `id, block, room_number, floor, capacity, current_occupancy, created_at, updated_at`

// CreateRoom inserts a new, empty room.
func (s *Storage) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || strings.TrimSpace(room.Block) == "" || strings.TrimSpace(room.Number) == "" {
		return persistence.ErrConstraintViolation
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}

	_, err := s.exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		room.ID,
		strings.TrimSpace(room.Block),
		strings.TrimSpace(room.Number),
		room.Floor,
		room.Capacity,
		formatTime(room.CreatedAt),
		formatTime(room.UpdatedAt),
	)
	return err
}

// GetRoom retrieves a room by ID.
func (s *Storage) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	return getRoom(ctx, s.pool.DB(), s.mapper, id)
}

// GetRoomByLabel retrieves a room by block and room number, ignoring case.
func (s *Storage) GetRoomByLabel(ctx context.Context, block, number string) (persistence.Room, error) {
	return getRoomByLabel(ctx, s.pool.DB(), s.mapper, block, number)
}

// ListRooms returns all rooms ordered by block then room number.
func (s *Storage) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	return listRooms(ctx, s.pool.DB(), s.mapper)
}

// DeleteRoom removes a room. Rooms with bed assignments are protected by the
// foreign key and yield persistence.ErrConstraintViolation.
func (s *Storage) DeleteRoom(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	result, err := s.exec(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

func getRoom(ctx context.Context, q queryer, mapper *ErrorMapper, id string) (persistence.Room, error) {
	if id == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return scanRoom(q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id), mapper)
}

func getRoomByLabel(ctx context.Context, q queryer, mapper *ErrorMapper, block, number string) (persistence.Room, error) {
	block, number = strings.TrimSpace(block), strings.TrimSpace(number)
	if block == "" || number == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE block = ? AND room_number = ?`, block, number)
	return scanRoom(row, mapper)
}

func listRooms(ctx context.Context, q queryer, mapper *ErrorMapper) ([]persistence.Room, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY block ASC, room_number ASC`)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows, mapper)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return rooms, nil
}

func scanRoom(row rowScanner, mapper *ErrorMapper) (persistence.Room, error) {
	var (
		room                 persistence.Room
		createdAt, updatedAt string
	)
	err := row.Scan(&room.ID, &room.Block, &room.Number, &room.Floor, &room.Capacity,
		&room.CurrentOccupancy, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Room{}, mapper.MapError(err)
	}
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}
