package main

import (
	"context"
	"time"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/persistence"
)

type roomRepositoryAdapter struct {
	repo persistence.RoomRepository
}

func newRoomRepositoryAdapter(repo persistence.RoomRepository) *roomRepositoryAdapter {
	return &roomRepositoryAdapter{repo: repo}
}

func (a *roomRepositoryAdapter) CreateRoom(ctx context.Context, room application.Room) (application.Room, error) {
	if err := a.repo.CreateRoom(ctx, toPersistenceRoom(room)); err != nil {
		return application.Room{}, err
	}
	stored, err := a.repo.GetRoom(ctx, room.ID)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomRepositoryAdapter) GetRoomByLabel(ctx context.Context, block, number string) (application.Room, error) {
	stored, err := a.repo.GetRoomByLabel(ctx, block, number)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomRepositoryAdapter) ListRooms(ctx context.Context) ([]application.Room, error) {
	models, err := a.repo.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	rooms := make([]application.Room, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, toApplicationRoom(model))
	}
	return rooms, nil
}

func (a *roomRepositoryAdapter) DeleteRoom(ctx context.Context, id string) error {
	return a.repo.DeleteRoom(ctx, id)
}

type studentRepositoryAdapter struct {
	repo persistence.StudentRepository
}

func newStudentRepositoryAdapter(repo persistence.StudentRepository) *studentRepositoryAdapter {
	return &studentRepositoryAdapter{repo: repo}
}

// CreateStudent stores the login account and the profile in one write. The
// account's display name is the student's full name.
func (a *studentRepositoryAdapter) CreateStudent(ctx context.Context, student application.Student, passwordHash string) (application.Student, error) {
	user := persistence.User{
		ID:           student.ID,
		Email:        student.Email,
		DisplayName:  student.FullName,
		PasswordHash: passwordHash,
		CreatedAt:    student.CreatedAt,
		UpdatedAt:    student.UpdatedAt,
	}
	if err := a.repo.CreateStudent(ctx, user, toPersistenceStudent(student)); err != nil {
		return application.Student{}, err
	}
	stored, err := a.repo.GetStudent(ctx, student.ID)
	if err != nil {
		return application.Student{}, err
	}
	return toApplicationStudent(stored), nil
}

func (a *studentRepositoryAdapter) GetStudent(ctx context.Context, id string) (application.Student, error) {
	stored, err := a.repo.GetStudent(ctx, id)
	if err != nil {
		return application.Student{}, err
	}
	return toApplicationStudent(stored), nil
}

func (a *studentRepositoryAdapter) GetStudentByRollNumber(ctx context.Context, rollNumber string) (application.Student, error) {
	stored, err := a.repo.GetStudentByRollNumber(ctx, rollNumber)
	if err != nil {
		return application.Student{}, err
	}
	return toApplicationStudent(stored), nil
}

func (a *studentRepositoryAdapter) ListStudents(ctx context.Context) ([]application.Student, error) {
	models, err := a.repo.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	students := make([]application.Student, 0, len(models))
	for _, model := range models {
		students = append(students, toApplicationStudent(model))
	}
	return students, nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.UpdateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

type credentialStoreAdapter struct {
	repo persistence.UserRepository
}

func newCredentialStoreAdapter(repo persistence.UserRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *credentialStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		IsAdmin:     model.IsAdmin,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationRoom(model persistence.Room) application.Room {
	return application.Room{
		ID:               model.ID,
		Block:            model.Block,
		Number:           model.Number,
		Floor:            model.Floor,
		Capacity:         model.Capacity,
		CurrentOccupancy: model.CurrentOccupancy,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceRoom(room application.Room) persistence.Room {
	return persistence.Room{
		ID:               room.ID,
		Block:            room.Block,
		Number:           room.Number,
		Floor:            room.Floor,
		Capacity:         room.Capacity,
		CurrentOccupancy: room.CurrentOccupancy,
		CreatedAt:        room.CreatedAt,
		UpdatedAt:        room.UpdatedAt,
	}
}

func toApplicationStudent(model persistence.Student) application.Student {
	return application.Student{
		ID:         model.ID,
		RollNumber: model.RollNumber,
		FullName:   model.FullName,
		Department: model.Department,
		Email:      model.Email,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func toPersistenceStudent(student application.Student) persistence.Student {
	return persistence.Student{
		ID:         student.ID,
		RollNumber: student.RollNumber,
		FullName:   student.FullName,
		Department: student.Department,
		Email:      student.Email,
		CreatedAt:  student.CreatedAt,
		UpdatedAt:  student.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		Token:       model.Token,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
