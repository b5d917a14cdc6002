// Package seed loads the initial hall inventory and warden accounts from a
// YAML file at startup. Applying the same file twice is a no-op.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/persistence"
)

// Inventory is the document shape of a seed file.
type Inventory struct {
	Rooms  []RoomEntry  `yaml:"rooms"`
	Admins []AdminEntry `yaml:"admins"`
}

// RoomEntry describes one room.
type RoomEntry struct {
	Block    string `yaml:"block"`
	Number   string `yaml:"number"`
	Floor    int    `yaml:"floor"`
	Capacity int    `yaml:"capacity"`
}

// AdminEntry describes one warden account.
type AdminEntry struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
}

// Report counts what Apply changed.
type Report struct {
	RoomsCreated  int
	RoomsSkipped  int
	AdminsCreated int
	AdminsSkipped int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Inventory{}, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	inv, err := Parse(data)
	if err != nil {
		return Inventory{}, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return inv, nil
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (Inventory, error) {
	var inv Inventory
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&inv); err != nil && !errors.Is(err, io.EOF) {
		return Inventory{}, err
	}
	for i, admin := range inv.Admins {
		if strings.TrimSpace(admin.Email) == "" {
			return Inventory{}, fmt.Errorf("admins[%d]: email is required", i)
		}
		if len(admin.Password) < 8 {
			return Inventory{}, fmt.Errorf("admins[%d]: password must be at least 8 characters", i)
		}
	}
	return inv, nil
}

// RoomCreator is the subset of the room service used for seeding.
type RoomCreator interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error)
}

// Seeder writes an Inventory through the room service and user repository.
type Seeder struct {
	rooms        RoomCreator
	users        persistence.UserRepository
	idGenerator  func() string
	now          func() time.Time
	hashPassword func(string) (string, error)
	logger       *slog.Logger
}

// NewSeeder wires a Seeder. A nil hashPassword uses application.HashPassword.
func NewSeeder(rooms RoomCreator, users persistence.UserRepository, idGenerator func() string, now func() time.Time, hashPassword func(string) (string, error), logger *slog.Logger) *Seeder {
	if now == nil {
		now = time.Now
	}
	if hashPassword == nil {
		hashPassword = application.HashPassword
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		rooms:        rooms,
		users:        users,
		idGenerator:  idGenerator,
		now:          now,
		hashPassword: hashPassword,
		logger:       logger.With("component", "seed"),
	}
}

// Apply creates the rooms and admins that do not exist yet.
func (s *Seeder) Apply(ctx context.Context, inv Inventory) (Report, error) {
	var report Report
	system := application.Principal{UserID: "seed", IsAdmin: true}

	for i, entry := range inv.Rooms {
		_, err := s.rooms.CreateRoom(ctx, application.CreateRoomParams{
			Principal: system,
			Input: application.RoomInput{
				Block:    entry.Block,
				Number:   entry.Number,
				Floor:    entry.Floor,
				Capacity: entry.Capacity,
			},
		})
		switch {
		case err == nil:
			report.RoomsCreated++
		case errors.Is(err, application.ErrAlreadyExists):
			report.RoomsSkipped++
		default:
			return report, fmt.Errorf("rooms[%d] %s-%s: %w", i, entry.Block, entry.Number, err)
		}
	}

	for i, entry := range inv.Admins {
		email := strings.ToLower(strings.TrimSpace(entry.Email))
		_, err := s.users.GetUserByEmail(ctx, email)
		if err == nil {
			report.AdminsSkipped++
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return report, fmt.Errorf("admins[%d]: %w", i, err)
		}

		hash, err := s.hashPassword(entry.Password)
		if err != nil {
			return report, fmt.Errorf("admins[%d]: hash password: %w", i, err)
		}
		name := strings.TrimSpace(entry.DisplayName)
		if name == "" {
			name = email
		}
		at := s.now()
		user := persistence.User{
			ID:           s.idGenerator(),
			Email:        email,
			DisplayName:  name,
			PasswordHash: hash,
			IsAdmin:      true,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return report, fmt.Errorf("admins[%d]: %w", i, err)
		}
		report.AdminsCreated++
	}

	s.logger.InfoContext(ctx, "seed applied",
		"rooms_created", report.RoomsCreated,
		"rooms_skipped", report.RoomsSkipped,
		"admins_created", report.AdminsCreated,
		"admins_skipped", report.AdminsSkipped,
	)
	return report, nil
}
