package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/testfixtures"
)

const sampleInventory = `
rooms:
  - block: A
    number: "101"
    floor: 1
    capacity: 2
  - block: A
    number: "102"
    floor: 1
    capacity: 3
admins:
  - email: Warden@Hall.example.edu
    display_name: Chief Warden
    password: correct-horse
`

// roomCreatorStub remembers labels and reports repeats as duplicates.
type roomCreatorStub struct {
	seen  map[string]bool
	calls []application.CreateRoomParams
}

func (s *roomCreatorStub) CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error) {
	s.calls = append(s.calls, params)
	key := params.Input.Block + "-" + params.Input.Number
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[key] {
		return application.Room{}, application.ErrAlreadyExists
	}
	s.seen[key] = true
	return application.Room{ID: key, Block: params.Input.Block, Number: params.Input.Number, Capacity: params.Input.Capacity}, nil
}

func TestParse(t *testing.T) {
	t.Run("decodes rooms and admins", func(t *testing.T) {
		inv, err := Parse([]byte(sampleInventory))
		require.NoError(t, err)
		require.Len(t, inv.Rooms, 2)
		assert.Equal(t, RoomEntry{Block: "A", Number: "102", Floor: 1, Capacity: 3}, inv.Rooms[1])
		require.Len(t, inv.Admins, 1)
		assert.Equal(t, "Chief Warden", inv.Admins[0].DisplayName)
	})

	t.Run("accepts an empty document", func(t *testing.T) {
		inv, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, inv.Rooms)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		_, err := Parse([]byte("rooms:\n  - block: A\n    beds: 2\n"))
		require.Error(t, err)
	})

	t.Run("rejects weak admin passwords", func(t *testing.T) {
		_, err := Parse([]byte("admins:\n  - email: w@hall.example.edu\n    password: short\n"))
		require.ErrorContains(t, err, "admins[0]")
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleInventory), 0o600))

	inv, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, inv.Rooms, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "missing.yaml")
}

func TestSeederApply(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	rooms := &roomCreatorStub{}
	ids := testfixtures.NewIDGenerator("admin")
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	plain := func(password string) (string, error) { return "hashed:" + password, nil }

	seeder := NewSeeder(rooms, harness.Users, ids.NextFunc(), clock.NowFunc(), plain, nil)

	inv, err := Parse([]byte(sampleInventory))
	require.NoError(t, err)

	report, err := seeder.Apply(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, Report{RoomsCreated: 2, AdminsCreated: 1}, report)

	for _, call := range rooms.calls {
		assert.True(t, call.Principal.IsAdmin, "rooms must be created with admin rights")
	}

	admin, err := harness.Users.GetUserByEmail(ctx, "warden@hall.example.edu")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, "Chief Warden", admin.DisplayName)
	assert.Equal(t, "hashed:correct-horse", admin.PasswordHash)

	again, err := seeder.Apply(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, Report{RoomsSkipped: 2, AdminsSkipped: 1}, again)
}

func TestSeederApplyStopsOnInvalidRoom(t *testing.T) {
	harness := testfixtures.NewSQLiteHarness(t)
	rooms := application.NewRoomService(nil, nil, nil)
	seeder := NewSeeder(rooms, harness.Users, testfixtures.NewIDGenerator("admin").NextFunc(), nil, nil, nil)

	_, err := seeder.Apply(context.Background(), Inventory{Rooms: []RoomEntry{{Block: "A", Number: "101", Capacity: 9}}})

	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "capacity")
	assert.ErrorContains(t, err, "rooms[0] A-101")
}
