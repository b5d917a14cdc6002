package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/hall-allocation/internal/allocation"
	"github.com/example/hall-allocation/internal/persistence"
)

type roomRepoStub struct {
	createErr error
	created   Room

	byLabel  Room
	labelErr error
	looked   [2]string

	deleteErr error
	deletedID string

	list    []Room
	listErr error
}

func (r *roomRepoStub) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if r.createErr != nil {
		return Room{}, r.createErr
	}
	r.created = room
	return room, nil
}

func (r *roomRepoStub) GetRoomByLabel(ctx context.Context, block, number string) (Room, error) {
	r.looked = [2]string{block, number}
	if r.labelErr != nil {
		return Room{}, r.labelErr
	}
	if r.byLabel.ID == "" {
		return Room{}, persistence.ErrNotFound
	}
	return r.byLabel, nil
}

func (r *roomRepoStub) DeleteRoom(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deletedID = id
	return nil
}

func (r *roomRepoStub) ListRooms(ctx context.Context) ([]Room, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if len(r.list) == 0 {
		return nil, nil
	}
	out := make([]Room, len(r.list))
	copy(out, r.list)
	return out, nil
}

func TestRoomService_CreateRoom(t *testing.T) {
	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := NewRoomService(nil, nil, nil)

		_, err := svc.CreateRoom(context.Background(), CreateRoomParams{
			Principal: Principal{IsAdmin: false},
			Input:     RoomInput{Block: "A", Number: "101", Capacity: 2},
		})

		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates required attributes", func(t *testing.T) {
		svc := NewRoomService(nil, nil, nil)

		_, err := svc.CreateRoom(context.Background(), CreateRoomParams{
			Principal: Principal{IsAdmin: true},
			Input:     RoomInput{Block: "   ", Number: "", Floor: -1, Capacity: 7},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"block", "room_number", "floor", "capacity"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects an empty capacity", func(t *testing.T) {
		svc := NewRoomService(nil, nil, nil)

		_, err := svc.CreateRoom(context.Background(), CreateRoomParams{
			Principal: Principal{IsAdmin: true},
			Input:     RoomInput{Block: "A", Number: "101", Capacity: 0},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["capacity"]; !ok {
			t.Fatalf("expected capacity validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("persists normalised rooms for administrators", func(t *testing.T) {
		repo := &roomRepoStub{}
		now := time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC)
		svc := NewRoomService(repo, func() string { return "room-1" }, func() time.Time { return now })

		created, err := svc.CreateRoom(context.Background(), CreateRoomParams{
			Principal: Principal{IsAdmin: true},
			Input:     RoomInput{Block: "  a ", Number: " 101b ", Floor: 1, Capacity: 3},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if repo.created.ID != "room-1" {
			t.Fatalf("expected repository to receive generated ID, got %q", repo.created.ID)
		}
		if repo.created.Block != "A" || repo.created.Number != "101B" {
			t.Fatalf("expected label to be normalised, got %q/%q", repo.created.Block, repo.created.Number)
		}
		if repo.created.Capacity != 3 || repo.created.CurrentOccupancy != 0 {
			t.Fatalf("expected empty room of capacity 3, got %+v", repo.created)
		}
		if !repo.created.CreatedAt.Equal(now) || !repo.created.UpdatedAt.Equal(now) {
			t.Fatalf("expected timestamps to use injected clock, got created=%v updated=%v", repo.created.CreatedAt, repo.created.UpdatedAt)
		}
		if created.ID != "room-1" {
			t.Fatalf("expected returned room to include generated ID, got %q", created.ID)
		}
	})

	t.Run("maps duplicate labels to ErrAlreadyExists", func(t *testing.T) {
		repo := &roomRepoStub{createErr: persistence.ErrDuplicate}
		svc := NewRoomService(repo, nil, nil)

		_, err := svc.CreateRoom(context.Background(), CreateRoomParams{
			Principal: Principal{IsAdmin: true},
			Input:     RoomInput{Block: "A", Number: "101", Capacity: 2},
		})

		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestRoomService_GetRoom(t *testing.T) {
	t.Run("looks rooms up by normalised label", func(t *testing.T) {
		repo := &roomRepoStub{byLabel: Room{ID: "room-1", Block: "A", Number: "101", Capacity: 2}}
		svc := NewRoomService(repo, nil, nil)

		room, err := svc.GetRoom(context.Background(), RoomRef{Block: "a", RoomNumber: " 101 "})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if room.ID != "room-1" {
			t.Fatalf("expected room-1, got %+v", room)
		}
		if repo.looked != [2]string{"A", "101"} {
			t.Fatalf("expected normalised lookup, got %v", repo.looked)
		}
	})

	t.Run("reports missing rooms", func(t *testing.T) {
		svc := NewRoomService(&roomRepoStub{}, nil, nil)

		_, err := svc.GetRoom(context.Background(), RoomRef{Block: "Z", RoomNumber: "999"})
		if !errors.Is(err, allocation.ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestRoomService_DeleteRoom(t *testing.T) {
	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := NewRoomService(nil, nil, nil)

		err := svc.DeleteRoom(context.Background(), Principal{IsAdmin: false}, "room-1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("propagates ErrNotFound when the room is missing", func(t *testing.T) {
		repo := &roomRepoStub{deleteErr: persistence.ErrNotFound}
		svc := NewRoomService(repo, nil, nil)

		err := svc.DeleteRoom(context.Background(), Principal{IsAdmin: true}, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("refuses to delete occupied rooms", func(t *testing.T) {
		repo := &roomRepoStub{deleteErr: persistence.ErrConstraintViolation}
		svc := NewRoomService(repo, nil, nil)

		err := svc.DeleteRoom(context.Background(), Principal{IsAdmin: true}, "room-1")
		if !errors.Is(err, ErrRoomOccupied) {
			t.Fatalf("expected ErrRoomOccupied, got %v", err)
		}
		if !errors.Is(err, allocation.ErrPreconditionFailed) {
			t.Fatalf("expected precondition category, got %v", err)
		}
	})

	t.Run("allows administrators to delete rooms", func(t *testing.T) {
		repo := &roomRepoStub{}
		svc := NewRoomService(repo, nil, nil)

		if err := svc.DeleteRoom(context.Background(), Principal{IsAdmin: true}, "room-1"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if repo.deletedID != "room-1" {
			t.Fatalf("expected repository to receive room ID, got %q", repo.deletedID)
		}
	})
}

func TestRoomService_ListRooms(t *testing.T) {
	t.Run("is accessible to students", func(t *testing.T) {
		rooms := []Room{{ID: "room-1", Block: "A", Number: "101", Capacity: 2}}
		repo := &roomRepoStub{list: rooms}
		svc := NewRoomService(repo, nil, nil)

		got, err := svc.ListRooms(context.Background(), Principal{UserID: "S1", IsAdmin: false})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(got) != 1 || got[0].ID != "room-1" {
			t.Fatalf("expected rooms to be returned, got %v", got)
		}
	})

	t.Run("orders rooms by block then number", func(t *testing.T) {
		repo := &roomRepoStub{list: []Room{
			{ID: "room-b101", Block: "B", Number: "101"},
			{ID: "room-a102", Block: "A", Number: "102"},
			{ID: "room-a101", Block: "A", Number: "101"},
		}}
		svc := NewRoomService(repo, nil, nil)

		got, err := svc.ListRooms(context.Background(), Principal{UserID: "S1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(got) != 3 {
			t.Fatalf("expected three rooms, got %d", len(got))
		}
		if got[0].ID != "room-a101" || got[1].ID != "room-a102" || got[2].ID != "room-b101" {
			t.Fatalf("expected label ordering, got %+v", got)
		}
	})
}

func TestRoom_AvailableBeds(t *testing.T) {
	if got := (Room{Capacity: 3, CurrentOccupancy: 1}).AvailableBeds(); got != 2 {
		t.Fatalf("expected 2 available beds, got %d", got)
	}
	if got := (Room{Capacity: 2, CurrentOccupancy: 3}).AvailableBeds(); got != 0 {
		t.Fatalf("expected over-full room to report 0, got %d", got)
	}
}

func TestMapRoomRepoError(t *testing.T) {
	unexpected := errors.New("boom")

	tests := map[string]struct {
		err      error
		expected error
	}{
		"nil":                   {err: nil, expected: nil},
		"application not found": {err: ErrNotFound, expected: allocation.ErrRoomNotFound},
		"persistence not found": {err: persistence.ErrNotFound, expected: allocation.ErrRoomNotFound},
		"duplicate":             {err: persistence.ErrDuplicate, expected: ErrAlreadyExists},
		"constraint":            {err: persistence.ErrConstraintViolation, expected: ErrRoomOccupied},
		"unexpected":            {err: unexpected, expected: unexpected},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result := mapRoomRepoError(tc.err)
			if tc.expected == nil {
				if result != nil {
					t.Fatalf("expected nil, got %v", result)
				}
				return
			}
			if !errors.Is(result, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, result)
			}
		})
	}
}
