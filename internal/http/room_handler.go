package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/hall-allocation/internal/application"
)

type roomService interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error)
	GetRoom(ctx context.Context, ref application.RoomRef) (application.Room, error)
	DeleteRoom(ctx context.Context, principal application.Principal, roomID string) error
	ListRooms(ctx context.Context, principal application.Principal) ([]application.Room, error)
}

// occupancyService is the part of the allocation engine that reads and
// reshapes a single room.
type occupancyService interface {
	GetRoomLayout(ctx context.Context, ref application.RoomRef) (application.RoomLayout, error)
	GetBedStatus(ctx context.Context, ref application.RoomRef) ([]application.BedStatus, error)
	ResizeCapacity(ctx context.Context, params application.ResizeCapacityParams) (application.ResizeResult, error)
}

type RoomHandler struct {
	service   roomService
	occupancy occupancyService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, occupancy occupancyService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, occupancy: occupancy, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req roomRequest
	if err := decodeRequest(r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "invalid room request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	room, err := h.service.CreateRoom(r.Context(), application.CreateRoomParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "room creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("room_id", room.ID).InfoContext(r.Context(), "room created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ref := roomRefFromPath(r, principal)
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "block", ref.Block, "room_number", ref.RoomNumber)

	room, err := h.service.GetRoom(r.Context(), ref)
	if err == nil {
		err = h.service.DeleteRoom(r.Context(), principal, room.ID)
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "room deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	rooms, err := h.service.ListRooms(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "room listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		dtos = append(dtos, toRoomDTO(room))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomListResponse{Rooms: dtos})
}

func (h *RoomHandler) Layout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.occupancy == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ref := roomRefFromPath(r, principal)

	layout, err := h.occupancy.GetRoomLayout(r.Context(), ref)
	if err != nil {
		h.log(r.Context(), "Layout", "block", ref.Block, "room_number", ref.RoomNumber).ErrorContext(r.Context(), "room layout failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toLayoutDTO(layout))
}

func (h *RoomHandler) Beds(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.occupancy == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ref := roomRefFromPath(r, principal)

	beds, err := h.occupancy.GetBedStatus(r.Context(), ref)
	if err != nil {
		h.log(r.Context(), "Beds", "block", ref.Block, "room_number", ref.RoomNumber).ErrorContext(r.Context(), "bed status failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]bedDTO, 0, len(beds))
	for _, bed := range beds {
		dtos = append(dtos, bedDTO{
			Bed:         bed.Bed,
			Occupied:    bed.Occupied,
			StudentID:   bed.StudentID,
			StudentName: bed.StudentName,
			RollNumber:  bed.RollNumber,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bedListResponse{Beds: dtos})
}

func (h *RoomHandler) ResizeCapacity(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.occupancy == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ref := roomRefFromPath(r, principal)
	logger := h.log(r.Context(), "ResizeCapacity", "principal_id", principal.UserID, "block", ref.Block, "room_number", ref.RoomNumber)

	var req capacityRequest
	if err := decodeRequest(r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid capacity request", "error", err)
		h.responder.writeDecodeError(r, w, err)
		return
	}

	result, err := h.occupancy.ResizeCapacity(r.Context(), application.ResizeCapacityParams{
		Principal:  principal,
		Block:      ref.Block,
		RoomNumber: ref.RoomNumber,
		Capacity:   *req.Capacity,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "capacity change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "capacity changed", "old_capacity", result.OldCapacity, "new_capacity", result.NewCapacity)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resizeResponse{
		RoomID:      result.RoomID,
		Block:       result.Block,
		RoomNumber:  result.RoomNumber,
		OldCapacity: result.OldCapacity,
		NewCapacity: result.NewCapacity,
	})
}

func roomRefFromPath(r *http.Request, principal application.Principal) application.RoomRef {
	return application.RoomRef{
		Principal:  principal,
		Block:      r.PathValue("block"),
		RoomNumber: r.PathValue("number"),
	}
}

type roomRequest struct {
	Block    string `json:"block" validate:"required,max=16"`
	Number   string `json:"room_number" validate:"required,max=16"`
	Floor    int    `json:"floor" validate:"gte=0"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=6"`
}

func (r roomRequest) toInput() application.RoomInput {
	return application.RoomInput{
		Block:    r.Block,
		Number:   r.Number,
		Floor:    r.Floor,
		Capacity: r.Capacity,
	}
}

type capacityRequest struct {
	Capacity *int `json:"capacity" validate:"required"`
}

type roomDTO struct {
	ID               string `json:"id"`
	Block            string `json:"block"`
	RoomNumber       string `json:"room_number"`
	Floor            int    `json:"floor"`
	Capacity         int    `json:"capacity"`
	CurrentOccupancy int    `json:"current_occupancy"`
	AvailableBeds    int    `json:"available_beds"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type roomResponse struct {
	Room roomDTO `json:"room"`
}

type roomListResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roommateDTO struct {
	StudentID  string `json:"student_id"`
	FullName   string `json:"full_name"`
	RollNumber string `json:"roll_number"`
	Bed        int    `json:"bed"`
	AssignedAt string `json:"assigned_at"`
}

type layoutResponse struct {
	RoomID           string        `json:"room_id"`
	Block            string        `json:"block"`
	RoomNumber       string        `json:"room_number"`
	Floor            int           `json:"floor"`
	Capacity         int           `json:"capacity"`
	CurrentOccupancy int           `json:"current_occupancy"`
	AvailableBeds    int           `json:"available_beds"`
	AllocatedBeds    []int         `json:"allocated_beds"`
	Roommates        []roommateDTO `json:"roommates"`
}

type bedDTO struct {
	Bed         int    `json:"bed"`
	Occupied    bool   `json:"occupied"`
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	RollNumber  string `json:"roll_number,omitempty"`
}

type bedListResponse struct {
	Beds []bedDTO `json:"beds"`
}

type resizeResponse struct {
	RoomID      string `json:"room_id"`
	Block       string `json:"block"`
	RoomNumber  string `json:"room_number"`
	OldCapacity int    `json:"old_capacity"`
	NewCapacity int    `json:"new_capacity"`
}

func toRoomDTO(room application.Room) roomDTO {
	return roomDTO{
		ID:               room.ID,
		Block:            room.Block,
		RoomNumber:       room.Number,
		Floor:            room.Floor,
		Capacity:         room.Capacity,
		CurrentOccupancy: room.CurrentOccupancy,
		AvailableBeds:    room.AvailableBeds(),
		CreatedAt:        formatTimestamp(room.CreatedAt),
		UpdatedAt:        formatTimestamp(room.UpdatedAt),
	}
}

func toLayoutDTO(layout application.RoomLayout) layoutResponse {
	resp := layoutResponse{
		RoomID:           layout.RoomID,
		Block:            layout.Block,
		RoomNumber:       layout.RoomNumber,
		Floor:            layout.Floor,
		Capacity:         layout.Capacity,
		CurrentOccupancy: layout.CurrentOccupancy,
		AvailableBeds:    layout.AvailableBeds,
		AllocatedBeds:    append([]int{}, layout.AllocatedBeds...),
		Roommates:        make([]roommateDTO, 0, len(layout.Roommates)),
	}
	for _, mate := range layout.Roommates {
		resp.Roommates = append(resp.Roommates, roommateDTO{
			StudentID:  mate.StudentID,
			FullName:   mate.FullName,
			RollNumber: mate.RollNumber,
			Bed:        mate.Bed,
			AssignedAt: formatTimestamp(mate.AssignedAt),
		})
	}
	return resp
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
