package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/models"
	"github.com/eldtechnologies/roomchat/internal/store"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// ListRooms returns the room directory.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.db.ListRooms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list rooms failed")
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	h.JSON(w, http.StatusOK, rooms)
}

// CreateRoom creates a uniquely named room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = models.CleanName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if utf8.RuneCountInString(req.Name) > models.MaxRoomNameLength {
		h.Error(w, http.StatusBadRequest, fmt.Sprintf("name must be at most %d characters", models.MaxRoomNameLength))
		return
	}

	room, err := h.db.CreateRoom(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRoom) {
			h.Error(w, http.StatusConflict, "room with this name already exists")
			return
		}
		h.logger.Error().Err(err).Str("name", req.Name).Msg("create room failed")
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	metrics.RoomsCreated.Inc()
	h.logger.Info().Int64("room", room.ID).Str("name", room.Name).Msg("room created")
	h.JSON(w, http.StatusCreated, room)
}
