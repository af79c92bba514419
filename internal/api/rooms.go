package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kalambet/charbot/internal/pipeline"
	"github.com/kalambet/charbot/internal/storage"
)

const senderUser = "user"

type roomResponse struct {
	ID            string    `json:"id"`
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	CreatedAt     time.Time `json:"created_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func toRoomResponse(r storage.ChatRoom) roomResponse {
	return roomResponse{
		ID:            r.ID,
		CharacterID:   r.CharacterID,
		CharacterName: r.CharacterName,
		CreatedAt:     r.CreatedAt,
	}
}

func handleCreateRoom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			CharacterID int64 `json:"character_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		ch, err := deps.Characters.Get(req.CharacterID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "character %d not found", req.CharacterID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading character: %v", err)
			return
		}

		room := storage.ChatRoom{
			ID:            uuid.New().String(),
			CharacterID:   ch.ID,
			CharacterName: ch.Name,
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
		}
		if err := deps.Rooms.CreateRoom(room); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating room: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toRoomResponse(room))
	}
}

func handleGetRoom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		room, err := deps.Rooms.GetRoom(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "room %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading room: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toRoomResponse(room))
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Rooms.GetRoom(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "room %s not found", id)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading room: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)
		msgs, err := deps.Rooms.ListMessages(id, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing messages: %v", err)
			return
		}

		out := make([]messageResponse, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, messageResponse{
				ID:        m.ID,
				Sender:    m.Sender,
				Content:   m.Content,
				Emotion:   m.Emotion,
				Timestamp: m.Timestamp,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
	}
}

// handlePostMessage runs a chat turn inside a room. The room id doubles as
// the session id, so affinity carries across the room's messages.
func handlePostMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		room, err := deps.Rooms.GetRoom(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "room %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading room: %v", err)
			return
		}
		ch, err := deps.Characters.Get(room.CharacterID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading character: %v", err)
			return
		}

		reply, err := runTurn(r.Context(), deps, room.ID, nil, ch, req.Message)
		if err != nil && !errors.Is(err, pipeline.ErrGeneration) {
			turnError(w, reply, err)
			return
		}

		now := time.Now()
		saveErr := deps.Rooms.SaveMessage(storage.Message{
			ID:        uuid.New().String(),
			RoomID:    room.ID,
			Sender:    senderUser,
			Content:   req.Message,
			Emotion:   string(reply.Emotion),
			Timestamp: now,
		})
		if saveErr != nil {
			slog.Warn("saving user message", "room", room.ID, "error", saveErr)
		}
		if err != nil {
			turnError(w, reply, err)
			return
		}

		saveErr = deps.Rooms.SaveMessage(storage.Message{
			ID:        uuid.New().String(),
			RoomID:    room.ID,
			Sender:    ch.Name,
			Content:   reply.Text,
			Timestamp: now.Add(time.Millisecond),
		})
		if saveErr != nil {
			slog.Warn("saving character reply", "room", room.ID, "error", saveErr)
		}

		writeJSON(w, http.StatusOK, GenerateResponse{
			Text:         reply.Text,
			Emotion:      string(reply.Emotion),
			Favorability: reply.Affinity,
		})
	}
}
