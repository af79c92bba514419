package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kalambet/charbot/internal/pipeline"
	"github.com/kalambet/charbot/internal/profile"
	"github.com/kalambet/charbot/internal/session"
	"github.com/kalambet/charbot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Responder runs one chat turn. Implemented by pipeline.Responder.
type Responder interface {
	Respond(ctx context.Context, req pipeline.Request) (pipeline.Reply, error)
}

// Characters is the character catalogue. Implemented by profile.Manager.
type Characters interface {
	Create(c profile.Character) (profile.Character, error)
	Get(id int64) (profile.Character, error)
	List() ([]profile.Character, error)
	Like(id int64) (int, error)
}

// RoomStore persists chat rooms and their message log. Implemented by
// storage.Store.
type RoomStore interface {
	CreateRoom(r storage.ChatRoom) error
	GetRoom(id string) (storage.ChatRoom, error)
	SaveMessage(m storage.Message) error
	ListMessages(roomID string, limit, offset int) ([]storage.Message, error)
}

type Deps struct {
	Responder   Responder
	Characters  Characters
	Rooms       RoomStore
	Sessions    *session.Manager // optional; nil makes /generate stateless and disables /sessions
	EngineName  string
	CORSOrigins []string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth(deps))

	r.Post("/generate", handleGenerate(deps))
	r.Post("/generate/", handleGenerate(deps))

	r.Route("/characters", func(r chi.Router) {
		r.Get("/", handleListCharacters(deps))
		r.Post("/", handleCreateCharacter(deps))
		r.Get("/{id}", handleGetCharacter(deps))
		r.Post("/{id}/like", handleLikeCharacter(deps))
	})

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", handleCreateRoom(deps))
		r.Get("/{id}", handleGetRoom(deps))
		r.Get("/{id}/messages", handleListMessages(deps))
		r.Post("/{id}/messages", handlePostMessage(deps))
	})

	if deps.Sessions != nil {
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Delete("/sessions/{id}", handleDeleteSession(deps))
	}

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"engine": deps.EngineName,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": errorBody(errType, fmt.Sprintf(format, args...)),
	})
}

func errorBody(errType, msg string) map[string]any {
	return map[string]any{
		"message": msg,
		"type":    errType,
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
