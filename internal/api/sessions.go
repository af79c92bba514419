package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/session"
)

type sessionResponse struct {
	session.Conversation
	AddressTerm affinity.AddressTerm `json:"address_term"`
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := deps.Sessions.Get(r.Context(), id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			Conversation: c,
			AddressTerm:  affinity.ResolveAddressTerm(c.Affinity),
		})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Sessions.Reset(r.Context(), id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
