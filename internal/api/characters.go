package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/charbot/internal/profile"
	"github.com/kalambet/charbot/internal/storage"
)

func handleListCharacters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chars, err := deps.Characters.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing characters: %v", err)
			return
		}
		if chars == nil {
			chars = []profile.Character{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"characters": chars})
	}
}

func handleCreateCharacter(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var c profile.Character
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		created, err := deps.Characters.Create(c)
		if errors.Is(err, profile.ErrInvalidCharacter) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating character: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetCharacter(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid character id")
			return
		}
		c, err := deps.Characters.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "character %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading character: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleLikeCharacter(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid character id")
			return
		}
		likes, err := deps.Characters.Like(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "character %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "liking character: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "likes": likes})
	}
}
