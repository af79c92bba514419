package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/profile"
	"github.com/kalambet/charbot/internal/session"
)

// GenerateRequest carries the full character profile with each message, so
// the endpoint works without a stored catalogue.
type GenerateRequest struct {
	UserMessage      string           `json:"user_message"`
	CharacterName    string           `json:"character_name"`
	Favorability     *int             `json:"favorability"`
	CharacterLikes   *int             `json:"character_likes"`
	Appearance       any              `json:"appearance"`
	Personality      any              `json:"personality"`
	Background       any              `json:"background"`
	SpeechStyle      any              `json:"speech_style"`
	ExampleDialogues any              `json:"example_dialogues"`
	ChatHistory      []affinity.Entry `json:"chat_history"`
	SessionID        string           `json:"session_id"`
}

type GenerateResponse struct {
	Text         string `json:"text"`
	Emotion      string `json:"emotion"`
	Favorability int    `json:"favorability"`
}

func (req GenerateRequest) favorability() int {
	switch {
	case req.Favorability != nil:
		return *req.Favorability
	case req.CharacterLikes != nil:
		return *req.CharacterLikes
	}
	return 0
}

func (req GenerateRequest) character() profile.Character {
	return profile.Character{
		Name:             req.CharacterName,
		Appearance:       req.Appearance,
		Personality:      req.Personality,
		Background:       req.Background,
		SpeechStyle:      req.SpeechStyle,
		ExampleDialogues: asList(req.ExampleDialogues),
	}
}

// asList accepts a JSON array or a single value for example dialogues.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.UserMessage) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_message is required")
			return
		}
		if strings.TrimSpace(req.CharacterName) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "character_name is required")
			return
		}

		seed := &session.Conversation{
			Affinity: affinity.Clamp(req.favorability()),
			History:  req.ChatHistory,
		}
		reply, err := runTurn(r.Context(), deps, req.SessionID, seed, req.character(), req.UserMessage)
		if err != nil {
			turnError(w, reply, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateResponse{
			Text:         reply.Text,
			Emotion:      string(reply.Emotion),
			Favorability: reply.Affinity,
		})
	}
}
