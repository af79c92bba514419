package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kalambet/charbot/internal/pipeline"
	"github.com/kalambet/charbot/internal/profile"
	"github.com/kalambet/charbot/internal/session"
)

// runTurn executes one pipeline turn. With a session id and a session
// manager, the stored state is used and updated (seed only initialises a new
// session); otherwise seed alone drives a stateless turn.
func runTurn(ctx context.Context, deps Deps, sessionID string, seed *session.Conversation, ch profile.Character, message string) (pipeline.Reply, error) {
	if sessionID == "" || deps.Sessions == nil {
		req := pipeline.Request{Character: ch, Message: message}
		if seed != nil {
			req.Affinity = seed.Affinity
			req.History = seed.History
		}
		return deps.Responder.Respond(ctx, req)
	}

	var reply pipeline.Reply
	_, err := deps.Sessions.Turn(ctx, sessionID, seed, func(c *session.Conversation) error {
		r, err := deps.Responder.Respond(ctx, pipeline.Request{
			Character: ch,
			Message:   message,
			Affinity:  c.Affinity,
			History:   c.History,
		})
		reply = r
		if err != nil && !errors.Is(err, pipeline.ErrGeneration) {
			return err
		}
		c.Affinity = r.Affinity
		c.History = r.History
		return err
	})
	return reply, err
}

// turnError renders a failed turn. Generation failures still report the
// computed emotion and favorability.
func turnError(w http.ResponseWriter, reply pipeline.Reply, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, pipeline.ErrGeneration):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":        errorBody("api_error", err.Error()),
			"emotion":      reply.Emotion,
			"favorability": reply.Affinity,
		})
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "chat turn failed: %v", err)
	}
}
