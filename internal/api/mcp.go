package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/pipeline"
	"github.com/kalambet/charbot/internal/session"
	"github.com/kalambet/charbot/internal/storage"
)

// NewMCPServer creates an MCP server exposing character chat as tools and the
// character catalogue as a resource.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"charbot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("charbot: chat with stored characters that remember how much they like you."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message to a stored character and get its in-character reply, emotion and favorability."),
			mcp.WithNumber("character_id", mcp.Description("Character id from charbot://characters"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation id (default mcp-<character_id>)")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Show the favorability, address term and history of a conversation."),
			mcp.WithString("session_id", mcp.Description("Conversation id"), mcp.Required()),
		),
		mcpGetSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"charbot://characters",
			"Characters",
			mcp.WithResourceDescription("Active characters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCharacters(deps),
	)

	return s
}

type mcpChatResult struct {
	Text         string               `json:"text"`
	Emotion      string               `json:"emotion"`
	Favorability int                  `json:"favorability"`
	AddressTerm  affinity.AddressTerm `json:"address_term"`
	SessionID    string               `json:"session_id"`
}

func mcpChat(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("character_id", 0)
		if id <= 0 {
			return mcpError("character_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil || message == "" {
			return mcpError("message is required"), nil
		}
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			sessionID = fmt.Sprintf("mcp-%d", id)
		}

		ch, err := deps.Characters.Get(int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("character %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load character: %v", err)), nil
		}

		reply, err := runTurn(ctx, deps, sessionID, nil, ch, message)
		if errors.Is(err, pipeline.ErrGeneration) {
			return mcpError(fmt.Sprintf("generation failed (emotion %s, favorability %d): %v", reply.Emotion, reply.Affinity, err)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		b, err := json.Marshal(mcpChatResult{
			Text:         reply.Text,
			Emotion:      string(reply.Emotion),
			Favorability: reply.Affinity,
			AddressTerm:  reply.AddressTerm,
			SessionID:    sessionID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSession(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Sessions == nil {
			return mcpError("sessions are not enabled"), nil
		}
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcpError("session_id is required"), nil
		}

		c, err := deps.Sessions.Get(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			return mcpError(fmt.Sprintf("session %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load session: %v", err)), nil
		}

		b, err := json.Marshal(sessionResponse{
			Conversation: c,
			AddressTerm:  affinity.ResolveAddressTerm(c.Affinity),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCharacters(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		chars, err := deps.Characters.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list characters: %w", err)
		}

		type characterSummary struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			Field       string `json:"field,omitempty"`
			Description string `json:"description,omitempty"`
			Likes       int    `json:"likes"`
		}
		summaries := make([]characterSummary, len(chars))
		for i, c := range chars {
			summaries[i] = characterSummary{
				ID:          c.ID,
				Name:        c.Name,
				Field:       c.Field,
				Description: c.Description,
				Likes:       c.Likes,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal characters: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
