package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/charbot/internal/api"
	"github.com/kalambet/charbot/internal/config"
	"github.com/kalambet/charbot/internal/engine"
	"github.com/kalambet/charbot/internal/profile"
)

// --- chat ---

type roomInfo struct {
	ID            string `json:"id"`
	CharacterID   int64  `json:"character_id"`
	CharacterName string `json:"character_name"`
}

type chatReply struct {
	Text         string `json:"text"`
	Emotion      string `json:"emotion"`
	Favorability int    `json:"favorability"`
}

var chatCmd = &cobra.Command{
	Use:   "chat <character-id>",
	Short: "Chat with a character interactively",
	Long: `Chat with a character interactively.

Opens a new chat room unless --room is given. Type /quit or press Ctrl-D to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid character id %q", args[0])
		}
		roomID, _ := cmd.Flags().GetString("room")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		room, err := openRoom(ctx, client, id, roomID)
		if err != nil {
			return err
		}
		printStep("Room %s with %s", room.ID, room.CharacterName)

		for {
			prompt := promptui.Prompt{Label: "you"}
			msg, err := prompt.Run()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			if err != nil {
				return err
			}
			msg = strings.TrimSpace(msg)
			if msg == "" {
				continue
			}
			if msg == "/quit" {
				return nil
			}

			reply, err := sendMessage(ctx, client, room.ID, msg)
			if err != nil {
				printError("%v", err)
				continue
			}
			printReply(os.Stdout, room.CharacterName, reply)
		}
	},
}

func openRoom(ctx context.Context, client *apiClient, characterID int64, roomID string) (roomInfo, error) {
	var room roomInfo
	if roomID != "" {
		resp, err := client.get(ctx, "/rooms/"+roomID)
		if err != nil {
			return room, err
		}
		err = decodeJSON(resp, &room)
		if err == nil && room.CharacterID != characterID {
			return room, fmt.Errorf("room %s belongs to character %d", roomID, room.CharacterID)
		}
		return room, err
	}
	resp, err := client.post(ctx, "/rooms", map[string]any{"character_id": characterID})
	if err != nil {
		return room, err
	}
	return room, decodeJSON(resp, &room)
}

func sendMessage(ctx context.Context, client *apiClient, roomID, msg string) (chatReply, error) {
	var reply chatReply
	resp, err := client.post(ctx, "/rooms/"+roomID+"/messages", map[string]any{"message": msg})
	if err != nil {
		return reply, err
	}
	return reply, decodeJSON(resp, &reply)
}

func init() {
	chatCmd.Flags().String("room", "", "continue an existing room")
}

// --- character ---

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Manage characters",
}

var characterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active characters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/characters")
		if err != nil {
			return err
		}
		var result struct {
			Characters []profile.Character `json:"characters"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Characters) == 0 {
			fmt.Println("No characters found.")
			return nil
		}
		for _, c := range result.Characters {
			fmt.Printf("  %s  %s  %s  ♥ %d\n",
				colorize(colorBold, strconv.FormatInt(c.ID, 10)), c.Name, c.Field, c.Likes)
		}
		return nil
	},
}

var characterShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a character as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/characters/"+args[0])
		if err != nil {
			return err
		}
		var c any
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

var characterImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import characters from a YAML file",
	Long: `Import characters from a YAML file.

The file holds either one character or a list of them:

  name: Mina
  field: romance
  personality:
    mbti: ENFP
  speech_style: casual, lots of emoticons
  example_dialogues:
    - "안녕! 오늘 어땠어?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		chars, err := parseCharacters(f)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		for _, c := range chars {
			resp, err := client.post(cmd.Context(), "/characters", c)
			if err != nil {
				return err
			}
			var created profile.Character
			if err := decodeJSON(resp, &created); err != nil {
				return fmt.Errorf("importing %q: %w", c.Name, err)
			}
			printSuccess("Imported %s (id %d)", created.Name, created.ID)
		}
		return nil
	},
}

// parseCharacters reads a single YAML character or a list of them.
func parseCharacters(r io.Reader) ([]profile.Character, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("no characters in file")
	}

	var chars []profile.Character
	if node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Content[0].Decode(&chars); err != nil {
			return nil, fmt.Errorf("decoding characters: %w", err)
		}
	} else {
		var c profile.Character
		if err := node.Content[0].Decode(&c); err != nil {
			return nil, fmt.Errorf("decoding character: %w", err)
		}
		chars = append(chars, c)
	}

	for i, c := range chars {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("character %d: %w", i+1, err)
		}
	}
	return chars, nil
}

func init() {
	characterCmd.AddCommand(characterListCmd)
	characterCmd.AddCommand(characterShowCmd)
	characterCmd.AddCommand(characterImportCmd)
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset conversation state",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show favorability and history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		var s struct {
			ID          string `json:"id"`
			Affinity    int    `json:"affinity"`
			AddressTerm string `json:"address_term"`
			History     []struct {
				Message   string `json:"message"`
				Emotion   string `json:"emotion"`
				Timestamp string `json:"timestamp"`
			} `json:"history"`
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		printStatus("Session", "%s", s.ID)
		printStatus("Favorability", "%d (%s)", s.Affinity, s.AddressTerm)
		printStatus("Turns", "%d", len(s.History))
		for _, h := range s.History {
			fmt.Printf("  [%s] (%s) %s\n", h.Timestamp, h.Emotion, h.Message)
		}
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Forget the favorability and history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Reset session %s", args[0]),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				printWarning("Aborted")
				return nil
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Session %s reset", args[0])
		return nil
	},
}

func init() {
	sessionResetCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		printStatus("File", "%s", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the YAML config file.

Valid keys: ` + strings.Join(config.ValidKeys(), ", ") + `

Secrets such as provider.api_key are read from the environment only.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage local models",
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the configured Ollama model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ecfg := engineConfig(cfg)
		ecfg.Kind = engine.KindOllama

		eng, err := engine.New(ecfg)
		if err != nil {
			return err
		}
		if !eng.IsRunning(cmd.Context()) {
			return fmt.Errorf("ollama is not running at %s (start it with: ollama serve)", cfg.Ollama.BaseURL)
		}
		if err := engine.Pull(cmd.Context(), eng, os.Stderr); err != nil {
			return err
		}
		printSuccess("Model %s ready", cfg.Ollama.Model)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsPullCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// stdout carries the protocol.
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return server.ServeStdio(api.NewMCPServer(a.deps))
	},
}
