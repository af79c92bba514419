package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/charbot/internal/affinity"
	"github.com/kalambet/charbot/internal/api"
	"github.com/kalambet/charbot/internal/composer"
	"github.com/kalambet/charbot/internal/config"
	"github.com/kalambet/charbot/internal/emotion"
	"github.com/kalambet/charbot/internal/engine"
	"github.com/kalambet/charbot/internal/pipeline"
	"github.com/kalambet/charbot/internal/profile"
	"github.com/kalambet/charbot/internal/session"
	"github.com/kalambet/charbot/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the charbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show charbot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// app is everything a front end (HTTP or MCP) needs to serve chat turns.
type app struct {
	deps    api.Deps
	store   *storage.Store
	engine  engine.Engine
	sweeper session.Sweeper
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing resource", "error", err)
		}
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Kind:          cfg.Provider.Kind,
		Model:         cfg.Provider.Model,
		BaseURL:       cfg.Provider.BaseURL,
		APIKey:        cfg.Provider.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OllamaModel:   cfg.Ollama.Model,
		MaxRetries:    cfg.Engine.MaxRetries,
	}
}

// buildApp wires storage, the generation engine, the chat pipeline and the
// session store. The caller must Close the returned app.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	eng, err := engine.New(engineConfig(cfg))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, os.Stderr); err != nil {
		a.Close()
		return nil, err
	}
	a.engine = eng

	policy, err := affinity.NewPolicy(cfg.Engine.AffinityPolicy, eng, cfg.Engine.ClassifyTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	responder := pipeline.NewResponder(
		emotion.NewClassifier(eng, cfg.Engine.ClassifyTimeout),
		policy,
		composer.New(cfg.Engine.HistoryTokens),
		eng,
		cfg.Engine.GenerateTimeout,
	)

	sessStore, err := newSessionStore(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	sessions := session.NewManager(sessStore, cfg.Engine.InitialAffinity)
	a.sweeper = sessions.Sweeper()

	a.deps = api.Deps{
		Responder:   responder,
		Characters:  profile.NewManager(store),
		Rooms:       store,
		Sessions:    sessions,
		EngineName:  eng.Name(),
		CORSOrigins: cfg.Server.CORSOrigins,
	}
	slog.Info("pipeline ready",
		"engine", eng.Name(),
		"policy", policy.Name(),
		"sessions", cfg.Session.Backend,
	)
	return a, nil
}

func newSessionStore(ctx context.Context, cfg config.Config, a *app) (session.Store, error) {
	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(), nil
	case "sqlite", "":
		return session.NewSQLiteStore(a.store), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Session.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return session.NewRedisStore(rdb, cfg.Session.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func runServer() error {
	fmt.Fprintln(os.Stderr, versionLine())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "charbot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.sweeper != nil && cfg.Session.TTL > 0 {
		janitor := session.NewJanitor(a.sweeper, cfg.Session.TTL, time.Minute)
		g.Go(func() error {
			janitor.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng, err := engine.New(engineConfig(cfg))
	if err != nil {
		printStatus("Engine", "misconfigured: %v", err)
	} else if eng.IsRunning(ctx) {
		printStatus("Engine", "%s reachable", eng.Name())
	} else {
		printStatus("Engine", "%s not reachable", eng.Name())
	}

	printStatus("Affinity policy", "%s", cfg.Engine.AffinityPolicy)
	printStatus("Sessions", "%s (ttl %s)", cfg.Session.Backend, cfg.Session.TTL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	if err := cfg.Validate(); err != nil {
		printWarning("config: %v", err)
	}
	return nil
}
