// Infinite-chat is a conversation server whose history can grow far
// beyond the model's context window.
//
// It exposes an HTTP API with two chat modes: a plain mode where the
// model sees a recency window plus search tools, and an agent mode
// where a root model receives only the user's query and explores the
// stored history through a bounded tool-calling loop. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	infinite-chat serve            Start the API server
//	infinite-chat ask <question>   Ask a single question in agent mode
//	infinite-chat version          Print version and build information
//	infinite-chat -o json version  Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/openrlm/infinite-chat/internal/agent"
	"github.com/openrlm/infinite-chat/internal/api"
	"github.com/openrlm/infinite-chat/internal/buildinfo"
	"github.com/openrlm/infinite-chat/internal/config"
	"github.com/openrlm/infinite-chat/internal/events"
	"github.com/openrlm/infinite-chat/internal/history"
	"github.com/openrlm/infinite-chat/internal/llm"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: infinite-chat ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "infinite-chat - Conversation server with unbounded history")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: infinite-chat [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question in agent mode (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/infinite-chat/config.yaml, /etc/infinite-chat/config.yaml")
	return nil
}

// runAsk handles "infinite-chat ask <question>". It opens the
// configured database, runs one agent-mode query against the "cli"
// conversation, and prints the answer.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := llm.NewOpenAIClient(cfg.LLM, logger)
	orch := agent.New(client, store, nil, logger, cfg.Agent.MaxIterations)

	convID := "cli"
	if _, err := store.Append(ctx, convID, history.TrackDialogue, "user", question, nil); err != nil {
		return fmt.Errorf("store question: %w", err)
	}

	result := orch.Run(ctx, convID, question)
	if result.State == agent.StateError {
		return fmt.Errorf("ask: %s", result.Error)
	}

	if _, err := store.Append(ctx, convID, history.TrackDialogue, "assistant", result.Answer, nil); err != nil {
		return fmt.Errorf("store answer: %w", err)
	}

	fmt.Fprintln(stdout, result.Answer)
	if result.Reasoning != "" {
		fmt.Fprintf(stdout, "\n[%s, %d iterations] %s\n", result.State, result.Iterations, result.Reasoning)
	}
	return nil
}

// runServe handles "infinite-chat serve": loads config, opens the
// history database, wires the agent loop and navigator, starts the API
// server, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting infinite-chat", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level, "text")
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("history database opened", "dir", cfg.Storage.DataDir)

	bus := events.New()

	// Mirror operational events into the debug log.
	go func() {
		for ev := range bus.Subscribe(128) {
			logger.Debug("event", "source", ev.Source, "kind", ev.Kind, "data", ev.Data)
		}
	}()

	client := llm.NewOpenAIClient(cfg.LLM, logger)
	orch := agent.New(client, store, bus, logger, cfg.Agent.MaxIterations)
	nav := agent.NewNavigator(client, store, history.DefaultWindowTokens, logger)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, store, orch, nav, bus, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("infinite-chat stopped")
	return nil
}

// openStore opens the SQLite history database under the configured
// data directory.
func openStore(cfg *config.Config) (*history.SQLiteStore, *sql.DB, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory %s: %w", cfg.Storage.DataDir, err)
	}

	dbPath := filepath.Join(cfg.Storage.DataDir, "infinite-chat.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, nil, fmt.Errorf("open history database %s: %w", dbPath, err)
	}

	store, err := history.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init history database %s: %w", dbPath, err)
	}
	return store, db, nil
}

// newLogger creates a structured logger writing to w at the given level.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
