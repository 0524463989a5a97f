// ABOUTME: Entry point for the skiff CLI — editor-side client for the Skiff agent engine.
// ABOUTME: Connects, runs agents, streams chat, and manages agent accept/reject from a terminal.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/client"
	"github.com/skiffworks/skiff/internal/config"
	"github.com/skiffworks/skiff/internal/journal"
	"github.com/skiffworks/skiff/internal/rpc"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: SKIFF_CONFIG env var > XDG_CONFIG_HOME/skiff/client.yaml > ~/.config/skiff/client.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SKIFF_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "skiff", "client.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: skiff <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run -doc FILE -line N TASK   Run an agent on a task, streaming progress")
		fmt.Println("  run-sync -doc FILE -line N TASK   Run an agent and print the final text")
		fmt.Println("  chat MESSAGE                 Run a chat turn, streaming the reply")
		fmt.Println("  agents                       List agents known to the engine")
		fmt.Println("  cancel ID                    Ask the engine to stop an agent")
		fmt.Println("  accept ID                    Approve a completed agent's changes")
		fmt.Println("  reject ID                    Discard a completed agent's changes")
		fmt.Println("  restart ID                   Re-run a finished or failed agent")
		fmt.Println("  version                      Print the client version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runAgent(ctx, os.Args[2:], false)
	case "run-sync":
		err = runAgent(ctx, os.Args[2:], true)
	case "chat":
		err = runChat(ctx, os.Args[2:])
	case "agents":
		err = runAgents(ctx)
	case "cancel", "accept", "reject", "restart":
		err = runCommand(ctx, os.Args[1], os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired-up core components behind every CLI command.
type app struct {
	cfg     *config.Config
	client  *client.Client
	journal *journal.Journal
}

// setup loads configuration, starts the reconnection supervisor, and blocks
// until a connection to the engine exists (or ctx is cancelled).
func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
	}

	registry := agent.NewRegistry(logger)
	locator := rpc.NewLocator(cfg.Endpoint())
	supervisor := rpc.NewSupervisor(locator, cfg.Connection.PollInterval, logger)

	var cl *client.Client
	if jrnl != nil {
		cl = client.New(supervisor, registry, jrnl, logger)
	} else {
		cl = client.New(supervisor, registry, nil, logger)
	}
	supervisor.SetHandler(cl.Handle)

	go supervisor.Run(ctx)

	logger.Info("waiting for engine", "addr", cfg.Endpoint().Addr())
	if _, err := supervisor.EnsureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connecting to engine: %w", err)
	}

	return &app{cfg: cfg, client: cl, journal: jrnl}, nil
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
	}
	a.client.Registry().Close()
}

func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func parseDocFlags(args []string) (*flag.FlagSet, *string, *uint) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	doc := fs.String("doc", "", "target document path")
	line := fs.Uint("line", 0, "anchor line (zero-based)")
	_ = fs.Parse(args)
	return fs, doc, line
}
