// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent run qualsim simulations and inspect stored runs.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/qualsim/internal/config"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/logging"
	"github.com/nvandessel/qualsim/internal/metrics"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/nvandessel/qualsim/internal/ratelimit"
	"github.com/nvandessel/qualsim/internal/store"
)

// Server wraps the MCP SDK server and provides qualsim tools.
type Server struct {
	server       *sdk.Server
	runs         store.RunStore
	root         string
	settings     *config.Config
	logger       *slog.Logger
	decisions    *logging.DecisionLogger
	metrics      *metrics.Recorder
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "qualsim")
	Version string // Server version
	Root    string // Project root directory

	// Settings defaults to config.Load(Root).
	Settings *config.Config
	// Runs defaults to the SQLite stores selected by Settings.Store.Scope,
	// or an in-memory store when the store is disabled.
	Runs store.RunStore
	// Logger defaults to a stderr logger at Settings.Logging.Level.
	Logger *slog.Logger
}

// NewServer creates a new MCP server with qualsim tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLoggerWithFormat(settings.Logging.Level, settings.Logging.Format, os.Stderr)
	}

	runs := cfg.Runs
	if runs == nil {
		if settings.Store.Enabled {
			scope, _ := constants.ParseScope(settings.Store.Scope)
			multi, err := store.NewMultiRunStore(cfg.Root, scope)
			if err != nil {
				return nil, fmt.Errorf("failed to open run store: %w", err)
			}
			runs = multi
		} else {
			runs = store.NewInMemoryRunStore()
		}
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	var globalDir string
	if home, err := os.UserHomeDir(); err == nil {
		globalDir = home
	}

	s := &Server{
		server:       mcpServer,
		runs:         runs,
		root:         cfg.Root,
		settings:     settings,
		logger:       logger,
		decisions:    logging.NewDecisionLogger(pathutil.LocalDataDir(cfg.Root), settings.Logging.Level),
		metrics:      metrics.New(),
		auditLogger:  NewAuditLogger(cfg.Root, globalDir),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
// The caller still owns Close.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.decisions.Close()
	if err := s.auditLogger.Close(); err != nil {
		s.logger.Warn("closing audit log", "error", err)
	}
	return s.runs.Close()
}
