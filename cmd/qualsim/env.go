package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/nvandessel/qualsim/internal/config"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/kb"
	"github.com/nvandessel/qualsim/internal/logging"
	"github.com/nvandessel/qualsim/internal/metrics"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/nvandessel/qualsim/internal/store"
	"github.com/spf13/cobra"
)

// loadSettings loads the file named by --config, or the layered
// configuration of the project root when the flag is empty.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	root, _ := cmd.Flags().GetString("root")
	configPath, _ := cmd.Flags().GetString("config")

	var (
		settings *config.Config
		err      error
	)
	if configPath != "" {
		settings, err = config.LoadFromFile(configPath)
	} else {
		settings, err = config.Load(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

func newLogger(cmd *cobra.Command, settings *config.Config) *slog.Logger {
	return logging.NewLoggerWithFormat(settings.Logging.Level, settings.Logging.Format, cmd.ErrOrStderr())
}

// loadKnowledge loads kbPath (a file or directory) or, when empty, the kb
// directories of ~/.qualsim and <root>/.qualsim.
func loadKnowledge(root, kbPath string) (*kb.KnowledgeBase, error) {
	if kbPath != "" {
		return kb.Load(kbPath)
	}
	dirs, err := pathutil.DataDirs(root, constants.ScopeBoth)
	if err != nil {
		return nil, err
	}
	knowledge, err := kb.LoadDirs(dirs)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'qualsim init' or pass --kb)", err)
	}
	return knowledge, nil
}

// openRunStore opens the run stores selected by the configured scope.
func openRunStore(root string, settings *config.Config) (*store.MultiRunStore, error) {
	if !settings.Store.Enabled {
		return nil, fmt.Errorf("run store is disabled (store.enabled: false)")
	}
	scope, err := constants.ParseScope(settings.Store.Scope)
	if err != nil {
		return nil, err
	}
	runs, err := store.NewMultiRunStore(root, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return runs, nil
}

// allowedOutputDirs lists where --output may write: the project root,
// ~/.qualsim and the configured output directory.
func allowedOutputDirs(root string, settings *config.Config) ([]string, error) {
	dirs, err := pathutil.DefaultAllowedOutputDirs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to determine allowed directories: %w", err)
	}
	if settings.Output.Dir != "" {
		dirs = append(dirs, settings.Output.Dir)
	}
	return dirs, nil
}

// writeOutputFile writes rendered output after validating path.
func writeOutputFile(path string, data []byte, allowedDirs []string) error {
	if err := pathutil.ValidatePath(path, allowedDirs); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", pathutil.RedactPath(path), err)
	}
	return nil
}

func writeMetrics(cmd *cobra.Command, rec *metrics.Recorder) error {
	path, _ := cmd.Flags().GetString("metrics-file")
	if path == "" {
		return nil
	}
	return rec.WriteTextfile(path)
}

// runContext is canceled on SIGINT/SIGTERM and after timeout when it is
// positive.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		prev := cancel
		cancel = func() {
			cancelTimeout()
			prev()
		}
	}

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
