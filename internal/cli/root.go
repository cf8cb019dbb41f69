// Package cli wires configuration, targets, the execution engine and the
// HTTP API into the multidb command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vijaygupta18/multidb/internal/config"
	"github.com/vijaygupta18/multidb/internal/coordinator"
	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/target"
)

type rootFlags struct {
	TargetsFile string
}

var rf rootFlags

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "multidb",
		Short:         "Run SQL scripts against many PostgreSQL targets at once",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&rf.TargetsFile, "targets", "", "targets YAML file (defaults to MULTIDB_TARGETS_FILE)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(checkCmd())

	return rootCmd
}

// loadConfig applies the persistent flags on top of the environment.
func loadConfig() config.Config {
	cfg := config.Load()
	if rf.TargetsFile != "" {
		cfg.TargetsFile = rf.TargetsFile
	}
	return cfg
}

// openRegistry loads the targets file and opens a pool per target.
func openRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*target.Registry, error) {
	defs, err := target.LoadFile(cfg.TargetsFile)
	if err != nil {
		return nil, err
	}
	return target.Open(ctx, defs, target.Options{
		AcquireTimeout: cfg.AcquireTimeout,
		MaxRows:        cfg.MaxRows,
	}, logger)
}

func newCoordinator(cfg config.Config, logger *slog.Logger) *coordinator.Coordinator {
	return coordinator.New(coordinator.Config{
		MaxRecords:    cfg.MaxRecords,
		MaxAge:        cfg.MaxAge,
		SweepInterval: cfg.SweepInterval,
		LeakCeiling:   cfg.LeakCeiling,
	}, logger)
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		DefaultTimeout:   cfg.DefaultTimeout,
		MaxTimeout:       cfg.MaxTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
}

// readScript reads a script from path, or from stdin when path is "-".
func readScript(path string, stdin io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("missing --file")
	}
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}
