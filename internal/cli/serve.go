package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vijaygupta18/multidb/internal/api"
	"github.com/vijaygupta18/multidb/internal/config"
	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the execution HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr != "" {
				cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to MULTIDB_LISTEN_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("multidb: starting",
		"listen_addr", cfg.ListenAddr,
		"history_db", cfg.HistoryDB,
		"targets_file", cfg.TargetsFile,
	)

	db, err := store.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer db.Close()

	reg, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open targets: %w", err)
	}
	defer reg.Close()

	coord := newCoordinator(cfg, logger)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go coord.Run(sweepCtx)

	eng := engine.NewEngine(coord, reg, db, engineConfig(cfg), logger)
	srv := api.NewServer(cfg.ListenAddr, eng, db, logger)

	runErr := srv.Run(ctx)

	// Executions still in flight keep their pools until they finish; the
	// deferred closes run only after that.
	for _, a := range eng.ListActive() {
		eng.CancelExecution(a.ID, "shutdown")
	}
	eng.Wait()
	logger.Info("multidb: stopped")
	return runErr
}
