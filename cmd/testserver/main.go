// testserver starts a multidb API server over in-memory fake targets for
// E2E testing. Two targets are registered: alpha and beta.
//
// Statement rules:
//   - pg_sleep blocks for two seconds on both targets (cancellable)
//   - fail_here fails on both targets
//   - beta_breaks fails on beta only
//   - rows returns two rows
//
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vijaygupta18/multidb/internal/api"
	"github.com/vijaygupta18/multidb/internal/config"
	"github.com/vijaygupta18/multidb/internal/coordinator"
	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/store"
	"github.com/vijaygupta18/multidb/internal/target"
	"github.com/vijaygupta18/multidb/internal/target/fake"
)

func fakeTarget(name string) *fake.Target {
	return fake.New(name).
		On("pg_sleep", fake.Behavior{Delay: 2 * time.Second}).
		On("fail_here", fake.Behavior{Err: errors.New(`ERROR: column "fail_here" does not exist (SQLSTATE 42703)`)}).
		On("rows", fake.Behavior{Rows: []map[string]any{{"n": 1}, {"n": 2}}})
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	db, err := store.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	beta := fakeTarget("beta").On("beta_breaks", fake.Behavior{Err: errors.New("ERROR: beta is broken (SQLSTATE XX000)")})
	reg := target.NewRegistry()
	for _, t := range []*fake.Target{fakeTarget("alpha"), beta} {
		if err := reg.Register(t); err != nil {
			log.Fatalf("register target: %v", err)
		}
	}

	coord := coordinator.New(coordinator.Config{
		MaxRecords:    cfg.MaxRecords,
		MaxAge:        cfg.MaxAge,
		SweepInterval: cfg.SweepInterval,
		LeakCeiling:   cfg.LeakCeiling,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go coord.Run(ctx)

	eng := engine.NewEngine(coord, reg, db, engine.Config{
		DefaultTimeout:   cfg.DefaultTimeout,
		MaxTimeout:       cfg.MaxTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	srv := api.NewServer(cfg.ListenAddr, eng, db, logger)

	logger.Info("testserver: starting", "addr", cfg.ListenAddr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	eng.Wait()
}
