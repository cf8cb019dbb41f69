package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vijaygupta18/multidb/internal/config"
	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/target"
)

type execFlags struct {
	File            string
	Target          string
	Namespace       string
	ContinueOnError bool
	TimeoutS        int
}

// errExecutionFailed is returned when the execution ran but did not complete
// successfully on every target.
var errExecutionFailed = errors.New("execution did not succeed")

func execCmd() *cobra.Command {
	var f execFlags
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a script once against the configured targets and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(f.File, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg := loadConfig()
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, err := openRegistry(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("open targets: %w", err)
			}
			defer reg.Close()

			req := engine.Request{
				Script:          script,
				Mode:            model.ModeAll,
				Namespace:       f.Namespace,
				ContinueOnError: f.ContinueOnError,
			}
			if f.Target != "" {
				req.Mode = model.ModeSingle
				req.Target = f.Target
			}
			if cmd.Flags().Changed("timeout") {
				req.TimeoutS = &f.TimeoutS
			}

			return runOnce(ctx, cfg, reg, req, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
		},
	}
	cmd.Flags().StringVarP(&f.File, "file", "f", "", "script file, or - for stdin")
	cmd.Flags().StringVarP(&f.Target, "target", "t", "", "run against this target only")
	cmd.Flags().StringVarP(&f.Namespace, "namespace", "n", "", "schema to set as search_path")
	cmd.Flags().BoolVar(&f.ContinueOnError, "continue-on-error", false, "keep going after a failed statement")
	cmd.Flags().IntVar(&f.TimeoutS, "timeout", 0, "overall timeout in seconds")
	return cmd
}

// runOnce executes req, streams progress to progress and writes the final
// record to out. An interrupt on ctx cancels the execution.
func runOnce(ctx context.Context, cfg config.Config, reg *target.Registry, req engine.Request, out, progress io.Writer, logger *slog.Logger) error {
	coord := newCoordinator(cfg, logger)
	eng := engine.NewEngine(coord, reg, nil, engineConfig(cfg), logger)

	id, err := eng.StartExecution(ctx, req, currentUser())
	if err != nil {
		return err
	}

	events, unsub := eng.Broker().Subscribe(id)
	defer unsub()

	interrupted := ctx.Done()
	for ev := range drain(events, interrupted, func() { eng.CancelExecution(id, currentUser()) }) {
		if ev.Type == engine.EventProgress {
			fmt.Fprintf(progress, "[%s] %d/%d %s\n", ev.Target, ev.Current, ev.Total, ev.Statement)
		}
	}
	eng.Wait()

	rec, ok := eng.Status(id)
	if !ok {
		return fmt.Errorf("execution %s vanished", id)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if rec.Status != model.StatusCompleted {
		return errExecutionFailed
	}
	return nil
}

// drain forwards events until the source closes. The first signal on
// interrupted triggers onInterrupt; forwarding continues so the final events
// are still seen.
func drain(src <-chan engine.Event, interrupted <-chan struct{}, onInterrupt func()) <-chan engine.Event {
	dst := make(chan engine.Event)
	go func() {
		defer close(dst)
		for {
			select {
			case ev, ok := <-src:
				if !ok {
					return
				}
				dst <- ev
			case <-interrupted:
				onInterrupt()
				interrupted = nil
			}
		}
	}()
	return dst
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
