package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/mealgen/internal/config"
	"github.com/tjfontaine/mealgen/internal/logging"
)

const shutdownTimeout = 30 * time.Second

var (
	configPath string
	watcher    *config.Watcher
	logger     *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "mealgen",
		Short:         "Recipe and grocery list generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()

			w, err := config.NewWatcher(configPath, slog.New(slog.NewJSONHandler(os.Stderr, nil)))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			watcher = w

			cfg := w.Current()
			logger = logging.New(cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to config file")

	root.AddCommand(serveCmd(), upstreamCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runUntilSignal starts serve in the background and stops it gracefully on
// a signal. It returns the first serve error, if any.
func runUntilSignal(ctx context.Context, serve func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	return <-errCh
}
