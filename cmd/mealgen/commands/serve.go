package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/mealgen/internal/admin"
	"github.com/tjfontaine/mealgen/internal/config"
	"github.com/tjfontaine/mealgen/internal/inference"
	"github.com/tjfontaine/mealgen/internal/server"
	"github.com/tjfontaine/mealgen/internal/storage"
	"github.com/tjfontaine/mealgen/internal/storage/memory"
	"github.com/tjfontaine/mealgen/internal/storage/sqlite"
	"github.com/tjfontaine/mealgen/internal/submission"
	"github.com/tjfontaine/mealgen/internal/telemetry"
	"github.com/tjfontaine/mealgen/internal/web"
)

const sessionPruneInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the recipe and grocery web app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := watcher.Current()

	shutdownTracer, err := telemetry.InitTracer(telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	var recorder submission.Recorder
	if store != nil {
		recorder = store
		defer store.Close()
	}

	views, err := web.NewHandler(web.Options{
		Sender:   inference.NewClient(),
		Recorder: recorder,
		Generators: func() config.GeneratorsConfig {
			return watcher.Current().Generators
		},
		SessionTTL: cfg.Server.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create web handler: %w", err)
	}

	adminServer := admin.NewServer(admin.Options{
		Store:    store,
		Sessions: views.Sessions().Len,
		InFlight: views.InFlight,
	})

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         logger,
	})
	srv.Router.Mount("/admin", adminServer)
	srv.Router.Mount("/", views.Routes())

	ctx, cancel := signalContext()
	defer cancel()

	if err := watcher.Watch(ctx, func(c *config.Config) {
		logger.Info("generator settings reloaded",
			slog.String("recipe_endpoint", c.Generators.Recipe.Endpoint),
			slog.String("grocery_endpoint", c.Generators.Grocery.Endpoint),
		)
	}); err != nil {
		logger.Warn("config hot reload unavailable", slog.String("error", err.Error()))
	}
	defer watcher.Close()

	go views.Sessions().Run(ctx, sessionPruneInterval)

	logger.Info("mealgen started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("tracing", cfg.Telemetry.Enabled),
	)

	err = runUntilSignal(ctx, srv.Start, srv.Shutdown)
	views.Wait()
	return err
}

// openStore returns nil when history is disabled.
func openStore(cfg config.StorageConfig) (storage.SubmissionStore, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return memory.New(), nil
	}
}
