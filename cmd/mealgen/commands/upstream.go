package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/mealgen/internal/server"
	"github.com/tjfontaine/mealgen/internal/upstream"
)

func upstreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upstream",
		Short: "Serve a local stand-in for the hosted generator endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpstream()
		},
	}
}

func runUpstream() error {
	cfg := watcher.Current().Upstream

	budget, err := upstream.NewPromptBudget(cfg.LLM.MaxPromptTokens)
	if err != nil {
		return err
	}

	model := upstream.NewChatClient(cfg.LLM.APIKey,
		upstream.WithBaseURL(cfg.LLM.BaseURL),
		upstream.WithModel(cfg.LLM.Model),
		upstream.WithRetry(&upstream.Retry{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxWait:     cfg.Retry.MaxWait,
		}),
	)

	srv := server.New(server.Options{
		Port:        cfg.Port,
		ServiceName: "mealgen-upstream",
		Logger:      logger,
	})
	srv.Router.Mount("/", upstream.NewHandler(model, budget, logger).Routes())

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("upstream stand-in started",
		slog.Int("port", cfg.Port),
		slog.String("model", cfg.LLM.Model),
		slog.String("recipe", fmt.Sprintf("http://localhost:%d/dev/ask", cfg.Port)),
		slog.String("grocery", fmt.Sprintf("http://localhost:%d/dev/grocery", cfg.Port)),
	)

	return runUntilSignal(ctx, srv.Start, srv.Shutdown)
}
