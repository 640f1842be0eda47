package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev/deduper/internal/auth"
	"github.com/mcdev/deduper/internal/deduplication"
	"github.com/mcdev/deduper/internal/server"
	"github.com/mcdev/deduper/internal/submission"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Annotations: map[string]string{"config": "write-default"},
	Short:       "Run the webhook server and the daily sync",
	Long: `Start the HTTP server and the reconciliation scheduler.

The server accepts GitHub webhook deliveries on /api/v1/webhook and crash
report submissions on /api/v1/submit. A full sweep and close pass runs at
startup (unless sync.run_on_start is false) and every day at midnight UTC.

SIGINT or SIGTERM stops intake, drains queued webhook events and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.GitHub.WebhookSecret == "" {
			return errors.New("github.webhook_secret is required (or set DEDUPER_WEBHOOK_SECRET)")
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		engine, err := newEngine(store)
		if err != nil {
			return err
		}

		dispatcher, err := deduplication.NewDispatcher(engine, cfg.Sync.WebhookWorkers, cfg.Sync.WebhookQueueSize, logger)
		if err != nil {
			return fmt.Errorf("failed to create dispatcher: %w", err)
		}

		srv, err := server.New(cfg.ServerConfig(), server.Deps{
			Verifier:   auth.NewWebhookAuthenticator(auth.StaticSecret(cfg.GitHub.WebhookSecret)),
			Dispatcher: dispatcher,
			Sink:       &submission.LogSink{Logger: logger},
			Health:     store,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		scheduler := deduplication.NewScheduler(engine, cfg.Sync.RunOnStart, logger)

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s deduper listening on %s\n", green("✓"), cyan(cfg.ServerConfig().Addr))
		fmt.Printf("  Tracking issues by %s in %s/%s\n", cfg.Sync.ReporterLogin, cfg.GitHub.Organization, cfg.GitHub.Repository)
		fmt.Printf("  Press Ctrl+C to stop\n\n")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			err := scheduler.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(srv.Shutdown(shutdownCtx), dispatcher.Shutdown(shutdownCtx))
		})

		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Printf("%s deduper stopped\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
