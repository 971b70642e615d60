package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/communet/sessiond/internal/adapters/chat"
	"github.com/communet/sessiond/internal/adapters/directory"
	httpAdapter "github.com/communet/sessiond/internal/adapters/http"
	"github.com/communet/sessiond/internal/adapters/livekit"
	redisAdapter "github.com/communet/sessiond/internal/adapters/redis"
	"github.com/communet/sessiond/internal/config"
	"github.com/communet/sessiond/internal/logging"
	"github.com/communet/sessiond/internal/observability"
	"github.com/communet/sessiond/internal/retry"
	"github.com/communet/sessiond/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session coordinator HTTP server",
	Long:  `Starts sessiond, exposing the session lifecycle JSON API over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		logger := logging.New(logging.ParseLevel(cfg.LogLevel))

		rdb := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		store := redisAdapter.NewFromClient(rdb)
		locker := redisAdapter.NewLocker(rdb, "sessiond:")

		issuer := livekit.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL.Std())
		provider := livekit.NewRoomClient(cfg.LiveKit.URL, issuer,
			livekit.WithTimeout(cfg.LiveKit.DeleteTimeout.Std()))
		receiver := livekit.NewWebhookReceiver(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)

		bridge := chat.New(cfg.Chat.BaseURL, rdb,
			chat.WithHTTPClient(&http.Client{Timeout: cfg.Chat.Timeout.Std()}))
		members := directory.New(cfg.Directory.BaseURL)

		registry := prometheus.NewRegistry()
		metrics := observability.New(registry)

		queue := retry.New(provider,
			retry.WithLogger(logger),
			retry.WithMetrics(metrics),
			retry.WithInterval(cfg.Retry.Interval.Std()),
			retry.WithBackoff(cfg.Retry.Backoff.Std()),
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithCallTimeout(cfg.LiveKit.DeleteTimeout.Std()),
		)

		coordinator := session.New(store, bridge, members, issuer, provider, queue,
			session.WithLogger(logger),
			session.WithMetrics(metrics),
			session.WithLocker(locker),
			session.WithWebhookVerifier(receiver),
			session.WithProviderTimeout(cfg.LiveKit.DeleteTimeout.Std()),
		)

		handler := httpAdapter.NewHandler(coordinator, store, logger, registry)

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: handler,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		queue.Start(ctx)

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting sessiond", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			logger.Error("server error", "err", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "err", err)
				}
			}
			logger.Info("sessiond stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
