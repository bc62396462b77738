// Command xpertly-server runs the workflow execution engine's HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xpertly/internal/asset"
	"xpertly/internal/config"
	"xpertly/internal/httpclient"
	"xpertly/internal/hub"
	"xpertly/internal/integration"
	"xpertly/internal/logging"
	"xpertly/internal/persist"
	"xpertly/internal/server"
	"xpertly/internal/token"
	"xpertly/internal/users"
	"xpertly/internal/worker"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const userCacheSize = 256

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "xpertly-server",
		Short:        "Workflow execution engine API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", os.Getenv("XPERTLY_CONFIG"), "path to a YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	// a missing .env is fine, any other read error is not
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("server")

	if cfg.UsingDevSecret() {
		logger.Warn("using the built-in dev wait token secret, set XPERTLY_WAIT_TOKEN_SECRET in production")
	}

	httpClient := httpclient.New(httpclient.Options{
		Timeout:            cfg.HTTPTimeout,
		InsecureSkipVerify: cfg.InsecureVendorTLS,
	})

	resolver, err := users.NewResolver(httpClient, cfg.UserAPIBaseURL, userCacheSize, logging.NewComponentLogger("users"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	liveHub := hub.New(logging.NewComponentLogger("hub"))
	go liveHub.Run(ctx)

	deps := &worker.Deps{
		HTTP:         httpClient,
		Persist:      persist.NewClient(httpClient, cfg.PersistBaseURL, logging.NewComponentLogger("persist")),
		Integrations: integration.NewClient(httpClient, cfg.CoreAPIBaseURL, logging.NewComponentLogger("integrations")),
		Assets:       asset.NewClient(httpClient, cfg.CoreAPIBaseURL, logging.NewComponentLogger("assets")),
		Signer:       token.NewSigner(cfg.WaitTokenSecret, cfg.WaitTokenTTL),
		Hub:          liveHub,
		Logger:       logging.NewComponentLogger("worker"),
	}

	srv := server.New(server.Options{
		Logger:         logger,
		Hub:            liveHub,
		Users:          resolver,
		Deps:           deps,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
