// Command stubapi runs the fake API server used for local development of
// API clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/buildwise/apiclient/v3"
	"github.com/buildwise/apiclient/v3/internal/config"
	"github.com/buildwise/apiclient/v3/internal/observability"
	"github.com/buildwise/apiclient/v3/internal/stubapi"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts := []stubapi.Option{
		stubapi.WithAccessTTL(cfg.Stub.AccessTTL),
		stubapi.WithUser(cfg.Stub.Username, cfg.Stub.Password),
		stubapi.WithLogger(apiclient.NewZapLogger(logger.Sugar())),
	}
	if cfg.Stub.Secret != "" {
		opts = append(opts, stubapi.WithSecret([]byte(cfg.Stub.Secret)))
	}

	srv, err := stubapi.New(opts...)
	if err != nil {
		logger.Fatal("failed to create stub server", zap.Error(err))
	}

	httpServer := &http.Server{Addr: cfg.Stub.Listen, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	logger.Info("stub API listening", zap.String("addr", cfg.Stub.Listen), zap.String("user", cfg.Stub.Username))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
	}
}
