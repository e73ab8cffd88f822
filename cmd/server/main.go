// Package main - Entry point for the allocation API server
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
	"time"

	"go.uber.org/zap"

	"hospital-abc/adapters/storage"
	"hospital-abc/api"
	"hospital-abc/core/engine"
	"hospital-abc/internal/config"
	"hospital-abc/internal/logging"
)

const version = "0.3.0"

func main() {
	addr := flag.String("addr", ":8080", "Server address")
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*addr, *cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	config.Set(cfg)
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()
	logger := logging.Logger

	store, err := storage.StoreFactory(storage.Backend(cfg.Storage.Backend), cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           http.StripPrefix("/api", api.NewServer(version, store, engine.OptionsFromConfig(cfg), logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("version", version),
			zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
