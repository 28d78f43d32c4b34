package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnrirwin/nordicwire/internal/app"
	"github.com/johnrirwin/nordicwire/internal/config"
	"github.com/johnrirwin/nordicwire/internal/logging"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to initialize", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
	logger := application.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-sigChan:
		logger.Info("Shutting down...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	application.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) && !errors.Is(runErr, context.Canceled) {
		logger.Error("Run failed", logging.WithField("error", runErr.Error()))
		os.Exit(1)
	}
}
