package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BengeeL/Dental-Chatbot/config"
	"github.com/BengeeL/Dental-Chatbot/internal/app"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 2
	}
	logger := pkglog.New(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
		return 1
	}
	logger.Info().Msg("shutdown complete")
	return 0
}
