package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"PaperDigest/internal/app"
	"PaperDigest/internal/config"
	"PaperDigest/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if err := cfg.ValidateAPI(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	api, err := app.NewAPI(ctx, cfg, logger)
	if err != nil {
		logger.Error("api init failed", "error", err)
		os.Exit(1)
	}

	if err := api.Serve(ctx); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}
