package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PaperDigest/internal/app"
	"PaperDigest/internal/config"
	"PaperDigest/internal/infrastructure/scheduler"
	"PaperDigest/internal/logging"
)

type options struct {
	force      bool
	skipDigest bool
	skipAgent  bool
	interval   time.Duration
}

func main() {
	var opts options
	flag.BoolVar(&opts.force, "force", false, "send digests regardless of the schedule")
	flag.BoolVar(&opts.skipDigest, "skip-digest", false, "do not run the digest pipeline")
	flag.BoolVar(&opts.skipAgent, "skip-agent", false, "do not run the learning agent")
	flag.DurationVar(&opts.interval, "interval", 0, "repeat the run at this interval instead of exiting (e.g. 24h)")
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		return 1
	}
	defer application.Close()

	code := 0
	job := func(ctx context.Context, trigger time.Time) {
		logger.Info("run started", "trigger", trigger.Format(time.RFC3339))
		code = 0
		if !opts.skipDigest {
			if err := application.RunDigest(ctx, opts.force); err != nil {
				logger.Error("digest run failed", "error", err)
				code = 1
			}
		}
		if !opts.skipAgent {
			if err := application.RunAgent(ctx); err != nil {
				logger.Error("learning agent failed", "error", err)
				code = 1
			}
		}
	}

	if err := scheduler.NewTicker(opts.interval).Run(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", "error", err)
		return 1
	}
	return code
}
