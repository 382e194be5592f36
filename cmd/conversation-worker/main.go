package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/clinic-booking-agent/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// The worker consumes turns from SQS. With USE_MEMORY_QUEUE the API runs the
// workers itself and this binary has nothing to do.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("conversation worker requires USE_MEMORY_QUEUE=false and TURN_QUEUE_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.OptionalAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Deps{AWS: awsCfg}, logger)
	if err != nil {
		logger.Error("failed to wire runtime", "error", err)
		os.Exit(1)
	}
	app.Start(ctx, bootstrap.Components{Workers: true})
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue", cfg.TurnQueueURL)

	<-ctx.Done()
	logger.Info("shutting down conversation worker...")

	doneCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(doneCtx); err != nil {
		logger.Error("conversation worker shutdown timed out", "error", err)
		os.Exit(1)
	}
	logger.Info("conversation worker stopped")
}
