package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/config"
	"github.com/BearBump/TrackLog/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse error: %v", err))
	}
	if err := logger.Init(cfg.Log.Environment, cfg.Log.Level); err != nil {
		panic(fmt.Sprintf("logger init: %v", err))
	}
	defer logger.Sync()
	log := logger.Get().Named("tracklog-worker")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunTrackLogWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
		swaggerPath: os.Getenv("workerSwaggerPath"),
	}, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("tracklog-worker stopped", zap.Error(err))
		panic(err)
	}
}
