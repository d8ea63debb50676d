package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/config"
	"github.com/BearBump/TrackLog/internal/broker/kafka"
	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/cache/rediscache"
	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/integrations/registry/fake"
	"github.com/BearBump/TrackLog/internal/integrations/registry/pgregistry"
	"github.com/BearBump/TrackLog/internal/integrations/registry/registryhttp"
	"github.com/BearBump/TrackLog/internal/services/sweeper"
	"github.com/BearBump/TrackLog/internal/services/tracklog"
	"github.com/BearBump/TrackLog/internal/storage/pgevents"
)

type workerFactories struct {
	newStorage   func(cfg *config.Config) (repo tracklog.Repository, reg registry.Client, closeFn func(), err error)
	newPublisher func(cfg *config.Config) sweeper.Publisher
	newDeduper   func(cfg *config.Config) cache.Deduper
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (tracklog.Repository, registry.Client, func(), error) {
			st, err := pgevents.New(cfg.PostgresDSN())
			if err != nil {
				return nil, nil, nil, err
			}
			var reg registry.Client
			switch cfg.TrackLog.RegistryMode {
			case "http":
				reg = registryhttp.New(cfg.TrackLog.RegistryBaseURL, cfg.TrackLog.RegistryAPIKey)
			case "fake":
				reg = fake.New()
			default:
				pr := pgregistry.New(st.Pool())
				if err := pr.EnsureSchema(context.Background()); err != nil {
					st.Close()
					return nil, nil, nil, err
				}
				reg = pr
			}
			return st, reg, st.Close, nil
		},
		newPublisher: func(cfg *config.Config) sweeper.Publisher {
			return kafka.NewProducer(cfg.KafkaBrokers())
		},
		newDeduper: func(cfg *config.Config) cache.Deduper {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.NewRateLimiter(cfg.RedisAddr())
		},
	}
}

type workerRuntime struct {
	sweeper *sweeper.Sweeper
	closeFn func()
}

func buildWorker(cfg *config.Config, f workerFactories, log *zap.Logger) (*workerRuntime, error) {
	topic := cfg.Kafka.StalledTopicName
	if topic == "" {
		topic = "tracking.items.stalled"
	}

	interval := time.Duration(cfg.TrackLog.WorkerSweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	concurrency := cfg.TrackLog.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	window := time.Duration(cfg.TrackLog.WorkerAlertWindowSeconds) * time.Second
	if window <= 0 {
		window = time.Hour
	}

	repo, reg, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}

	detector := tracklog.New(repo, reg, log)
	dedup := f.newDeduper(cfg)
	if dedup == nil {
		log.Warn("redis is not configured, stalled alerts are deduplicated in memory only")
	}

	sw := sweeper.New(detector, reg, f.newPublisher(cfg), dedup, topic, log.Named("sweeper")).
		WithSettings(interval, concurrency, window)

	return &workerRuntime{sweeper: sw, closeFn: closeFn}, nil
}

// RunTrackLogWorker runs the sweeper and its ops HTTP server until ctx ends.
func RunTrackLogWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	rt, err := buildWorker(cfg, f, log)
	if err != nil {
		return err
	}
	if rt.closeFn != nil {
		defer rt.closeFn()
	}

	httpOpts.sweeper = rt.sweeper
	httpOpts.cfg = cfg
	if httpOpts.httpAddr == "" {
		httpOpts.httpAddr = cfg.TrackLog.WorkerHTTPAddr
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, httpOpts)
	}()

	log.Info("sweeper started", zap.Any("settings", rt.sweeper.Settings()))
	runErr := rt.sweeper.Run(ctx)
	cancel()
	if err := <-httpErr; err != nil && ctx.Err() == nil {
		return err
	}
	return runErr
}
