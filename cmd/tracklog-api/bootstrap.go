package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/config"
	"github.com/BearBump/TrackLog/internal/broker/kafka"
	"github.com/BearBump/TrackLog/internal/cache/rediscache"
	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/integrations/registry/fake"
	"github.com/BearBump/TrackLog/internal/integrations/registry/pgregistry"
	"github.com/BearBump/TrackLog/internal/integrations/registry/registryhttp"
	"github.com/BearBump/TrackLog/internal/logger"
	"github.com/BearBump/TrackLog/internal/payloadschema"
	"github.com/BearBump/TrackLog/internal/services/tracklog"
	"github.com/BearBump/TrackLog/internal/storage/pgevents"
)

type trackLogAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackLogAPIOpts
	svc      *tracklog.Service
	consumer *kafka.Consumer
	log      *zap.Logger
	closers  []func()
}

func mustBootstrapTrackLogAPI() *trackLogAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error: %v", err))
	}
	if err := logger.Init(cfg.Log.Environment, cfg.Log.Level); err != nil {
		panic(fmt.Sprintf("logger init: %v", err))
	}
	log := logger.Get().Named("tracklog-api")

	app := &trackLogAPIApp{log: log}

	st := mustOpenPostgresWithRetry(cfg.PostgresDSN(), 60*time.Second)
	app.closers = append(app.closers, st.Close)

	reg, err := newRegistry(context.Background(), cfg, st.Pool())
	if err != nil {
		panic(err)
	}
	settings, err := serviceSettings(cfg)
	if err != nil {
		panic(err)
	}

	svc := tracklog.New(st, reg, log).WithSettings(settings)

	stops, err := registry.NewStopCache(reg, cfg.TrackLog.StopCacheSize)
	if err != nil {
		panic(err)
	}
	svc.WithStops(stops)

	if path := cfg.TrackLog.PayloadSchemasPath; path != "" {
		schemas, err := payloadschema.Load(path)
		if err != nil {
			panic(err)
		}
		log.Info("payload schemas loaded", zap.Strings("event_types", schemas.EventTypes()))
		svc.WithSchemas(schemas)
	}

	opts := trackLogAPIOpts{
		grpcAddr:      defaultString(cfg.TrackLog.GRPCAddr, ":50051"),
		httpAddr:      defaultString(cfg.TrackLog.HTTPAddr, ":8080"),
		swaggerPath:   os.Getenv("swaggerPath"),
		submitTopic:   defaultString(cfg.Kafka.SubmitTopicName, "tracking.events.submit"),
		consumerGroup: defaultString(cfg.TrackLog.KafkaConsumerGroup, "tracklog-api"),
	}

	if cfg.Redis.Host != "" {
		rc := rediscache.New(cfg.RedisAddr())
		if err := rc.Ping(context.Background()); err != nil {
			log.Warn("redis unreachable, trackable cache runs cold", zap.Error(err))
		}
		svc.WithCache(rc)
		app.closers = append(app.closers, func() { _ = rc.Close() })

		if perMin := cfg.TrackLog.SearchRateLimitPerMinute; perMin > 0 {
			rl := rediscache.NewRateLimiter(cfg.RedisAddr())
			opts.searchLimiter = rl
			opts.searchLimitPerMin = int64(perMin)
			app.closers = append(app.closers, func() { _ = rl.Close() })
		}
	}

	if cfg.Kafka.Host != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers())
		svc.WithPublisher(producer)
		app.closers = append(app.closers, func() { _ = producer.Close() })

		app.consumer = kafka.NewConsumer(cfg.KafkaBrokers(), opts.submitTopic, opts.consumerGroup, log.Named("consumer"))
	} else {
		log.Warn("kafka is not configured, asynchronous submission and event publication are off")
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = opts
	app.svc = svc
	return app
}

// serviceSettings maps config onto the service. An unknown time zone is a
// startup error.
func serviceSettings(cfg *config.Config) (tracklog.Settings, error) {
	loc := time.UTC
	if tz := cfg.TrackLog.TimeZone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return tracklog.Settings{}, errors.Wrapf(err, "time zone %q", tz)
		}
		loc = l
	}
	// Zero or negative leaves the trackable cache off.
	ttl := time.Duration(max(cfg.TrackLog.RegistryCacheTTLSeconds, 0)) * time.Second
	return tracklog.Settings{
		ListWindow:        cfg.TrackLog.ListWindow,
		Location:          loc,
		RecordedTopic:     defaultString(cfg.Kafka.RecordedTopicName, "tracking.events.recorded"),
		TrackableCacheTTL: ttl,
	}, nil
}

// newRegistry picks the trip/shipment registry. "postgres" reads tables in
// the log's own database and is the default.
func newRegistry(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (registry.Client, error) {
	switch cfg.TrackLog.RegistryMode {
	case "http":
		return registryhttp.New(cfg.TrackLog.RegistryBaseURL, cfg.TrackLog.RegistryAPIKey), nil
	case "fake":
		return fake.New(), nil
	case "", "postgres":
		if pool == nil {
			return nil, errors.New("postgres registry needs a database pool")
		}
		r := pgregistry.New(pool)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, errors.Errorf("unknown registry mode %q", cfg.TrackLog.RegistryMode)
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgevents.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgevents.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackLogAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	logger.Sync()
}

func (a *trackLogAPIApp) Run() error {
	var consumer kafkaConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runTrackLogAPI(a.ctx, a.opts, a.svc, consumer, a.log)
}
