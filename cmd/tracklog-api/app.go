package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	tracklogGRPC "github.com/BearBump/TrackLog/internal/api/tracklog_grpc"
	tracklogHTTP "github.com/BearBump/TrackLog/internal/api/tracklog_http"
	"github.com/BearBump/TrackLog/internal/broker/kafka"
	"github.com/BearBump/TrackLog/internal/broker/messages"
	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/models"
)

type trackLogAPIOpts struct {
	grpcAddr    string
	httpAddr    string
	swaggerPath string

	submitTopic   string
	consumerGroup string

	searchLimiter     cache.Limiter
	searchLimitPerMin int64

	onListen func(grpcAddr, httpAddr string)
}

// service is everything both transports and the submit consumer need.
type service interface {
	tracklogHTTP.Service
	tracklogGRPC.Service
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.HandlerFunc) error
}

func runTrackLogAPI(ctx context.Context, opts trackLogAPIOpts, svc service, consumer kafkaConsumer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	if opts.onListen != nil {
		opts.onListen(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- runGRPCServer(ctx, grpcLis, tracklogGRPC.New(svc, log), log)
	}()

	httpAPI := tracklogHTTP.New(svc, log).
		WithSearchLimit(opts.searchLimiter, opts.searchLimitPerMin).
		WithSwaggerFile(opts.swaggerPath)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, httpAPI.Handler(), log)
	}()

	consumerErr := make(chan error, 1)
	if consumer != nil {
		go func() {
			log.Info("kafka consumer started", zap.String("topic", opts.submitTopic), zap.String("group", opts.consumerGroup))
			consumerErr <- consumer.Consume(ctx, submitHandler(svc, log))
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-grpcErr:
		return firstErr(ctx, err)
	case err := <-httpErr:
		return firstErr(ctx, err)
	case err := <-consumerErr:
		return firstErr(ctx, errors.Wrap(err, "submit consumer stopped"))
	}
}

// firstErr prefers the cancellation cause over errors of servers that
// stopped because of it.
func firstErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return errors.New("server stopped unexpectedly")
	}
	return err
}

// submitHandler feeds asynchronous submissions into the same ingest path as
// the synchronous API. Duplicates are acknowledged; malformed or invalid
// messages are skipped; anything else stops the consumer uncommitted so the
// message is redelivered.
func submitHandler(svc tracklogHTTP.Service, log *zap.Logger) kafka.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, key, value []byte) error {
		var m messages.EventSubmit
		if err := json.Unmarshal(value, &m); err != nil {
			return errors.Wrapf(kafka.ErrSkip, "decode submit %q: %v", key, err)
		}
		ev, err := svc.Submit(ctx, m.SubmitInput)
		var (
			de *models.DuplicateEventError
			ve *models.ValidationError
		)
		switch {
		case err == nil:
			log.Debug("event recorded from kafka",
				zap.String("event_id", ev.ID),
				zap.String("reference_id", ev.ReferenceID),
				zap.Int64("sequence", ev.Sequence),
			)
			return nil
		case errors.As(err, &de):
			log.Info("duplicate submission ignored", zap.String("external_event_id", de.ExternalEventID))
			return nil
		case errors.As(err, &ve):
			return errors.Wrapf(kafka.ErrSkip, "invalid submission: %v", err)
		default:
			return err
		}
	}
}

func runGRPCServer(ctx context.Context, lis net.Listener, api *tracklogGRPC.TrackingLogAPI, log *zap.Logger) error {
	s := grpc.NewServer()
	tracklogGRPC.Register(s, api)

	go func() {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
		_ = lis.Close()
	}()

	log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	return s.Serve(lis)
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
