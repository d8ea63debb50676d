// Package sweeper periodically looks for stopped trips and shipments in
// every organization and publishes one alert per item and status per alert
// window.
package sweeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/internal/broker/messages"
	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/metrics"
	"github.com/BearBump/TrackLog/internal/models"
)

type Detector interface {
	StoppedItems(ctx context.Context, organizationID string) ([]models.StoppedItem, error)
}

type OrganizationLister interface {
	Organizations(ctx context.Context) ([]string, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Sweeper struct {
	detector  Detector
	orgs      OrganizationLister
	publisher Publisher
	dedup     cache.Deduper
	log       *zap.Logger

	topic string

	interval       time.Duration
	concurrency    int
	alertWindow    time.Duration
	publishTries   int
	publishBackoff time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalOrganizations  atomic.Int64
	totalAlerts         atomic.Int64
	totalSuppressed     atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

// New builds a sweeper. A nil dedup falls back to an in-process LRU, which
// forgets alerts on restart and is not shared between replicas.
func New(det Detector, orgs OrganizationLister, pub Publisher, dedup cache.Deduper, topic string, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		detector: det, orgs: orgs, publisher: pub, dedup: dedup, topic: topic, log: log,
		interval:          time.Minute,
		concurrency:       4,
		alertWindow:       time.Hour,
		publishTries:      3,
		publishBackoff:    200 * time.Millisecond,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
	if s.dedup == nil {
		s.dedup = newMemoryDedup(s.alertWindow)
	}
	return s
}

func (s *Sweeper) WithSettings(interval time.Duration, concurrency int, alertWindow time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if alertWindow > 0 {
		s.alertWindow = alertWindow
		if md, ok := s.dedup.(*memoryDedup); ok {
			md.reset(alertWindow)
		}
	}
	return s
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Settings struct {
	Interval    time.Duration `json:"interval"`
	Concurrency int           `json:"concurrency"`
	AlertWindow time.Duration `json:"alertWindow"`
	Topic       string        `json:"topic"`
}

func (s *Sweeper) Settings() Settings {
	return Settings{Interval: s.interval, Concurrency: s.concurrency, AlertWindow: s.alertWindow, Topic: s.topic}
}

type Stats struct {
	StartedAt          time.Time  `json:"startedAt"`
	LastCycleAt        *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt      *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles        int64      `json:"totalCycles"`
	TotalOrganizations int64      `json:"totalOrganizations"`
	TotalAlerts        int64      `json:"totalAlerts"`
	TotalSuppressed    int64      `json:"totalSuppressed"`
	TotalErrors        int64      `json:"totalErrors"`
	InFlight           int64      `json:"inFlight"`
	LastError          string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:          time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalCycles:        s.totalCycles.Load(),
		TotalOrganizations: s.totalOrganizations.Load(),
		TotalAlerts:        s.totalAlerts.Load(),
		TotalSuppressed:    s.totalSuppressed.Load(),
		TotalErrors:        s.totalErrors.Load(),
		InFlight:           s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.RunOnce(ctx)
		case <-s.triggerCh:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every organization once, at most concurrency at a time.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())
	s.totalCycles.Add(1)

	orgs, err := s.orgs.Organizations(ctx)
	if err != nil {
		s.fail(errors.Wrap(err, "list organizations"))
		return
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, org := range orgs {
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func(org string) {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.sweepOrganization(ctx, org, now); err != nil {
				s.fail(err)
				s.log.Error("sweep organization", zap.String("organization_id", org), zap.Error(err))
			}
			s.totalOrganizations.Add(1)
		}(org)
	}
	wg.Wait()
}

func (s *Sweeper) sweepOrganization(ctx context.Context, org string, now time.Time) error {
	items, err := s.detector.StoppedItems(ctx, org)
	if err != nil {
		return errors.Wrap(err, "stopped items")
	}

	for _, it := range items {
		first, err := s.dedup.Once(ctx, alertKey(org, it), s.alertWindow)
		if err != nil {
			return errors.Wrap(err, "dedup alert")
		}
		if !first {
			s.totalSuppressed.Add(1)
			continue
		}

		msg := messages.ItemStalled{
			OrganizationID: org,
			ReferenceType:  it.Type,
			ReferenceID:    it.ID,
			Code:           it.Code,
			Status:         it.Status,
			StoppedSince:   it.StoppedSince,
			DetectedAt:     now,
		}
		if err := s.publish(ctx, it.ID, msg); err != nil {
			metrics.PublishFailures.WithLabelValues(s.topic).Inc()
			return err
		}
		metrics.StalledAlerts.WithLabelValues(string(it.Type)).Inc()
		s.totalAlerts.Add(1)
	}
	return nil
}

func (s *Sweeper) publish(ctx context.Context, key string, msg messages.ItemStalled) error {
	var err error
	for i := 0; i < s.publishTries; i++ {
		if err = s.publisher.PublishJSON(ctx, s.topic, key, msg); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * s.publishBackoff):
		}
	}
	return errors.Wrap(err, "publish item stalled")
}

func (s *Sweeper) fail(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func alertKey(org string, it models.StoppedItem) string {
	return "stalled:" + org + ":" + string(it.Type) + ":" + it.ID + ":" + it.Status
}

const memoryDedupSize = 100_000

type memoryDedup struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

func newMemoryDedup(window time.Duration) *memoryDedup {
	return &memoryDedup{lru: expirable.NewLRU[string, struct{}](memoryDedupSize, nil, window)}
}

func (m *memoryDedup) reset(window time.Duration) {
	m.mu.Lock()
	m.lru = expirable.NewLRU[string, struct{}](memoryDedupSize, nil, window)
	m.mu.Unlock()
}

// Once ignores ttl; the window is fixed when the LRU is built.
func (m *memoryDedup) Once(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lru.Contains(key) {
		return false, nil
	}
	m.lru.Add(key, struct{}{})
	return true, nil
}
