package tracklog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/metrics"
	"github.com/BearBump/TrackLog/internal/models"
)

// Enricher attaches registry data to events at read time. Trips and
// shipments are resolved with one batched call each, run concurrently.
type Enricher struct {
	registry registry.Client
	cache    cache.BytesCache
	ttl      time.Duration
	log      *zap.Logger
}

func NewEnricher(reg registry.Client, c cache.BytesCache, ttl time.Duration, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{registry: reg, cache: c, ttl: ttl, log: log}
}

// Enrich sets ReferenceData on every event whose trackable was found. A
// trackable the registry does not know leaves the event's ReferenceData nil.
// A failed batched call fails the whole read with ReferenceLookupError.
func (e *Enricher) Enrich(ctx context.Context, organizationID string, events []*models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	tripIDs := distinctIDs(events, models.ReferenceTypeTrip)
	shipmentIDs := distinctIDs(events, models.ReferenceTypeShipment)

	var trips, shipments map[string]*models.Trackable
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trips, err = e.lookup(gctx, models.ReferenceTypeTrip, organizationID, tripIDs)
		return err
	})
	g.Go(func() error {
		var err error
		shipments, err = e.lookup(gctx, models.ReferenceTypeShipment, organizationID, shipmentIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, ev := range events {
		var t *models.Trackable
		switch ev.ReferenceType {
		case models.ReferenceTypeTrip:
			t = trips[ev.ReferenceID]
		case models.ReferenceTypeShipment:
			t = shipments[ev.ReferenceID]
		}
		if t != nil {
			ev.ReferenceData = t.ReferenceData()
		}
	}
	return nil
}

func (e *Enricher) lookup(ctx context.Context, t models.ReferenceType, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	got := make(map[string]*models.Trackable, len(ids))
	if len(ids) == 0 {
		return got, nil
	}

	miss := ids
	if e.cached() {
		miss = make([]string, 0, len(ids))
		for _, id := range ids {
			b, ok, err := e.cache.Get(ctx, trackableKey(t, organizationID, id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var tr models.Trackable
			if json.Unmarshal(b, &tr) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &tr
		}
	}
	if len(miss) == 0 {
		return got, nil
	}

	var (
		found map[string]*models.Trackable
		err   error
	)
	switch t {
	case models.ReferenceTypeTrip:
		found, err = e.registry.TripsByIDs(ctx, organizationID, miss)
	default:
		found, err = e.registry.ShipmentsByIDs(ctx, organizationID, miss)
	}
	if err != nil {
		metrics.ReferenceLookupFailures.WithLabelValues(string(t)).Inc()
		return nil, &models.ReferenceLookupError{ReferenceType: t, Err: err}
	}

	for id, tr := range found {
		got[id] = tr
		if e.cached() {
			b, _ := json.Marshal(tr)
			if err := e.cache.Set(ctx, trackableKey(t, organizationID, id), b, e.ttl); err != nil {
				e.log.Debug("trackable cache set failed", zap.Error(err))
			}
		}
	}
	return got, nil
}

func (e *Enricher) cached() bool {
	return e.cache != nil && e.ttl > 0
}

func trackableKey(t models.ReferenceType, organizationID, id string) string {
	return string(t) + ":" + organizationID + ":" + id
}

func distinctIDs(events []*models.TrackingEvent, t models.ReferenceType) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, ev := range events {
		if ev.ReferenceType != t {
			continue
		}
		if _, ok := seen[ev.ReferenceID]; ok {
			continue
		}
		seen[ev.ReferenceID] = struct{}{}
		out = append(out, ev.ReferenceID)
	}
	sort.Strings(out)
	return out
}
