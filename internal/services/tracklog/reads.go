package tracklog

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BearBump/TrackLog/internal/export/csvexport"
	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/metrics"
	"github.com/BearBump/TrackLog/internal/models"
)

func observe(op string, start time.Time) {
	metrics.ReadDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// List reads the organization's feed window, newest first, enriches it and
// applies the free-text search. Events outside the window are not visible.
func (s *Service) List(ctx context.Context, organizationID string, f models.ListFilter) ([]*models.TrackingEvent, error) {
	defer observe("list", time.Now())

	org, err := normalizeOrg(organizationID)
	if err != nil {
		return nil, err
	}
	refType := f.ReferenceType
	if refType == "" {
		refType = models.ReferenceTypeAll
	}
	if refType != models.ReferenceTypeAll && !refType.Valid() {
		return nil, &models.ValidationError{Fields: []string{"referenceType"}, Reason: "must be one of: trip shipment all"}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return nil, &models.ValidationError{Fields: []string{"dateFrom", "dateTo"}, Reason: "dateFrom is after dateTo"}
	}

	events, err := s.repo.ListEvents(ctx, models.EventQuery{
		OrganizationID: org,
		ReferenceType:  refType,
		DateFrom:       f.DateFrom,
		DateTo:         f.DateTo,
		Limit:          s.settings.ListWindow,
	})
	if err != nil {
		return nil, asStorageError("list events", err)
	}
	if err := s.enricher.Enrich(ctx, org, events); err != nil {
		return nil, err
	}
	return filterEvents(events, f.Search), nil
}

// History returns every event of one trackable, oldest first, enriched.
func (s *Service) History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error) {
	defer observe("history", time.Now())

	referenceID = strings.TrimSpace(referenceID)
	var fields []string
	if !referenceType.Valid() {
		fields = append(fields, "referenceType")
	}
	if referenceID == "" {
		fields = append(fields, "referenceId")
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields, Reason: "a trip or shipment reference is required"}
	}

	events, err := s.repo.History(ctx, referenceType, referenceID)
	if err != nil {
		return nil, asStorageError("history", err)
	}
	if len(events) == 0 {
		return events, nil
	}
	if err := s.enricher.Enrich(ctx, events[0].OrganizationID, events); err != nil {
		return nil, err
	}
	return events, nil
}

// Stats reads log counts and the live stalled count concurrently. The two
// reads are independent, so the result is not a snapshot.
func (s *Service) Stats(ctx context.Context, organizationID string) (models.Stats, error) {
	defer observe("stats", time.Now())

	org, err := normalizeOrg(organizationID)
	if err != nil {
		return models.Stats{}, err
	}
	now := s.now()
	today := startOfDay(now, s.settings.Location)

	var (
		counts  models.EventCounts
		stalled int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.repo.CountEvents(gctx, org, today)
		if err != nil {
			return asStorageError("count events", err)
		}
		counts = c
		return nil
	})
	g.Go(func() error {
		n, err := s.registry.CountStalled(gctx, org)
		if err != nil {
			metrics.ReferenceLookupFailures.WithLabelValues(string(models.ReferenceTypeAll)).Inc()
			return &models.ReferenceLookupError{ReferenceType: models.ReferenceTypeAll, Err: err}
		}
		stalled = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}

	return models.Stats{
		TotalEvents:    counts.Total,
		TripEvents:     counts.Trip,
		ShipmentEvents: counts.Shipment,
		TodayEvents:    counts.Since,
		StoppedItems:   stalled,
		ComputedAt:     now,
	}, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// StoppedItems lists trips and shipments whose registry status means they
// are not moving, most recently changed first. It does not look at the log.
func (s *Service) StoppedItems(ctx context.Context, organizationID string) ([]models.StoppedItem, error) {
	defer observe("stopped_items", time.Now())

	org, err := normalizeOrg(organizationID)
	if err != nil {
		return nil, err
	}

	var trips, shipments []*models.Trackable
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trips, err = s.registry.StalledTrips(gctx, org)
		if err != nil {
			return &models.ReferenceLookupError{ReferenceType: models.ReferenceTypeTrip, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		shipments, err = s.registry.StalledShipments(gctx, org)
		if err != nil {
			return &models.ReferenceLookupError{ReferenceType: models.ReferenceTypeShipment, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.StoppedItem, 0, len(trips)+len(shipments))
	for _, t := range append(trips, shipments...) {
		out = append(out, models.StoppedItem{
			Type:         t.Type,
			ID:           t.ID,
			Code:         t.Code,
			Status:       t.Status,
			StoppedSince: t.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StoppedSince.After(out[j].StoppedSince)
	})
	return out, nil
}

// Search matches trip codes and shipment tracking numbers. Trips come first,
// each type capped separately.
func (s *Service) Search(ctx context.Context, organizationID, query string) ([]models.SearchResult, error) {
	defer observe("search", time.Now())

	org, err := normalizeOrg(organizationID)
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return []models.SearchResult{}, nil
	}

	trips, err := s.registry.SearchTrips(ctx, org, q, registry.SearchLimit)
	if err != nil {
		return nil, &models.ReferenceLookupError{ReferenceType: models.ReferenceTypeTrip, Err: err}
	}
	shipments, err := s.registry.SearchShipments(ctx, org, q, registry.SearchLimit)
	if err != nil {
		return nil, &models.ReferenceLookupError{ReferenceType: models.ReferenceTypeShipment, Err: err}
	}

	out := make([]models.SearchResult, 0, len(trips)+len(shipments))
	for _, group := range [][]*models.Trackable{trips, shipments} {
		if len(group) > registry.SearchLimit {
			group = group[:registry.SearchLimit]
		}
		for _, t := range group {
			out = append(out, models.SearchResult{Type: t.Type, ID: t.ID, Code: t.Code, Status: t.Status})
		}
	}
	return out, nil
}

// ExportCSV renders exactly what List returns for the same filter.
func (s *Service) ExportCSV(ctx context.Context, organizationID string, f models.ListFilter) (string, error) {
	events, err := s.List(ctx, organizationID, f)
	if err != nil {
		return "", err
	}
	return csvexport.ToCSV(events, csvexport.Options{Location: s.settings.Location}), nil
}
