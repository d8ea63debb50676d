// Package memevents is an in-process event log with the same contract as
// the Postgres store: duplicate rejection and sequence allocation happen
// under one lock together with the append. Used by local runs and tests.
package memevents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
)

type refKey struct {
	refType models.ReferenceType
	refID   string
}

type Store struct {
	mu sync.RWMutex

	events     []*models.TrackingEvent
	byExternal map[string]int
	sequences  map[refKey]int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		byExternal: make(map[string]int),
		sequences:  make(map[refKey]int64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) AppendEvent(ctx context.Context, ev *models.TrackingEvent) (*models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ExternalEventID != nil {
		if _, ok := s.byExternal[*ev.ExternalEventID]; ok {
			return nil, &models.DuplicateEventError{ExternalEventID: *ev.ExternalEventID}
		}
	}

	k := refKey{refType: ev.ReferenceType, refID: ev.ReferenceID}
	s.sequences[k]++

	out := *ev
	out.Sequence = s.sequences[k]
	out.EventTime = ev.EventTime.UTC()
	out.CreatedAt = s.now()

	s.events = append(s.events, &out)
	if ev.ExternalEventID != nil {
		s.byExternal[*ev.ExternalEventID] = len(s.events) - 1
	}

	cp := out
	return &cp, nil
}

func (s *Store) ListEvents(ctx context.Context, q models.EventQuery) ([]*models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}

	s.mu.RLock()
	out := make([]*models.TrackingEvent, 0)
	for _, e := range s.events {
		if e.OrganizationID != q.OrganizationID {
			continue
		}
		if q.ReferenceType != "" && q.ReferenceType != models.ReferenceTypeAll && e.ReferenceType != q.ReferenceType {
			continue
		}
		if q.DateFrom != nil && e.EventTime.Before(*q.DateFrom) {
			continue
		}
		if q.DateTo != nil && e.EventTime.After(*q.DateTo) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].EventTime.After(out[j].EventTime)
		}
		return out[i].Sequence > out[j].Sequence
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*models.TrackingEvent, 0)
	for _, e := range s.events {
		if e.ReferenceType == referenceType && e.ReferenceID == referenceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].EventTime.Before(out[j].EventTime)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (s *Store) CountEvents(ctx context.Context, organizationID string, since time.Time) (models.EventCounts, error) {
	if err := ctx.Err(); err != nil {
		return models.EventCounts{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var c models.EventCounts
	for _, e := range s.events {
		if e.OrganizationID != organizationID {
			continue
		}
		c.Total++
		switch e.ReferenceType {
		case models.ReferenceTypeTrip:
			c.Trip++
		case models.ReferenceTypeShipment:
			c.Shipment++
		}
		if !e.EventTime.Before(since) {
			c.Since++
		}
	}
	return c, nil
}

func (s *Store) GetByExternalEventID(ctx context.Context, externalEventID string) (*models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byExternal[externalEventID]
	if !ok {
		return nil, nil
	}
	cp := *s.events[i]
	return &cp, nil
}

// Len reports how many events are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
