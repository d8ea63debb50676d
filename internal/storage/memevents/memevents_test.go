package memevents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
	"github.com/stretchr/testify/require"
)

func ev(org string, refType models.ReferenceType, refID string, at time.Time) *models.TrackingEvent {
	return &models.TrackingEvent{
		ID:             refID + at.String(),
		OrganizationID: org,
		ReferenceType:  refType,
		ReferenceID:    refID,
		EventType:      "ping",
		EventTime:      at,
		Source:         models.SourceSystem,
	}
}

func TestStore_SequencePerReference(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", now))
	require.NoError(t, err)
	b, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", now))
	require.NoError(t, err)
	c, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeShipment, "T1", now))
	require.NoError(t, err)

	require.Equal(t, int64(1), a.Sequence)
	require.Equal(t, int64(2), b.Sequence)
	require.Equal(t, int64(1), c.Sequence, "same id under another type is another key")
}

func TestStore_DuplicateLeavesOneRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := "ext-1"

	e1 := ev("o", models.ReferenceTypeShipment, "S1", time.Now())
	e1.ExternalEventID = &key
	_, err := s.AppendEvent(ctx, e1)
	require.NoError(t, err)

	e2 := ev("o", models.ReferenceTypeShipment, "S1", time.Now())
	e2.ExternalEventID = &key
	_, err = s.AppendEvent(ctx, e2)
	var dup *models.DuplicateEventError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, 1, s.Len())

	got, err := s.GetByExternalEventID(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Sequence)

	// the rejected submission must not consume a sequence number
	next, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeShipment, "S1", time.Now()))
	require.NoError(t, err)
	require.Equal(t, int64(2), next.Sequence)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", time.Now()))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	hist, err := s.History(ctx, models.ReferenceTypeTrip, "T1")
	require.NoError(t, err)
	require.Len(t, hist, n)
	seen := make(map[int64]bool, n)
	for _, e := range hist {
		seen[e.Sequence] = true
	}
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i])
	}
}

func TestStore_ListOrderingAndFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _ = s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", base))
	_, _ = s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", base)) // same time, later insertion
	_, _ = s.AppendEvent(ctx, ev("o", models.ReferenceTypeShipment, "S1", base.Add(time.Hour)))
	_, _ = s.AppendEvent(ctx, ev("other", models.ReferenceTypeShipment, "S2", base))

	all, err := s.ListEvents(ctx, models.EventQuery{OrganizationID: "o", ReferenceType: models.ReferenceTypeAll})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "S1", all[0].ReferenceID)
	require.Equal(t, int64(2), all[1].Sequence)
	require.Equal(t, int64(1), all[2].Sequence)

	trips, err := s.ListEvents(ctx, models.EventQuery{OrganizationID: "o", ReferenceType: models.ReferenceTypeTrip})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	from := base.Add(time.Hour)
	late, err := s.ListEvents(ctx, models.EventQuery{OrganizationID: "o", DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, late, 1)

	to := base
	early, err := s.ListEvents(ctx, models.EventQuery{OrganizationID: "o", DateTo: &to})
	require.NoError(t, err)
	require.Len(t, early, 2)

	one, err := s.ListEvents(ctx, models.EventQuery{OrganizationID: "o", Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)

	c, err := s.CountEvents(ctx, "o", base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, models.EventCounts{Total: 3, Trip: 2, Shipment: 1, Since: 1}, c)
}

func TestStore_HistoryOldestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	_, _ = s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", base))
	_, _ = s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", base.Add(time.Minute)))

	h, err := s.History(ctx, models.ReferenceTypeTrip, "T1")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, []int64{h[0].Sequence, h[1].Sequence})
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.AppendEvent(ctx, ev("o", models.ReferenceTypeTrip, "T1", time.Now()))
	require.ErrorIs(t, err, context.Canceled)
}
