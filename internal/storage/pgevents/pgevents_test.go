package pgevents

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "tracklog_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/tracklog_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func newEvent(org string, refType models.ReferenceType, refID, eventType string, at time.Time) *models.TrackingEvent {
	return &models.TrackingEvent{
		ID:             uuid.NewString(),
		OrganizationID: org,
		ReferenceType:  refType,
		ReferenceID:    refID,
		EventType:      eventType,
		EventTime:      at,
		Source:         models.SourceManual,
	}
}

func strPtr(s string) *string { return &s }

func TestPGEvents_AppendAndRead(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	a := newEvent("org-1", models.ReferenceTypeTrip, "T1", "departed", base)
	a.Description = strPtr("left depot")
	a.Payload = json.RawMessage(`{"odometer":1200}`)
	lat, lng := 48.85, 2.35
	a.Latitude, a.Longitude = &lat, &lng
	actor := models.ActorTypeUser
	a.ActorType, a.ActorID = &actor, strPtr("u-7")

	gotA, err := st.AppendEvent(ctx, a)
	require.NoError(t, err)
	require.Equal(t, int64(1), gotA.Sequence)
	require.False(t, gotA.CreatedAt.IsZero())

	gotB, err := st.AppendEvent(ctx, newEvent("org-1", models.ReferenceTypeTrip, "T1", "arrived", base.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, int64(2), gotB.Sequence)

	gotC, err := st.AppendEvent(ctx, newEvent("org-1", models.ReferenceTypeShipment, "S1", "received", base.Add(30*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, int64(1), gotC.Sequence)

	_, err = st.AppendEvent(ctx, newEvent("org-2", models.ReferenceTypeShipment, "S9", "received", base))
	require.NoError(t, err)

	feed, err := st.ListEvents(ctx, models.EventQuery{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, feed, 3)
	require.Equal(t, gotB.ID, feed[0].ID)
	require.Equal(t, gotC.ID, feed[1].ID)
	require.Equal(t, gotA.ID, feed[2].ID)
	require.JSONEq(t, `{"odometer":1200}`, string(feed[2].Payload))
	require.Equal(t, "left depot", *feed[2].Description)
	require.Equal(t, models.ActorTypeUser, *feed[2].ActorType)
	require.InDelta(t, lat, *feed[2].Latitude, 1e-9)

	trips, err := st.ListEvents(ctx, models.EventQuery{OrganizationID: "org-1", ReferenceType: models.ReferenceTypeTrip})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	from, to := base.Add(30*time.Minute), base.Add(time.Hour)
	bounded, err := st.ListEvents(ctx, models.EventQuery{OrganizationID: "org-1", DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	require.Len(t, bounded, 2, "both bounds are inclusive")

	limited, err := st.ListEvents(ctx, models.EventQuery{OrganizationID: "org-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	hist, err := st.History(ctx, models.ReferenceTypeTrip, "T1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, gotA.ID, hist[0].ID)
	require.Equal(t, gotB.ID, hist[1].ID)

	counts, err := st.CountEvents(ctx, "org-1", base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, models.EventCounts{Total: 3, Trip: 2, Shipment: 1, Since: 2}, counts)
}

func TestPGEvents_DuplicateExternalEventID(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	first := newEvent("org-1", models.ReferenceTypeShipment, "S1", "scanned", time.Now().UTC())
	first.ExternalEventID = strPtr("ext-1")
	_, err := st.AppendEvent(ctx, first)
	require.NoError(t, err)

	again := newEvent("org-1", models.ReferenceTypeShipment, "S1", "scanned", time.Now().UTC())
	again.ExternalEventID = strPtr("ext-1")
	_, err = st.AppendEvent(ctx, again)
	var dup *models.DuplicateEventError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "ext-1", dup.ExternalEventID)

	stored, err := st.GetByExternalEventID(ctx, "ext-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, stored.ID)

	hist, err := st.History(ctx, models.ReferenceTypeShipment, "S1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestPGEvents_ConcurrentAppendsKeepSequenceContiguous(t *testing.T) {
	st := startPostgres(t)
	st.WithSequenceRetries(100)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.AppendEvent(ctx, newEvent("org-1", models.ReferenceTypeTrip, "T-race", "ping", time.Now().UTC()))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := st.History(ctx, models.ReferenceTypeTrip, "T-race")
	require.NoError(t, err)
	require.Len(t, hist, writers)

	seen := make(map[int64]bool, writers)
	for _, e := range hist {
		seen[e.Sequence] = true
	}
	for i := int64(1); i <= writers; i++ {
		require.True(t, seen[i], "sequence %d missing", i)
	}
}
