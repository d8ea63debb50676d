package tracklog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/TrackLog/internal/integrations/registry/fake"
	"github.com/BearBump/TrackLog/internal/models"
	"github.com/BearBump/TrackLog/internal/storage/memevents"
)

type env struct {
	svc   *Service
	store *memevents.Store
	reg   *fake.Registry
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := memevents.New()
	reg := fake.New()
	return env{svc: New(store, reg, nil), store: store, reg: reg}
}

func (e env) submit(t *testing.T, in models.SubmitInput) *models.TrackingEvent {
	t.Helper()
	out, err := e.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	return out
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 5, 1, hh, mm, 0, 0, time.UTC)
}

func TestSubmit_SequencePerReference(t *testing.T) {
	e := newEnv(t)
	in := models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "a"}

	require.Equal(t, int64(1), e.submit(t, in).Sequence)
	require.Equal(t, int64(2), e.submit(t, in).Sequence)

	in.ReferenceType = models.ReferenceTypeShipment
	require.Equal(t, int64(1), e.submit(t, in).Sequence)
}

func TestSubmit_DuplicateExternalIDRejected(t *testing.T) {
	e := newEnv(t)
	in := models.SubmitInput{
		OrganizationID: "o1", ReferenceType: models.ReferenceTypeShipment, ReferenceID: "S1", EventType: "scanned",
		ExternalEventID: strPtr("dev-1"),
	}
	first := e.submit(t, in)

	in.EventType = "something else"
	_, err := e.svc.Submit(context.Background(), in)
	var de *models.DuplicateEventError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "dev-1", de.ExternalEventID)

	hist, err := e.svc.History(context.Background(), models.ReferenceTypeShipment, "S1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, first.ID, hist[0].ID)
}

func TestSubmit_ExternalIDIsTrimmed(t *testing.T) {
	e := newEnv(t)
	in := models.SubmitInput{
		OrganizationID: "o1", ReferenceType: models.ReferenceTypeShipment, ReferenceID: "S1", EventType: "scanned",
		ExternalEventID: strPtr("ext-1"),
	}
	e.submit(t, in)

	in.ExternalEventID = strPtr("  ext-1 ")
	_, err := e.svc.Submit(context.Background(), in)
	var de *models.DuplicateEventError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "ext-1", de.ExternalEventID)

	stored, err := e.store.GetByExternalEventID(context.Background(), "ext-1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	hist, err := e.svc.History(context.Background(), models.ReferenceTypeShipment, "S1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestSubmit_ConcurrentProducersGetContiguousSequences(t *testing.T) {
	e := newEnv(t)
	const n = 100

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.svc.Submit(context.Background(), models.SubmitInput{
				OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1",
				EventType: "ping", ExternalEventID: strPtr(fmt.Sprintf("ext-%d", i%50)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var dups int
	for err := range errs {
		var de *models.DuplicateEventError
		if errors.As(err, &de) {
			dups++
			continue
		}
		require.NoError(t, err)
	}
	require.Equal(t, 50, dups)

	hist, err := e.svc.History(context.Background(), models.ReferenceTypeTrip, "T1")
	require.NoError(t, err)
	require.Len(t, hist, 50)
	for i, ev := range hist {
		require.Equal(t, int64(i+1), ev.Sequence)
	}
}

func TestList_OrderEnrichmentAndSearch(t *testing.T) {
	e := newEnv(t)
	e.reg.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TRIP-ALPHA", Status: models.TripStatusInTransit, OriginLabel: "Lyon"})
	e.reg.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o1", Code: "TRK-9", Status: models.ShipmentStatusPending})

	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "departed", EventTime: at(9, 0)})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "ping", EventTime: at(9, 0)})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeShipment, ReferenceID: "S1", EventType: "scanned", EventTime: at(10, 0), Description: strPtr("Left at gate")})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeShipment, ReferenceID: "GONE", EventType: "scanned", EventTime: at(8, 0)})
	e.submit(t, models.SubmitInput{OrganizationID: "o2", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T9", EventType: "x", EventTime: at(11, 0)})

	out, err := e.svc.List(context.Background(), "o1", models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Equal(t, "S1", out[0].ReferenceID)
	require.Equal(t, "ping", out[1].EventType, "same time: later sequence first")
	require.Equal(t, "departed", out[2].EventType)
	require.Equal(t, "GONE", out[3].ReferenceID)

	require.Equal(t, "TRIP-ALPHA", out[1].ReferenceData.Code)
	require.Equal(t, "Lyon", out[1].ReferenceData.Origin)
	require.Nil(t, out[3].ReferenceData, "unknown trackable stays unenriched")

	trips, err := e.svc.List(context.Background(), "o1", models.ListFilter{ReferenceType: models.ReferenceTypeTrip})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	from, to := at(9, 0), at(9, 0)
	bounded, err := e.svc.List(context.Background(), "o1", models.ListFilter{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	require.Len(t, bounded, 2, "inclusive bounds")

	byCode, err := e.svc.List(context.Background(), "o1", models.ListFilter{Search: "  alpha "})
	require.NoError(t, err)
	require.Len(t, byCode, 2)

	byText, err := e.svc.List(context.Background(), "o1", models.ListFilter{Search: "GATE"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	require.Equal(t, "S1", byText[0].ReferenceID)

	none, err := e.svc.List(context.Background(), "o1", models.ListFilter{Search: "zzz"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestList_WindowCapsFetch(t *testing.T) {
	e := newEnv(t)
	e.svc.WithSettings(Settings{ListWindow: 3})
	for i := 0; i < 5; i++ {
		e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "p", EventTime: at(9, i)})
	}
	out, err := e.svc.List(context.Background(), "o1", models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.True(t, out[0].EventTime.Equal(at(9, 4)))
}

func TestList_RegistryFailureFailsRead(t *testing.T) {
	e := newEnv(t)
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "p"})
	e.reg.Err = errors.New("registry down")

	_, err := e.svc.List(context.Background(), "o1", models.ListFilter{})
	var le *models.ReferenceLookupError
	require.True(t, errors.As(err, &le))
	require.Equal(t, models.ReferenceTypeTrip, le.ReferenceType)
}

func TestHistory_OldestFirstAndValidation(t *testing.T) {
	e := newEnv(t)
	e.reg.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TR-1"})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "late", EventTime: at(12, 0)})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "early", EventTime: at(8, 0)})

	hist, err := e.svc.History(context.Background(), models.ReferenceTypeTrip, "T1")
	require.NoError(t, err)
	require.Equal(t, "early", hist[0].EventType)
	require.Equal(t, "late", hist[1].EventType)
	require.Equal(t, "TR-1", hist[0].ReferenceData.Code)

	empty, err := e.svc.History(context.Background(), models.ReferenceTypeShipment, "nothing")
	require.NoError(t, err)
	require.Empty(t, empty)

	var ve *models.ValidationError
	_, err = e.svc.History(context.Background(), "vehicle", "T1")
	require.True(t, errors.As(err, &ve))
	_, err = e.svc.History(context.Background(), models.ReferenceTypeTrip, " ")
	require.True(t, errors.As(err, &ve))
}

func TestStoppedItems_MergedNewestFirst(t *testing.T) {
	e := newEnv(t)
	e.reg.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TR-1", Status: models.TripStatusDelayed, UpdatedAt: at(8, 0)})
	e.reg.PutTrip(models.Trackable{ID: "T2", OrganizationID: "o1", Code: "TR-2", Status: models.TripStatusCompleted, UpdatedAt: at(11, 0)})
	e.reg.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o1", Code: "SH-1", Status: models.ShipmentStatusReceived, UpdatedAt: at(10, 0)})
	e.reg.PutShipment(models.Trackable{ID: "S2", OrganizationID: "o1", Code: "SH-2", Status: models.ShipmentStatusPending, UpdatedAt: at(7, 0)})

	items, err := e.svc.StoppedItems(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []string{"S1", "T1", "S2"}, []string{items[0].ID, items[1].ID, items[2].ID})
	require.Equal(t, at(10, 0), items[0].StoppedSince)
	require.Equal(t, models.ReferenceTypeShipment, items[0].Type)
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 12; i++ {
		e.reg.PutTrip(models.Trackable{ID: fmt.Sprintf("T%d", i), OrganizationID: "o1", Code: fmt.Sprintf("ABC-%02d", i)})
	}
	e.reg.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o1", Code: "abc-ship"})
	e.reg.PutShipment(models.Trackable{ID: "S2", OrganizationID: "o2", Code: "ABC-other"})

	out, err := e.svc.Search(context.Background(), "o1", " abc ")
	require.NoError(t, err)
	require.Len(t, out, 11)
	for _, r := range out[:10] {
		require.Equal(t, models.ReferenceTypeTrip, r.Type)
	}
	require.Equal(t, "S1", out[10].ID)

	empty, err := e.svc.Search(context.Background(), "o1", "   ")
	require.NoError(t, err)
	require.Empty(t, empty)
	require.Equal(t, 1, e.reg.CallCount("SearchTrips"))
}

func TestExportCSV_MatchesList(t *testing.T) {
	e := newEnv(t)
	e.reg.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TR-1", Status: models.TripStatusInTransit})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1", EventType: "departed", EventTime: at(9, 30), LocationText: strPtr("Depot, Lyon")})
	e.submit(t, models.SubmitInput{OrganizationID: "o1", ReferenceType: models.ReferenceTypeShipment, ReferenceID: "S1", EventType: "scanned", EventTime: at(9, 0)})

	out, err := e.svc.ExportCSV(context.Background(), "o1", models.ListFilter{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, `"01/05/2025 09:30:00","Trip","TR-1","departed","Depot, Lyon","","in_transit"`, lines[1])
	require.Equal(t, `"01/05/2025 09:00:00","Shipment","","scanned","","",""`, lines[2])
}
