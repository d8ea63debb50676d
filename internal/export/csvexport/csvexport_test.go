package csvexport

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/TrackLog/internal/models"
)

func strPtr(s string) *string { return &s }

func TestToCSV(t *testing.T) {
	at := time.Date(2025, 3, 4, 9, 5, 7, 0, time.UTC)
	events := []*models.TrackingEvent{
		{
			ReferenceType: models.ReferenceTypeTrip,
			EventType:     "departed",
			EventTime:     at,
			LocationText:  strPtr("Depot, Lyon"),
			Description:   strPtr(`driver said "ok"`),
			ReferenceData: &models.ReferenceData{Code: "TRIP-1", Status: "in_transit"},
		},
		{
			ReferenceType: models.ReferenceTypeShipment,
			EventType:     "scanned",
			EventTime:     at.Add(time.Hour),
		},
	}

	out := ToCSV(events, Options{})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, `"Datetime","Type","Code","Event type","Location","Description","Status"`, lines[0])
	require.Equal(t, `"04/03/2025 09:05:07","Trip","TRIP-1","departed","Depot, Lyon","driver said ""ok""","in_transit"`, lines[1])
	require.Equal(t, `"04/03/2025 10:05:07","Shipment","","scanned","","",""`, lines[2])

	// a standard reader sees the original values
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, "Depot, Lyon", recs[1][4])
	require.Equal(t, `driver said "ok"`, recs[1][5])
}

func TestToCSV_LocationAndEmpty(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	out := ToCSV([]*models.TrackingEvent{{
		ReferenceType: models.ReferenceTypeTrip,
		EventType:     "x",
		EventTime:     time.Date(2025, 12, 31, 22, 0, 0, 0, time.UTC),
	}}, Options{Location: loc})
	require.Contains(t, out, `"01/01/2026 01:00:00"`)

	out = ToCSV(nil, Options{})
	require.Equal(t, 1, strings.Count(out, "\n"))
}
