package fake

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/models"
)

var _ registry.Client = (*Registry)(nil)

func TestRegistry_LookupsAreOrgScoped(t *testing.T) {
	r := New()
	r.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TR-1", Status: models.TripStatusInTransit})
	r.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o2", Code: "SH-1"})

	trips, err := r.TripsByIDs(context.Background(), "o1", []string{"T1", "T2"})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	require.Equal(t, models.ReferenceTypeTrip, trips["T1"].Type)

	ships, err := r.ShipmentsByIDs(context.Background(), "o1", []string{"S1"})
	require.NoError(t, err)
	require.Empty(t, ships)

	orgs, err := r.Organizations(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"o1", "o2"}, orgs)
}

func TestRegistry_StalledNewestFirst(t *testing.T) {
	r := New()
	now := time.Now().UTC()
	r.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o", Status: models.TripStatusDelayed, UpdatedAt: now.Add(-time.Hour)})
	r.PutTrip(models.Trackable{ID: "T2", OrganizationID: "o", Status: models.TripStatusIncident, UpdatedAt: now})
	r.PutTrip(models.Trackable{ID: "T3", OrganizationID: "o", Status: models.TripStatusCompleted, UpdatedAt: now})
	r.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o", Status: models.ShipmentStatusPending, UpdatedAt: now})

	got, err := r.StalledTrips(context.Background(), "o")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "T2", got[0].ID)

	n, err := r.CountStalled(context.Background(), "o")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestRegistry_SearchCaseInsensitiveAndCapped(t *testing.T) {
	r := New()
	for i := 0; i < 15; i++ {
		r.PutShipment(models.Trackable{ID: fmt.Sprint(i), OrganizationID: "o", Code: fmt.Sprintf("TRK-%02d", i)})
	}
	got, err := r.SearchShipments(context.Background(), "o", "trk", registry.SearchLimit)
	require.NoError(t, err)
	require.Len(t, got, registry.SearchLimit)
}

func TestRegistry_Err(t *testing.T) {
	r := New()
	r.Err = errors.New("boom")
	_, err := r.TripsByIDs(context.Background(), "o", []string{"x"})
	require.Error(t, err)
	require.Equal(t, 1, r.CallCount("TripsByIDs"))
}
