package registry

import (
	"context"

	"github.com/BearBump/TrackLog/internal/models"
)

// SearchLimit caps type-ahead results per trackable type.
const SearchLimit = 10

// Client reads the trip, shipment and stop registries. Lookups by id return
// only what was found; a missing id is not an error.
type Client interface {
	TripsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error)
	ShipmentsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error)
	StopsByIDs(ctx context.Context, ids []string) (map[string]*models.Stop, error)

	// StalledTrips and StalledShipments are ordered by UpdatedAt, newest first.
	StalledTrips(ctx context.Context, organizationID string) ([]*models.Trackable, error)
	StalledShipments(ctx context.Context, organizationID string) ([]*models.Trackable, error)
	CountStalled(ctx context.Context, organizationID string) (int64, error)

	SearchTrips(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error)
	SearchShipments(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error)

	Organizations(ctx context.Context) ([]string, error)
}
