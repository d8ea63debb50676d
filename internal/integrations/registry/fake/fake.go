// Package fake is an in-memory registry for local runs and tests.
package fake

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/BearBump/TrackLog/internal/models"
)

type Registry struct {
	mu        sync.RWMutex
	trips     map[string]*models.Trackable
	shipments map[string]*models.Trackable
	stops     map[string]*models.Stop

	// Err, when set, is returned by every call.
	Err error
	// Calls counts lookups by method name.
	Calls map[string]int
}

func New() *Registry {
	return &Registry{
		trips:     make(map[string]*models.Trackable),
		shipments: make(map[string]*models.Trackable),
		stops:     make(map[string]*models.Stop),
		Calls:     make(map[string]int),
	}
}

// PutTrip stores a copy of t under its ID, forcing the trip type.
func (r *Registry) PutTrip(t models.Trackable) {
	t.Type = models.ReferenceTypeTrip
	r.mu.Lock()
	r.trips[t.ID] = &t
	r.mu.Unlock()
}

func (r *Registry) PutShipment(t models.Trackable) {
	t.Type = models.ReferenceTypeShipment
	r.mu.Lock()
	r.shipments[t.ID] = &t
	r.mu.Unlock()
}

func (r *Registry) PutStop(s models.Stop) {
	r.mu.Lock()
	r.stops[s.ID] = &s
	r.mu.Unlock()
}

func (r *Registry) CallCount(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Calls[method]
}

func (r *Registry) enter(method string) error {
	r.mu.Lock()
	r.Calls[method]++
	err := r.Err
	r.mu.Unlock()
	return err
}

func (r *Registry) TripsByIDs(_ context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	if err := r.enter("TripsByIDs"); err != nil {
		return nil, err
	}
	return r.byIDs(r.trips, organizationID, ids), nil
}

func (r *Registry) ShipmentsByIDs(_ context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	if err := r.enter("ShipmentsByIDs"); err != nil {
		return nil, err
	}
	return r.byIDs(r.shipments, organizationID, ids), nil
}

func (r *Registry) StopsByIDs(_ context.Context, ids []string) (map[string]*models.Stop, error) {
	if err := r.enter("StopsByIDs"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.Stop, len(ids))
	for _, id := range ids {
		if s, ok := r.stops[id]; ok {
			cp := *s
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *Registry) StalledTrips(_ context.Context, organizationID string) ([]*models.Trackable, error) {
	if err := r.enter("StalledTrips"); err != nil {
		return nil, err
	}
	return r.withStatus(r.trips, organizationID, models.StalledTripStatuses), nil
}

func (r *Registry) StalledShipments(_ context.Context, organizationID string) ([]*models.Trackable, error) {
	if err := r.enter("StalledShipments"); err != nil {
		return nil, err
	}
	return r.withStatus(r.shipments, organizationID, models.StalledShipmentStatuses), nil
}

func (r *Registry) CountStalled(_ context.Context, organizationID string) (int64, error) {
	if err := r.enter("CountStalled"); err != nil {
		return 0, err
	}
	n := len(r.withStatus(r.trips, organizationID, models.StalledTripStatuses)) +
		len(r.withStatus(r.shipments, organizationID, models.StalledShipmentStatuses))
	return int64(n), nil
}

func (r *Registry) SearchTrips(_ context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	if err := r.enter("SearchTrips"); err != nil {
		return nil, err
	}
	return r.search(r.trips, organizationID, query, limit), nil
}

func (r *Registry) SearchShipments(_ context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	if err := r.enter("SearchShipments"); err != nil {
		return nil, err
	}
	return r.search(r.shipments, organizationID, query, limit), nil
}

func (r *Registry) Organizations(_ context.Context) ([]string, error) {
	if err := r.enter("Organizations"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, m := range []map[string]*models.Trackable{r.trips, r.shipments} {
		for _, t := range m {
			seen[t.OrganizationID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for org := range seen {
		out = append(out, org)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) byIDs(src map[string]*models.Trackable, organizationID string, ids []string) map[string]*models.Trackable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.Trackable, len(ids))
	for _, id := range ids {
		if t, ok := src[id]; ok && t.OrganizationID == organizationID {
			cp := *t
			out[id] = &cp
		}
	}
	return out
}

func (r *Registry) withStatus(src map[string]*models.Trackable, organizationID string, statuses []string) []*models.Trackable {
	r.mu.RLock()
	out := make([]*models.Trackable, 0)
	for _, t := range src {
		if t.OrganizationID != organizationID {
			continue
		}
		for _, st := range statuses {
			if t.Status == st {
				cp := *t
				out = append(out, &cp)
				break
			}
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) search(src map[string]*models.Trackable, organizationID, query string, limit int) []*models.Trackable {
	q := strings.ToLower(query)
	r.mu.RLock()
	out := make([]*models.Trackable, 0)
	for _, t := range src {
		if t.OrganizationID == organizationID && strings.Contains(strings.ToLower(t.Code), q) {
			cp := *t
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
