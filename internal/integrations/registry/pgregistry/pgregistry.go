// Package pgregistry reads trips, shipments and stops from the tables the
// registries share with this service's database.
package pgregistry

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/BearBump/TrackLog/internal/models"
)

type Registry struct {
	db *pgxpool.Pool
}

// New reuses a pool opened elsewhere; the caller owns its lifetime.
func New(db *pgxpool.Pool) *Registry {
	return &Registry{db: db}
}

// EnsureSchema creates the registry tables when they do not exist. The
// registries own these tables in production; this is for local runs and
// tests.
func (r *Registry) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS stops (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT ''
)`,
		`
CREATE TABLE IF NOT EXISTS trips (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  code TEXT NOT NULL,
  status TEXT NOT NULL,
  origin_stop_id TEXT NULL REFERENCES stops(id),
  destination_stop_id TEXT NULL REFERENCES stops(id),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  status TEXT NOT NULL,
  origin_stop_id TEXT NULL REFERENCES stops(id),
  destination_stop_id TEXT NULL REFERENCES stops(id),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_org_status ON trips(organization_id, status, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_org_status ON shipments(organization_id, status, updated_at DESC)`,
	}
	for _, q := range stmts {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init registry schema")
		}
	}
	return nil
}

// table describes one trackable table; the two differ only in names.
type table struct {
	refType models.ReferenceType
	name    string
	codeCol string
}

var (
	tripsTable     = table{refType: models.ReferenceTypeTrip, name: "trips", codeCol: "code"}
	shipmentsTable = table{refType: models.ReferenceTypeShipment, name: "shipments", codeCol: "tracking_number"}
)

func (t table) selectSQL() string {
	return `
SELECT
  x.id, x.organization_id, x.` + t.codeCol + `, x.status,
  COALESCE(concat_ws(', ', NULLIF(o.name, ''), NULLIF(o.city, '')), ''),
  COALESCE(concat_ws(', ', NULLIF(d.name, ''), NULLIF(d.city, '')), ''),
  x.updated_at
FROM ` + t.name + ` x
LEFT JOIN stops o ON o.id = x.origin_stop_id
LEFT JOIN stops d ON d.id = x.destination_stop_id
`
}

func (r *Registry) TripsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	return r.byIDs(ctx, tripsTable, organizationID, ids)
}

func (r *Registry) ShipmentsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	return r.byIDs(ctx, shipmentsTable, organizationID, ids)
}

func (r *Registry) byIDs(ctx context.Context, t table, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	out := make(map[string]*models.Trackable, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, t.selectSQL()+`WHERE x.organization_id = $1 AND x.id = ANY($2)`, organizationID, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", t.name)
	}
	items, err := collect(rows, t.refType)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (r *Registry) StalledTrips(ctx context.Context, organizationID string) ([]*models.Trackable, error) {
	return r.withStatus(ctx, tripsTable, organizationID, models.StalledTripStatuses)
}

func (r *Registry) StalledShipments(ctx context.Context, organizationID string) ([]*models.Trackable, error) {
	return r.withStatus(ctx, shipmentsTable, organizationID, models.StalledShipmentStatuses)
}

func (r *Registry) withStatus(ctx context.Context, t table, organizationID string, statuses []string) ([]*models.Trackable, error) {
	rows, err := r.db.Query(ctx, t.selectSQL()+`
WHERE x.organization_id = $1 AND x.status = ANY($2)
ORDER BY x.updated_at DESC, x.id ASC`, organizationID, statuses)
	if err != nil {
		return nil, errors.Wrapf(err, "select stalled %s", t.name)
	}
	return collect(rows, t.refType)
}

func (r *Registry) CountStalled(ctx context.Context, organizationID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
SELECT
  (SELECT count(*) FROM trips WHERE organization_id = $1 AND status = ANY($2)) +
  (SELECT count(*) FROM shipments WHERE organization_id = $1 AND status = ANY($3))
`, organizationID, models.StalledTripStatuses, models.StalledShipmentStatuses).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count stalled")
	}
	return n, nil
}

func (r *Registry) SearchTrips(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	return r.search(ctx, tripsTable, organizationID, query, limit)
}

func (r *Registry) SearchShipments(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	return r.search(ctx, shipmentsTable, organizationID, query, limit)
}

func (r *Registry) search(ctx context.Context, t table, organizationID, query string, limit int) ([]*models.Trackable, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, t.selectSQL()+`
WHERE x.organization_id = $1 AND x.`+t.codeCol+` ILIKE '%' || $2 || '%'
ORDER BY x.`+t.codeCol+` ASC
LIMIT $3`, organizationID, escapeLike(query), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", t.name)
	}
	return collect(rows, t.refType)
}

func (r *Registry) StopsByIDs(ctx context.Context, ids []string) (map[string]*models.Stop, error) {
	out := make(map[string]*models.Stop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, name, city FROM stops WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select stops")
	}
	defer rows.Close()
	for rows.Next() {
		var s models.Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.City); err != nil {
			return nil, errors.Wrap(err, "scan stop")
		}
		out[s.ID] = &s
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (r *Registry) Organizations(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
SELECT organization_id FROM trips
UNION
SELECT organization_id FROM shipments
ORDER BY 1`)
	if err != nil {
		return nil, errors.Wrap(err, "select organizations")
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, errors.Wrap(err, "scan organization")
		}
		out = append(out, org)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func collect(rows pgx.Rows, refType models.ReferenceType) ([]*models.Trackable, error) {
	defer rows.Close()
	out := []*models.Trackable{}
	for rows.Next() {
		t := models.Trackable{Type: refType}
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Code, &t.Status, &t.OriginLabel, &t.DestinationLabel, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan trackable")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func escapeLike(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}
