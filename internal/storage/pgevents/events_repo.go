package pgevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/TrackLog/internal/metrics"
	"github.com/BearBump/TrackLog/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const eventColumns = `
  id, organization_id, reference_type, reference_id, event_type,
  event_time, sequence, stop_id, latitude, longitude,
  actor_type, actor_id, description, location_text, payload,
  external_event_id, source, created_at`

// AppendEvent runs the duplicate check, allocates the next sequence for the
// event's reference and inserts the row, all in one transaction. The
// sequence is computed by the server inside the INSERT and guarded by a
// unique constraint; a writer that loses the race retries with a fresh
// transaction.
func (s *Storage) AppendEvent(ctx context.Context, ev *models.TrackingEvent) (*models.TrackingEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= s.sequenceRetries; attempt++ {
		out, err := s.appendOnce(ctx, ev)
		if err == nil {
			return out, nil
		}
		if !isConstraintViolation(err, constraintSequence) {
			return nil, err
		}
		metrics.SequenceConflicts.Inc()
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "allocate sequence after %d attempts", s.sequenceRetries)
}

func (s *Storage) appendOnce(ctx context.Context, ev *models.TrackingEvent) (*models.TrackingEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if ev.ExternalEventID != nil {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tracking_events WHERE external_event_id = $1)`,
			*ev.ExternalEventID,
		).Scan(&exists)
		if err != nil {
			return nil, errors.Wrap(err, "check external event id")
		}
		if exists {
			return nil, &models.DuplicateEventError{ExternalEventID: *ev.ExternalEventID}
		}
	}

	var payload *string
	if len(ev.Payload) > 0 {
		p := string(ev.Payload)
		payload = &p
	}
	var actorType *string
	if ev.ActorType != nil {
		a := string(*ev.ActorType)
		actorType = &a
	}

	out := *ev
	err = tx.QueryRow(ctx, `
INSERT INTO tracking_events (
  id, organization_id, reference_type, reference_id, event_type,
  event_time, sequence, stop_id, latitude, longitude,
  actor_type, actor_id, description, location_text, payload,
  external_event_id, source, created_at
)
SELECT
  $1::text, $2::text, $3::text, $4::text, $5::text,
  $6::timestamptz, COALESCE(MAX(sequence), 0) + 1, $7::text, $8::double precision, $9::double precision,
  $10::text, $11::text, $12::text, $13::text, $14::jsonb,
  $15::text, $16::text, now()
FROM tracking_events
WHERE reference_type = $3::text AND reference_id = $4::text
RETURNING sequence, created_at
`,
		ev.ID, ev.OrganizationID, string(ev.ReferenceType), ev.ReferenceID, ev.EventType,
		ev.EventTime.UTC(), ev.StopID, ev.Latitude, ev.Longitude,
		actorType, ev.ActorID, ev.Description, ev.LocationText, payload,
		ev.ExternalEventID, string(ev.Source),
	).Scan(&out.Sequence, &out.CreatedAt)
	if err != nil {
		if ev.ExternalEventID != nil && isConstraintViolation(err, constraintExternalEventID) {
			return nil, &models.DuplicateEventError{ExternalEventID: *ev.ExternalEventID}
		}
		return nil, errors.Wrap(err, "insert event")
	}

	if err := tx.Commit(ctx); err != nil {
		if ev.ExternalEventID != nil && isConstraintViolation(err, constraintExternalEventID) {
			return nil, &models.DuplicateEventError{ExternalEventID: *ev.ExternalEventID}
		}
		return nil, errors.Wrap(err, "commit tx")
	}
	out.EventTime = ev.EventTime.UTC()
	return &out, nil
}

// ListEvents returns at most q.Limit events, most recent first. Ties on
// event_time are broken by the later insertion.
func (s *Storage) ListEvents(ctx context.Context, q models.EventQuery) ([]*models.TrackingEvent, error) {
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}

	where := []string{"organization_id = $1"}
	args := []any{q.OrganizationID}
	if q.ReferenceType != "" && q.ReferenceType != models.ReferenceTypeAll {
		args = append(args, string(q.ReferenceType))
		where = append(where, fmt.Sprintf("reference_type = $%d", len(args)))
	}
	if q.DateFrom != nil {
		args = append(args, q.DateFrom.UTC())
		where = append(where, fmt.Sprintf("event_time >= $%d", len(args)))
	}
	if q.DateTo != nil {
		args = append(args, q.DateTo.UTC())
		where = append(where, fmt.Sprintf("event_time <= $%d", len(args)))
	}
	args = append(args, limit)

	rows, err := s.db.Query(ctx, `
SELECT`+eventColumns+`
FROM tracking_events
WHERE `+strings.Join(where, " AND ")+`
ORDER BY event_time DESC, sequence DESC
LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	return collectEvents(rows)
}

// History returns every event of one trackable, oldest first.
func (s *Storage) History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+eventColumns+`
FROM tracking_events
WHERE reference_type = $1 AND reference_id = $2
ORDER BY event_time ASC, sequence ASC
`, string(referenceType), referenceID)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	return collectEvents(rows)
}

func (s *Storage) CountEvents(ctx context.Context, organizationID string, since time.Time) (models.EventCounts, error) {
	var c models.EventCounts
	err := s.db.QueryRow(ctx, `
SELECT
  count(*),
  count(*) FILTER (WHERE reference_type = 'trip'),
  count(*) FILTER (WHERE reference_type = 'shipment'),
  count(*) FILTER (WHERE event_time >= $2)
FROM tracking_events
WHERE organization_id = $1
`, organizationID, since.UTC()).Scan(&c.Total, &c.Trip, &c.Shipment, &c.Since)
	if err != nil {
		return models.EventCounts{}, errors.Wrap(err, "count events")
	}
	return c, nil
}

func (s *Storage) GetByExternalEventID(ctx context.Context, externalEventID string) (*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+eventColumns+`
FROM tracking_events
WHERE external_event_id = $1
`, externalEventID)
	if err != nil {
		return nil, errors.Wrap(err, "select by external event id")
	}
	evs, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}
	return evs[0], nil
}

func collectEvents(rows pgx.Rows) ([]*models.TrackingEvent, error) {
	defer rows.Close()

	out := []*models.TrackingEvent{}
	for rows.Next() {
		var e models.TrackingEvent
		var referenceType, source string
		var actorType *string
		var payload []byte
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &referenceType, &e.ReferenceID, &e.EventType,
			&e.EventTime, &e.Sequence, &e.StopID, &e.Latitude, &e.Longitude,
			&actorType, &e.ActorID, &e.Description, &e.LocationText, &payload,
			&e.ExternalEventID, &source, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.ReferenceType = models.ReferenceType(referenceType)
		e.Source = models.Source(source)
		if actorType != nil {
			a := models.ActorType(*actorType)
			e.ActorType = &a
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
