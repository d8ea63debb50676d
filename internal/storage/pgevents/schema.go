package pgevents

import (
	"context"

	"github.com/pkg/errors"
)

const (
	constraintSequence        = "uq_tracking_events_sequence"
	constraintExternalEventID = "uq_tracking_events_external_event_id"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  reference_type TEXT NOT NULL CHECK (reference_type IN ('trip', 'shipment')),
  reference_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  sequence BIGINT NOT NULL CHECK (sequence > 0),
  stop_id TEXT NULL,
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  actor_type TEXT NULL,
  actor_id TEXT NULL,
  description TEXT NULL,
  location_text TEXT NULL,
  payload JSONB NULL,
  external_event_id TEXT NULL,
  source TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT ` + constraintSequence + ` UNIQUE (reference_type, reference_id, sequence)
)`,
		// Idempotency keys are global, not per organization.
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintExternalEventID + `
  ON tracking_events(external_event_id) WHERE external_event_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_feed
  ON tracking_events(organization_id, event_time DESC, sequence DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_reference
  ON tracking_events(reference_type, reference_id, event_time)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
