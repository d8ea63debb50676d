package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/TrackLog/internal/models"
)

func TestEventSubmit_DecodesFlatSubmitInput(t *testing.T) {
	var m EventSubmit
	err := json.Unmarshal([]byte(`{
  "organizationId": "o1",
  "referenceType": "shipment",
  "referenceId": "S1",
  "eventType": "scanned",
  "externalEventId": "dev-42",
  "source": "device",
  "payload": {"scanner": "A"}
}`), &m)
	require.NoError(t, err)
	require.Equal(t, models.ReferenceTypeShipment, m.ReferenceType)
	require.Equal(t, "dev-42", *m.ExternalEventID)
	require.Equal(t, models.SourceDevice, m.Source)
	require.JSONEq(t, `{"scanner": "A"}`, string(m.Payload))
}

func TestNewEventRecorded(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &models.TrackingEvent{
		ID: "e1", OrganizationID: "o1", ReferenceType: models.ReferenceTypeTrip, ReferenceID: "T1",
		EventType: "departed", EventTime: at, Sequence: 3, Source: models.SourceManual, CreatedAt: at.Add(time.Second),
	}
	m := NewEventRecorded(e)
	require.Equal(t, int64(3), m.Sequence)
	require.Equal(t, at.Add(time.Second), m.RecordedAt)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Contains(t, string(b), `"reference_type":"trip"`)
	require.NotContains(t, string(b), "external_event_id")
}
