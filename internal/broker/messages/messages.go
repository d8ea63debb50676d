package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
)

// EventSubmit is an asynchronous submission. It carries the same fields as
// the synchronous API.
type EventSubmit struct {
	models.SubmitInput
}

// EventRecorded is published after an event is committed. Key: reference id.
type EventRecorded struct {
	EventID         string               `json:"event_id"`
	OrganizationID  string               `json:"organization_id"`
	ReferenceType   models.ReferenceType `json:"reference_type"`
	ReferenceID     string               `json:"reference_id"`
	EventType       string               `json:"event_type"`
	EventTime       time.Time            `json:"event_time"`
	Sequence        int64                `json:"sequence"`
	Source          models.Source        `json:"source"`
	ExternalEventID *string              `json:"external_event_id,omitempty"`
	Payload         json.RawMessage      `json:"payload,omitempty"`
	RecordedAt      time.Time            `json:"recorded_at"`
}

func NewEventRecorded(e *models.TrackingEvent) EventRecorded {
	return EventRecorded{
		EventID:         e.ID,
		OrganizationID:  e.OrganizationID,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		EventType:       e.EventType,
		EventTime:       e.EventTime,
		Sequence:        e.Sequence,
		Source:          e.Source,
		ExternalEventID: e.ExternalEventID,
		Payload:         e.Payload,
		RecordedAt:      e.CreatedAt,
	}
}

// ItemStalled is published by the sweeper once per item and status per
// alert window. Key: reference id.
type ItemStalled struct {
	OrganizationID string               `json:"organization_id"`
	ReferenceType  models.ReferenceType `json:"reference_type"`
	ReferenceID    string               `json:"reference_id"`
	Code           string               `json:"code"`
	Status         string               `json:"status"`
	StoppedSince   time.Time            `json:"stopped_since"`
	DetectedAt     time.Time            `json:"detected_at"`
}
