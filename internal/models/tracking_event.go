package models

import (
	"encoding/json"
	"time"
)

type ReferenceType string

const (
	ReferenceTypeTrip     ReferenceType = "trip"
	ReferenceTypeShipment ReferenceType = "shipment"
	// ReferenceTypeAll is accepted only as a list filter.
	ReferenceTypeAll ReferenceType = "all"
)

func (t ReferenceType) Valid() bool {
	return t == ReferenceTypeTrip || t == ReferenceTypeShipment
}

// Label is the human label used in exports.
func (t ReferenceType) Label() string {
	switch t {
	case ReferenceTypeTrip:
		return "Trip"
	case ReferenceTypeShipment:
		return "Shipment"
	default:
		return string(t)
	}
}

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

// Source is an open set; these are the values producers use today.
type Source string

const (
	SourceManual      Source = "manual"
	SourceSystem      Source = "system"
	SourceIntegration Source = "integration"
	SourceDevice      Source = "device"
	SourceWebhook     Source = "webhook"
)

// TrackingEvent is immutable once persisted. ReferenceData is never stored,
// it is attached at read time from the owning registry.
type TrackingEvent struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organizationId"`
	ReferenceType   ReferenceType   `json:"referenceType"`
	ReferenceID     string          `json:"referenceId"`
	EventType       string          `json:"eventType"`
	EventTime       time.Time       `json:"eventTime"`
	Sequence        int64           `json:"sequence"`
	StopID          *string         `json:"stopId,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	ActorType       *ActorType      `json:"actorType,omitempty"`
	ActorID         *string         `json:"actorId,omitempty"`
	Description     *string         `json:"description,omitempty"`
	LocationText    *string         `json:"locationText,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ExternalEventID *string         `json:"externalEventId,omitempty"`
	Source          Source          `json:"source"`
	CreatedAt       time.Time       `json:"createdAt"`

	ReferenceData *ReferenceData `json:"referenceData,omitempty"`
}

// ReferenceData is the trackable as the registry reports it at read time.
// With the trackable cache on, Status can be stale by up to the cache TTL.
type ReferenceData struct {
	Code        string `json:"code"`
	Status      string `json:"status"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// SubmitInput is what a producer sends. Zero EventTime, empty Source and a
// nil ActorType are filled with defaults at ingestion.
type SubmitInput struct {
	OrganizationID  string          `json:"organizationId" validate:"required"`
	ReferenceType   ReferenceType   `json:"referenceType" validate:"required,oneof=trip shipment"`
	ReferenceID     string          `json:"referenceId" validate:"required"`
	EventType       string          `json:"eventType" validate:"required"`
	EventTime       time.Time       `json:"eventTime"`
	Description     *string         `json:"description,omitempty"`
	LocationText    *string         `json:"locationText,omitempty"`
	StopID          *string         `json:"stopId,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude       *float64        `json:"longitude,omitempty" validate:"omitempty,longitude"`
	ActorType       *ActorType      `json:"actorType,omitempty" validate:"omitempty,oneof=system user"`
	ActorID         *string         `json:"actorId,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ExternalEventID *string         `json:"externalEventId,omitempty"`
	Source          Source          `json:"source,omitempty" validate:"omitempty,lowercase,max=64"`
}

// ListFilter bounds EventTime inclusively on both ends.
type ListFilter struct {
	ReferenceType ReferenceType
	DateFrom      *time.Time
	DateTo        *time.Time
	Search        string
}

// EventQuery is the storage-side part of a ListFilter.
type EventQuery struct {
	OrganizationID string
	ReferenceType  ReferenceType
	DateFrom       *time.Time
	DateTo         *time.Time
	Limit          int
}

type EventCounts struct {
	Total    int64
	Trip     int64
	Shipment int64
	Since    int64
}
