package models

import "time"

// Trip statuses, owned by the trip registry.
const (
	TripStatusScheduled = "scheduled"
	TripStatusInTransit = "in_transit"
	TripStatusDelayed   = "delayed"
	TripStatusIncident  = "incident"
	TripStatusCompleted = "completed"
	TripStatusCancelled = "cancelled"
)

// Shipment statuses, owned by the shipment registry.
const (
	ShipmentStatusPending   = "pending"
	ShipmentStatusReceived  = "received"
	ShipmentStatusInTransit = "in_transit"
	ShipmentStatusArrived   = "arrived"
	ShipmentStatusDelivered = "delivered"
	ShipmentStatusReturned  = "returned"
	ShipmentStatusCancelled = "cancelled"
)

var (
	StalledTripStatuses     = []string{TripStatusDelayed, TripStatusIncident}
	StalledShipmentStatuses = []string{ShipmentStatusPending, ShipmentStatusReceived}
)

// Trackable is a read-only view of a trip or shipment. Code is the trip code
// or the shipment tracking number.
type Trackable struct {
	Type             ReferenceType `json:"type"`
	ID               string        `json:"id"`
	OrganizationID   string        `json:"organizationId"`
	Code             string        `json:"code"`
	Status           string        `json:"status"`
	OriginLabel      string        `json:"originLabel,omitempty"`
	DestinationLabel string        `json:"destinationLabel,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (t *Trackable) ReferenceData() *ReferenceData {
	return &ReferenceData{
		Code:        t.Code,
		Status:      t.Status,
		Origin:      t.OriginLabel,
		Destination: t.DestinationLabel,
	}
}

type Stop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// Label renders a stop as free location text.
func (s *Stop) Label() string {
	switch {
	case s.Name != "" && s.City != "":
		return s.Name + ", " + s.City
	case s.Name != "":
		return s.Name
	default:
		return s.City
	}
}

// Stats mixes log counts with live registry counts. The two are read
// independently, so they can be skewed by concurrent writes; ComputedAt is
// when the read started.
type Stats struct {
	TotalEvents    int64     `json:"totalEvents"`
	TripEvents     int64     `json:"tripEvents"`
	ShipmentEvents int64     `json:"shipmentEvents"`
	TodayEvents    int64     `json:"todayEvents"`
	StoppedItems   int64     `json:"stoppedItems"`
	ComputedAt     time.Time `json:"computedAt"`
}

type StoppedItem struct {
	Type         ReferenceType `json:"type"`
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	Status       string        `json:"status"`
	StoppedSince time.Time     `json:"stoppedSince"`
}

type SearchResult struct {
	Type   ReferenceType `json:"type"`
	ID     string        `json:"id"`
	Code   string        `json:"code"`
	Status string        `json:"status"`
}
