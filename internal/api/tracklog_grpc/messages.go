package tracklog_grpc

import "github.com/BearBump/TrackLog/internal/models"

type SubmitEventRequest struct {
	Event models.SubmitInput `json:"event"`
}

type SubmitEventResponse struct {
	Event *models.TrackingEvent `json:"event"`
}

// ListEventsRequest carries the feed filter. Dates are RFC 3339 or
// YYYY-MM-DD, as in the HTTP API.
type ListEventsRequest struct {
	OrganizationID string `json:"organizationId"`
	ReferenceType  string `json:"referenceType,omitempty"`
	DateFrom       string `json:"dateFrom,omitempty"`
	DateTo         string `json:"dateTo,omitempty"`
	Search         string `json:"search,omitempty"`
}

type ListEventsResponse struct {
	Events []*models.TrackingEvent `json:"events"`
}

type ExportEventsResponse struct {
	CSV string `json:"csv"`
}

type GetHistoryRequest struct {
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceId"`
}

type OrganizationRequest struct {
	OrganizationID string `json:"organizationId"`
}

type GetStatsResponse struct {
	Stats models.Stats `json:"stats"`
}

type ListStoppedItemsResponse struct {
	Items []models.StoppedItem `json:"items"`
}

type SearchReferencesRequest struct {
	OrganizationID string `json:"organizationId"`
	Query          string `json:"query"`
}

type SearchReferencesResponse struct {
	Results []models.SearchResult `json:"results"`
}
