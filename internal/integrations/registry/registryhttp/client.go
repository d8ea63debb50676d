// Package registryhttp talks to the registry service over its REST API.
package registryhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/TrackLog/internal/models"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type trackableDTO struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	Code             string    `json:"code"`
	Status           string    `json:"status"`
	OriginLabel      string    `json:"origin_label"`
	DestinationLabel string    `json:"destination_label"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type trackablesResp struct {
	Items []trackableDTO `json:"items"`
}

type stopsResp struct {
	Items []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"items"`
}

type countResp struct {
	Count int64 `json:"count"`
}

type organizationsResp struct {
	Items []string `json:"items"`
}

func (c *Client) TripsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	return c.byIDs(ctx, models.ReferenceTypeTrip, organizationID, ids)
}

func (c *Client) ShipmentsByIDs(ctx context.Context, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	return c.byIDs(ctx, models.ReferenceTypeShipment, organizationID, ids)
}

func (c *Client) byIDs(ctx context.Context, t models.ReferenceType, organizationID string, ids []string) (map[string]*models.Trackable, error) {
	out := make(map[string]*models.Trackable, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))

	var rb trackablesResp
	if err := c.get(ctx, orgPath(organizationID, collection(t)), q, &rb); err != nil {
		return nil, err
	}
	for _, it := range toTrackables(t, rb.Items) {
		out[it.ID] = it
	}
	return out, nil
}

func (c *Client) StopsByIDs(ctx context.Context, ids []string) (map[string]*models.Stop, error) {
	out := make(map[string]*models.Stop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))

	var rb stopsResp
	if err := c.get(ctx, "/v1/stops", q, &rb); err != nil {
		return nil, err
	}
	for _, s := range rb.Items {
		out[s.ID] = &models.Stop{ID: s.ID, Name: s.Name, City: s.City}
	}
	return out, nil
}

func (c *Client) StalledTrips(ctx context.Context, organizationID string) ([]*models.Trackable, error) {
	return c.stalled(ctx, models.ReferenceTypeTrip, organizationID, models.StalledTripStatuses)
}

func (c *Client) StalledShipments(ctx context.Context, organizationID string) ([]*models.Trackable, error) {
	return c.stalled(ctx, models.ReferenceTypeShipment, organizationID, models.StalledShipmentStatuses)
}

func (c *Client) stalled(ctx context.Context, t models.ReferenceType, organizationID string, statuses []string) ([]*models.Trackable, error) {
	q := url.Values{}
	q.Set("status", strings.Join(statuses, ","))
	q.Set("order", "-updated_at")

	var rb trackablesResp
	if err := c.get(ctx, orgPath(organizationID, collection(t)), q, &rb); err != nil {
		return nil, err
	}
	return toTrackables(t, rb.Items), nil
}

func (c *Client) CountStalled(ctx context.Context, organizationID string) (int64, error) {
	var total int64
	for _, t := range []models.ReferenceType{models.ReferenceTypeTrip, models.ReferenceTypeShipment} {
		statuses := models.StalledTripStatuses
		if t == models.ReferenceTypeShipment {
			statuses = models.StalledShipmentStatuses
		}
		q := url.Values{}
		q.Set("status", strings.Join(statuses, ","))

		var rb countResp
		if err := c.get(ctx, orgPath(organizationID, collection(t), "count"), q, &rb); err != nil {
			return 0, err
		}
		total += rb.Count
	}
	return total, nil
}

func (c *Client) SearchTrips(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	return c.search(ctx, models.ReferenceTypeTrip, organizationID, query, limit)
}

func (c *Client) SearchShipments(ctx context.Context, organizationID, query string, limit int) ([]*models.Trackable, error) {
	return c.search(ctx, models.ReferenceTypeShipment, organizationID, query, limit)
}

func (c *Client) search(ctx context.Context, t models.ReferenceType, organizationID, query string, limit int) ([]*models.Trackable, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var rb trackablesResp
	if err := c.get(ctx, orgPath(organizationID, collection(t), "search"), q, &rb); err != nil {
		return nil, err
	}
	items := toTrackables(t, rb.Items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (c *Client) Organizations(ctx context.Context) ([]string, error) {
	var rb organizationsResp
	if err := c.get(ctx, "/v1/organizations", nil, &rb); err != nil {
		return nil, err
	}
	if rb.Items == nil {
		return []string{}, nil
	}
	return rb.Items, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, into any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("registry rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("registry http %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func collection(t models.ReferenceType) string {
	if t == models.ReferenceTypeShipment {
		return "shipments"
	}
	return "trips"
}

func orgPath(organizationID string, parts ...string) string {
	p := "/v1/organizations/" + url.PathEscape(organizationID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func toTrackables(t models.ReferenceType, in []trackableDTO) []*models.Trackable {
	out := make([]*models.Trackable, 0, len(in))
	for _, d := range in {
		out = append(out, &models.Trackable{
			Type:             t,
			ID:               d.ID,
			OrganizationID:   d.OrganizationID,
			Code:             d.Code,
			Status:           d.Status,
			OriginLabel:      d.OriginLabel,
			DestinationLabel: d.DestinationLabel,
			UpdatedAt:        d.UpdatedAt,
		})
	}
	return out
}
