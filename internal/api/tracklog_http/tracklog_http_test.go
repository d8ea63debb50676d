package tracklog_http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/TrackLog/internal/cache/mocks"
	"github.com/BearBump/TrackLog/internal/integrations/registry/fake"
	"github.com/BearBump/TrackLog/internal/models"
	"github.com/BearBump/TrackLog/internal/services/tracklog"
	"github.com/BearBump/TrackLog/internal/storage/memevents"
)

type harness struct {
	srv *httptest.Server
	reg *fake.Registry
	api *API
}

func newHarness(t *testing.T) harness {
	t.Helper()
	reg := fake.New()
	reg.PutTrip(models.Trackable{ID: "T1", OrganizationID: "o1", Code: "TR-001", Status: models.TripStatusDelayed, UpdatedAt: time.Now().Add(-time.Hour)})
	reg.PutShipment(models.Trackable{ID: "S1", OrganizationID: "o1", Code: "PKG-9", Status: models.ShipmentStatusPending, UpdatedAt: time.Now()})

	svc := tracklog.New(memevents.New(), reg, nil)
	api := New(svc, nil)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return harness{srv: srv, reg: reg, api: api}
}

func (h harness) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.srv.URL+"/v1/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitAndList(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"departed","eventTime":"2025-05-01T08:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ev := decode[models.TrackingEvent](t, resp)
	require.Equal(t, int64(1), ev.Sequence)
	require.Equal(t, models.SourceManual, ev.Source)

	resp = h.post(t, `{"organizationId":"o1","referenceType":"shipment","referenceId":"S1","eventType":"received","eventTime":"2025-05-01T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.get(t, "/v1/events?organizationId=o1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[listResponse[*models.TrackingEvent]](t, resp)
	require.Len(t, list.Items, 2)
	require.Equal(t, "S1", list.Items[0].ReferenceID)
	require.NotNil(t, list.Items[1].ReferenceData)
	require.Equal(t, "TR-001", list.Items[1].ReferenceData.Code)

	resp = h.get(t, "/v1/events?organizationId=o1&referenceType=trip")
	require.Len(t, decode[listResponse[*models.TrackingEvent]](t, resp).Items, 1)

	resp = h.get(t, "/v1/events?organizationId=o1&search=pkg")
	require.Len(t, decode[listResponse[*models.TrackingEvent]](t, resp).Items, 1)

	resp = h.get(t, "/v1/events?organizationId=o1&dateFrom=2025-05-01&dateTo=2025-05-01")
	require.Len(t, decode[listResponse[*models.TrackingEvent]](t, resp).Items, 2, "a bare dateTo covers the whole day")

	resp = h.get(t, "/v1/events?organizationId=o1&dateTo=2025-05-01T08:30:00Z")
	require.Len(t, decode[listResponse[*models.TrackingEvent]](t, resp).Items, 1)
}

func TestSubmit_Errors(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, `{"organizationId":"o1","referenceType":"truck","referenceId":"T1","eventType":"x"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	require.Contains(t, body.Fields, "referenceType")

	resp = h.post(t, `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"x","surprise":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	dup := `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"x","externalEventId":"e-1"}`
	require.Equal(t, http.StatusCreated, h.post(t, dup).StatusCode)
	require.Equal(t, http.StatusConflict, h.post(t, dup).StatusCode)
}

func TestList_Errors(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/events").StatusCode)
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/events?organizationId=o1&dateFrom=yesterday").StatusCode)
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/events?organizationId=o1&dateFrom=2025-05-02&dateTo=2025-05-01").StatusCode)

	h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"x"}`)
	h.reg.Err = errors.New("registry down")
	resp := h.get(t, "/v1/events?organizationId=o1")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHistoryStatsStoppedSearch(t *testing.T) {
	h := newHarness(t)
	h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"b","eventTime":"2025-05-01T10:00:00Z"}`)
	h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"a","eventTime":"2025-05-01T09:00:00Z"}`)

	resp := h.get(t, "/v1/history/trip/T1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[listResponse[*models.TrackingEvent]](t, resp)
	require.Len(t, hist.Items, 2)
	require.Equal(t, "a", hist.Items[0].EventType)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/history/truck/T1").StatusCode)

	resp = h.get(t, "/v1/stats?organizationId=o1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[models.Stats](t, resp)
	require.Equal(t, int64(2), st.TotalEvents)
	require.Equal(t, int64(2), st.StoppedItems)

	resp = h.get(t, "/v1/stopped-items?organizationId=o1")
	stopped := decode[listResponse[models.StoppedItem]](t, resp)
	require.Len(t, stopped.Items, 2)
	require.Equal(t, "S1", stopped.Items[0].ID)

	resp = h.get(t, "/v1/search?organizationId=o1&q=tr-")
	found := decode[listResponse[models.SearchResult]](t, resp)
	require.Len(t, found.Items, 1)
	require.Equal(t, "TR-001", found.Items[0].Code)

	resp = h.get(t, "/v1/search?organizationId=o1&q=%20%20")
	require.Empty(t, decode[listResponse[models.SearchResult]](t, resp).Items)
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)
	h.post(t, `{"organizationId":"o1","referenceType":"trip","referenceId":"T1","eventType":"departed","description":"say \"hi\"","eventTime":"2025-05-01T08:00:00Z"}`)

	resp := h.get(t, "/v1/events/export.csv?organizationId=o1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], `"say ""hi"""`)
	require.Contains(t, lines[1], `"TR-001"`)
}

func TestSearchRateLimit(t *testing.T) {
	h := newHarness(t)
	lim := &mocks.MockLimiter{}
	lim.On("Allow", mock.Anything, "search:o1", int64(2), time.Minute).Return(true, int64(1), nil).Once()
	lim.On("Allow", mock.Anything, "search:o1", int64(2), time.Minute).Return(false, int64(3), nil).Once()
	lim.On("Allow", mock.Anything, "search:o1", int64(2), time.Minute).Return(false, int64(0), errors.New("redis down")).Once()
	h.api.WithSearchLimit(lim, 2)

	require.Equal(t, http.StatusOK, h.get(t, "/v1/search?organizationId=o1&q=tr").StatusCode)
	resp := h.get(t, "/v1/search?organizationId=o1&q=tr")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "60", resp.Header.Get("Retry-After"))
	require.Equal(t, http.StatusOK, h.get(t, "/v1/search?organizationId=o1&q=tr").StatusCode, "limiter failure lets the request through")
	lim.AssertExpectations(t)
}

func TestOpsEndpoints(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.get(t, "/healthz").StatusCode)
	require.Equal(t, http.StatusOK, h.get(t, "/metrics").StatusCode)

	resp := h.get(t, "/swagger.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	require.Equal(t, "2.0", doc["swagger"])
}

type stubService struct {
	Service
	err error
}

func (s stubService) Stats(context.Context, string) (models.Stats, error) {
	return models.Stats{}, s.err
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&models.ValidationError{Fields: []string{"x"}}, http.StatusBadRequest},
		{&models.DuplicateEventError{ExternalEventID: "e"}, http.StatusConflict},
		{&models.ReferenceLookupError{ReferenceType: models.ReferenceTypeTrip, Err: errors.New("x")}, http.StatusBadGateway},
		{&models.StorageError{Op: "list", Err: errors.New("conn refused")}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(New(stubService{err: tc.err}, nil).Handler())
		resp, err := http.Get(srv.URL + "/v1/stats?organizationId=o1")
		require.NoError(t, err)
		require.Equal(t, tc.code, resp.StatusCode, tc.err.Error())
		if tc.code == http.StatusInternalServerError {
			body := decode[errorResponse](t, resp)
			require.Equal(t, "internal error", body.Error)
		}
		_ = resp.Body.Close()
		srv.Close()
	}
}
