// Package tracklog_http exposes the tracking log over HTTP/JSON.
package tracklog_http

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/models"
)

//go:embed swagger.json
var swaggerDoc []byte

type Service interface {
	Submit(ctx context.Context, in models.SubmitInput) (*models.TrackingEvent, error)
	List(ctx context.Context, organizationID string, f models.ListFilter) ([]*models.TrackingEvent, error)
	History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error)
	Stats(ctx context.Context, organizationID string) (models.Stats, error)
	StoppedItems(ctx context.Context, organizationID string) ([]models.StoppedItem, error)
	Search(ctx context.Context, organizationID, query string) ([]models.SearchResult, error)
	ExportCSV(ctx context.Context, organizationID string, f models.ListFilter) (string, error)
}

type API struct {
	svc Service
	log *zap.Logger

	limiter        cache.Limiter
	searchPerMin   int64
	swaggerPath    string
	requestTimeout time.Duration
}

func New(svc Service, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{svc: svc, log: log, requestTimeout: 30 * time.Second}
}

// WithSearchLimit throttles /v1/search per organization. perMinute <= 0 or
// a nil limiter disables it.
func (a *API) WithSearchLimit(l cache.Limiter, perMinute int64) *API {
	a.limiter = l
	a.searchPerMin = perMinute
	return a
}

// WithSwaggerFile serves the document at path instead of the built-in one.
func (a *API) WithSwaggerFile(path string) *API {
	a.swaggerPath = path
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger.json", a.serveSwagger)
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(a.requestTimeout))

		r.Post("/events", a.submitEvent)
		r.Get("/events", a.listEvents)
		r.Get("/events/export.csv", a.exportCSV)
		r.Get("/history/{referenceType}/{referenceId}", a.history)
		r.Get("/stats", a.stats)
		r.Get("/stopped-items", a.stoppedItems)
		r.Get("/search", a.search)
	})
	return r
}

func (a *API) serveSwagger(w http.ResponseWriter, r *http.Request) {
	if a.swaggerPath != "" {
		http.ServeFile(w, r, a.swaggerPath)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(swaggerDoc)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (a *API) submitEvent(w http.ResponseWriter, r *http.Request) {
	var in models.SubmitInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		a.writeError(w, r, &models.ValidationError{Reason: "invalid JSON body: " + err.Error()})
		return
	}
	ev, err := a.svc.Submit(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	evs, err := a.svc.List(r.Context(), r.URL.Query().Get("organizationId"), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*models.TrackingEvent]{Items: evs})
}

func (a *API) exportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.ExportCSV(r.Context(), r.URL.Query().Get("organizationId"), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tracking-events.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	refType := models.ReferenceType(chi.URLParam(r, "referenceType"))
	evs, err := a.svc.History(r.Context(), refType, chi.URLParam(r, "referenceId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*models.TrackingEvent]{Items: evs})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context(), r.URL.Query().Get("organizationId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) stoppedItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.StoppedItems(r.Context(), r.URL.Query().Get("organizationId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.StoppedItem]{Items: items})
}

var errRateLimited = errors.New("too many search requests, retry later")

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	org := strings.TrimSpace(r.URL.Query().Get("organizationId"))
	if a.limiter != nil && a.searchPerMin > 0 && org != "" {
		allowed, _, err := a.limiter.Allow(r.Context(), "search:"+org, a.searchPerMin, time.Minute)
		if err != nil {
			// limiter outage must not take search down
			a.log.Warn("search rate limiter failed", zap.Error(err))
		} else if !allowed {
			w.Header().Set("Retry-After", "60")
			a.writeError(w, r, errRateLimited)
			return
		}
	}

	res, err := a.svc.Search(r.Context(), org, r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.SearchResult]{Items: res})
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	return models.NewListFilter(q.Get("referenceType"), q.Get("dateFrom"), q.Get("dateTo"), q.Get("search"))
}

type errorResponse struct {
	Error     string   `json:"error"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

func statusFor(err error) int {
	var (
		ve *models.ValidationError
		de *models.DuplicateEventError
		le *models.ReferenceLookupError
		se *models.StorageError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &le):
		return http.StatusBadGateway
	case errors.As(err, &se):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorResponse{Error: err.Error(), RequestID: middleware.GetReqID(r.Context())}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if code >= 500 {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
		// internals stay in the log
		if code == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
