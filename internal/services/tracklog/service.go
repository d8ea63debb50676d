package tracklog

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/internal/cache"
	"github.com/BearBump/TrackLog/internal/integrations/registry"
	"github.com/BearBump/TrackLog/internal/models"
	"github.com/BearBump/TrackLog/internal/payloadschema"
)

// Repository is the append-only event log. There is deliberately no update
// or delete.
type Repository interface {
	AppendEvent(ctx context.Context, ev *models.TrackingEvent) (*models.TrackingEvent, error)
	ListEvents(ctx context.Context, q models.EventQuery) ([]*models.TrackingEvent, error)
	History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error)
	CountEvents(ctx context.Context, organizationID string, since time.Time) (models.EventCounts, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// StopLookup resolves a stop id; nil, nil means unknown.
type StopLookup interface {
	Stop(ctx context.Context, id string) (*models.Stop, error)
}

const DefaultListWindow = 500

type Settings struct {
	// ListWindow is the most events a list or export reads.
	ListWindow int
	// Location defines "today" for stats and the export's Datetime column.
	Location *time.Location
	// RecordedTopic receives an EventRecorded per committed event. Empty
	// disables publication.
	RecordedTopic string
	// TrackableCacheTTL enables the trackable read-through cache when > 0.
	// Registry status on read results may then lag by up to this long.
	TrackableCacheTTL time.Duration
}

type Service struct {
	repo     Repository
	registry registry.Client
	log      *zap.Logger

	settings  Settings
	enricher  *Enricher
	stops     StopLookup
	schemas   *payloadschema.Registry
	publisher Publisher
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

func New(repo Repository, reg registry.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		registry: reg,
		log:      log,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newEventID,
	}
	return s.WithSettings(Settings{})
}

func (s *Service) WithSettings(st Settings) *Service {
	if st.ListWindow <= 0 {
		st.ListWindow = DefaultListWindow
	}
	if st.Location == nil {
		st.Location = time.UTC
	}
	s.settings = st
	var c cache.BytesCache
	if s.enricher != nil {
		c = s.enricher.cache
	}
	s.enricher = NewEnricher(s.registry, c, st.TrackableCacheTTL, s.log)
	return s
}

// WithCache puts a read-through cache in front of trackable lookups.
func (s *Service) WithCache(c cache.BytesCache) *Service {
	s.enricher = NewEnricher(s.registry, c, s.settings.TrackableCacheTTL, s.log)
	return s
}

func (s *Service) WithStops(l StopLookup) *Service {
	s.stops = l
	return s
}

func (s *Service) WithSchemas(r *payloadschema.Registry) *Service {
	s.schemas = r
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

func (s *Service) Enricher() *Enricher {
	return s.enricher
}

// asStorageError leaves typed errors alone and wraps anything else.
func asStorageError(op string, err error) error {
	var (
		ve *models.ValidationError
		de *models.DuplicateEventError
		le *models.ReferenceLookupError
		se *models.StorageError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &de), errors.As(err, &le), errors.As(err, &se):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &models.StorageError{Op: op, Err: err}
}

func normalizeOrg(organizationID string) (string, error) {
	org := strings.TrimSpace(organizationID)
	if org == "" {
		return "", &models.ValidationError{Fields: []string{"organizationId"}, Reason: "is required"}
	}
	return org, nil
}
