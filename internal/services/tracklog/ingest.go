package tracklog

import (
	"bytes"
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/TrackLog/internal/broker/messages"
	"github.com/BearBump/TrackLog/internal/metrics"
	"github.com/BearBump/TrackLog/internal/models"
)

func newEventID() string {
	return uuid.NewString()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Submit validates, fills defaults and appends one event. The duplicate
// check and the sequence allocation happen inside the repository append, so
// a rejected submission leaves no trace.
func (s *Service) Submit(ctx context.Context, in models.SubmitInput) (*models.TrackingEvent, error) {
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.ReferenceID = strings.TrimSpace(in.ReferenceID)
	in.EventType = strings.TrimSpace(in.EventType)
	if in.ExternalEventID != nil {
		ext := strings.TrimSpace(*in.ExternalEventID)
		in.ExternalEventID = &ext
		if ext == "" {
			in.ExternalEventID = nil
		}
	}
	if bytes.Equal(bytes.TrimSpace(in.Payload), []byte("null")) {
		in.Payload = nil
	}

	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if err := s.schemas.Validate(in.EventType, in.Payload); err != nil {
		return nil, err
	}

	ev := s.buildEvent(in)
	s.fillLocation(ctx, ev)

	out, err := s.repo.AppendEvent(ctx, ev)
	if err != nil {
		var dup *models.DuplicateEventError
		if errors.As(err, &dup) {
			metrics.DuplicateEvents.Inc()
			return nil, err
		}
		return nil, asStorageError("append event", err)
	}

	metrics.EventsIngested.WithLabelValues(string(out.ReferenceType), string(out.Source)).Inc()
	s.publishRecorded(ctx, out)
	return out, nil
}

func (s *Service) validateInput(in models.SubmitInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &models.ValidationError{Reason: err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		reasons = append(reasons, fe.Field()+" "+describe(fe))
	}
	return &models.ValidationError{Fields: fields, Reason: strings.Join(reasons, "; ")}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "latitude":
		return "must be within [-90, 90]"
	case "longitude":
		return "must be within [-180, 180]"
	case "lowercase":
		return "must be lowercase"
	default:
		return "failed " + fe.Tag()
	}
}

// buildEvent applies ingestion defaults: event time is now when unset, the
// actor type follows from the actor id unless given, and the source is
// manual when unset.
func (s *Service) buildEvent(in models.SubmitInput) *models.TrackingEvent {
	ev := &models.TrackingEvent{
		ID:              s.newID(),
		OrganizationID:  in.OrganizationID,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		EventType:       in.EventType,
		EventTime:       in.EventTime.UTC(),
		StopID:          in.StopID,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		ActorType:       in.ActorType,
		ActorID:         in.ActorID,
		Description:     in.Description,
		LocationText:    in.LocationText,
		Payload:         in.Payload,
		ExternalEventID: in.ExternalEventID,
		Source:          in.Source,
	}
	if in.EventTime.IsZero() {
		ev.EventTime = s.now().UTC()
	}
	if ev.ActorType == nil {
		at := models.ActorTypeSystem
		if in.ActorID != nil && *in.ActorID != "" {
			at = models.ActorTypeUser
		}
		ev.ActorType = &at
	}
	if ev.Source == "" {
		ev.Source = models.SourceManual
	}
	return ev
}

// fillLocation labels the event from the stop directory when the producer
// gave a stop but no text. Failures only cost the label.
func (s *Service) fillLocation(ctx context.Context, ev *models.TrackingEvent) {
	if ev.StopID == nil || *ev.StopID == "" {
		return
	}
	if ev.LocationText != nil && *ev.LocationText != "" {
		return
	}

	var (
		stop *models.Stop
		err  error
	)
	if s.stops != nil {
		stop, err = s.stops.Stop(ctx, *ev.StopID)
	} else if s.registry != nil {
		var found map[string]*models.Stop
		found, err = s.registry.StopsByIDs(ctx, []string{*ev.StopID})
		stop = found[*ev.StopID]
	}
	if err != nil {
		s.log.Warn("stop lookup failed", zap.String("stop_id", *ev.StopID), zap.Error(err))
		return
	}
	if stop == nil {
		return
	}
	if label := stop.Label(); label != "" {
		ev.LocationText = &label
	}
}

func (s *Service) publishRecorded(ctx context.Context, ev *models.TrackingEvent) {
	if s.publisher == nil || s.settings.RecordedTopic == "" {
		return
	}
	topic := s.settings.RecordedTopic
	if err := s.publisher.PublishJSON(ctx, topic, ev.ReferenceID, messages.NewEventRecorded(ev)); err != nil {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		s.log.Warn("publish event recorded failed",
			zap.String("event_id", ev.ID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
