package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BearBump/TrackLog/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) AppendEvent(ctx context.Context, ev *models.TrackingEvent) (*models.TrackingEvent, error) {
	args := m.Called(ctx, ev)
	var out *models.TrackingEvent
	switch v := args.Get(0).(type) {
	case func(context.Context, *models.TrackingEvent) *models.TrackingEvent:
		out = v(ctx, ev)
	case *models.TrackingEvent:
		out = v
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, q models.EventQuery) ([]*models.TrackingEvent, error) {
	args := m.Called(ctx, q)
	var out []*models.TrackingEvent
	if v := args.Get(0); v != nil {
		out = v.([]*models.TrackingEvent)
	}
	return out, args.Error(1)
}

func (m *MockRepository) History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error) {
	args := m.Called(ctx, referenceType, referenceID)
	var out []*models.TrackingEvent
	if v := args.Get(0); v != nil {
		out = v.([]*models.TrackingEvent)
	}
	return out, args.Error(1)
}

func (m *MockRepository) CountEvents(ctx context.Context, organizationID string, since time.Time) (models.EventCounts, error) {
	args := m.Called(ctx, organizationID, since)
	return args.Get(0).(models.EventCounts), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, topic, key string, v any) error {
	args := m.Called(ctx, topic, key, v)
	return args.Error(0)
}
