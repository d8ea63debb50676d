// Package tracklog_grpc serves the tracking log over gRPC. Messages are
// plain Go structs carried with a JSON codec, so no generated stubs are
// involved.
package tracklog_grpc

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BearBump/TrackLog/internal/models"
)

const ServiceName = "tracklog.v1.TrackingLog"

type Service interface {
	Submit(ctx context.Context, in models.SubmitInput) (*models.TrackingEvent, error)
	List(ctx context.Context, organizationID string, f models.ListFilter) ([]*models.TrackingEvent, error)
	History(ctx context.Context, referenceType models.ReferenceType, referenceID string) ([]*models.TrackingEvent, error)
	Stats(ctx context.Context, organizationID string) (models.Stats, error)
	StoppedItems(ctx context.Context, organizationID string) ([]models.StoppedItem, error)
	Search(ctx context.Context, organizationID, query string) ([]models.SearchResult, error)
	ExportCSV(ctx context.Context, organizationID string, f models.ListFilter) (string, error)
}

// TrackingLogServer is the server side of tracklog.v1.TrackingLog.
type TrackingLogServer interface {
	SubmitEvent(context.Context, *SubmitEventRequest) (*SubmitEventResponse, error)
	ListEvents(context.Context, *ListEventsRequest) (*ListEventsResponse, error)
	ExportEvents(context.Context, *ListEventsRequest) (*ExportEventsResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*ListEventsResponse, error)
	GetStats(context.Context, *OrganizationRequest) (*GetStatsResponse, error)
	ListStoppedItems(context.Context, *OrganizationRequest) (*ListStoppedItemsResponse, error)
	SearchReferences(context.Context, *SearchReferencesRequest) (*SearchReferencesResponse, error)
}

type TrackingLogAPI struct {
	svc Service
	log *zap.Logger
}

func New(svc Service, log *zap.Logger) *TrackingLogAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrackingLogAPI{svc: svc, log: log}
}

func (a *TrackingLogAPI) SubmitEvent(ctx context.Context, req *SubmitEventRequest) (*SubmitEventResponse, error) {
	ev, err := a.svc.Submit(ctx, req.Event)
	if err != nil {
		return nil, a.toStatus("SubmitEvent", err)
	}
	return &SubmitEventResponse{Event: ev}, nil
}

func (a *TrackingLogAPI) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	f, err := models.NewListFilter(req.ReferenceType, req.DateFrom, req.DateTo, req.Search)
	if err != nil {
		return nil, a.toStatus("ListEvents", err)
	}
	evs, err := a.svc.List(ctx, req.OrganizationID, f)
	if err != nil {
		return nil, a.toStatus("ListEvents", err)
	}
	return &ListEventsResponse{Events: evs}, nil
}

func (a *TrackingLogAPI) ExportEvents(ctx context.Context, req *ListEventsRequest) (*ExportEventsResponse, error) {
	f, err := models.NewListFilter(req.ReferenceType, req.DateFrom, req.DateTo, req.Search)
	if err != nil {
		return nil, a.toStatus("ExportEvents", err)
	}
	out, err := a.svc.ExportCSV(ctx, req.OrganizationID, f)
	if err != nil {
		return nil, a.toStatus("ExportEvents", err)
	}
	return &ExportEventsResponse{CSV: out}, nil
}

func (a *TrackingLogAPI) GetHistory(ctx context.Context, req *GetHistoryRequest) (*ListEventsResponse, error) {
	evs, err := a.svc.History(ctx, models.ReferenceType(req.ReferenceType), req.ReferenceID)
	if err != nil {
		return nil, a.toStatus("GetHistory", err)
	}
	return &ListEventsResponse{Events: evs}, nil
}

func (a *TrackingLogAPI) GetStats(ctx context.Context, req *OrganizationRequest) (*GetStatsResponse, error) {
	st, err := a.svc.Stats(ctx, req.OrganizationID)
	if err != nil {
		return nil, a.toStatus("GetStats", err)
	}
	return &GetStatsResponse{Stats: st}, nil
}

func (a *TrackingLogAPI) ListStoppedItems(ctx context.Context, req *OrganizationRequest) (*ListStoppedItemsResponse, error) {
	items, err := a.svc.StoppedItems(ctx, req.OrganizationID)
	if err != nil {
		return nil, a.toStatus("ListStoppedItems", err)
	}
	return &ListStoppedItemsResponse{Items: items}, nil
}

func (a *TrackingLogAPI) SearchReferences(ctx context.Context, req *SearchReferencesRequest) (*SearchReferencesResponse, error) {
	res, err := a.svc.Search(ctx, req.OrganizationID, req.Query)
	if err != nil {
		return nil, a.toStatus("SearchReferences", err)
	}
	return &SearchReferencesResponse{Results: res}, nil
}

func (a *TrackingLogAPI) toStatus(method string, err error) error {
	var (
		ve *models.ValidationError
		de *models.DuplicateEventError
		le *models.ReferenceLookupError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &de):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &le):
		a.log.Warn("registry lookup failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		a.log.Error("request failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// Register attaches srv to s under ServiceName.
func Register(s grpc.ServiceRegistrar, srv TrackingLogServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req any](method string, call func(TrackingLogServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TrackingLogServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(TrackingLogServer), ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackingLogServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitEvent", func(s TrackingLogServer, ctx context.Context, in *SubmitEventRequest) (any, error) {
			return s.SubmitEvent(ctx, in)
		}),
		unary("ListEvents", func(s TrackingLogServer, ctx context.Context, in *ListEventsRequest) (any, error) {
			return s.ListEvents(ctx, in)
		}),
		unary("ExportEvents", func(s TrackingLogServer, ctx context.Context, in *ListEventsRequest) (any, error) {
			return s.ExportEvents(ctx, in)
		}),
		unary("GetHistory", func(s TrackingLogServer, ctx context.Context, in *GetHistoryRequest) (any, error) {
			return s.GetHistory(ctx, in)
		}),
		unary("GetStats", func(s TrackingLogServer, ctx context.Context, in *OrganizationRequest) (any, error) {
			return s.GetStats(ctx, in)
		}),
		unary("ListStoppedItems", func(s TrackingLogServer, ctx context.Context, in *OrganizationRequest) (any, error) {
			return s.ListStoppedItems(ctx, in)
		}),
		unary("SearchReferences", func(s TrackingLogServer, ctx context.Context, in *SearchReferencesRequest) (any, error) {
			return s.SearchReferences(ctx, in)
		}),
	},
	Metadata: "tracklog/v1/tracklog.proto",
}
