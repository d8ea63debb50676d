package tracklog_grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls a TrackingLog server over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *Client) SubmitEvent(ctx context.Context, in *SubmitEventRequest, opts ...grpc.CallOption) (*SubmitEventResponse, error) {
	out := new(SubmitEventResponse)
	if err := c.invoke(ctx, "SubmitEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*ListEventsResponse, error) {
	out := new(ListEventsResponse)
	if err := c.invoke(ctx, "ListEvents", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ExportEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*ExportEventsResponse, error) {
	out := new(ExportEventsResponse)
	if err := c.invoke(ctx, "ExportEvents", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*ListEventsResponse, error) {
	out := new(ListEventsResponse)
	if err := c.invoke(ctx, "GetHistory", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStats(ctx context.Context, in *OrganizationRequest, opts ...grpc.CallOption) (*GetStatsResponse, error) {
	out := new(GetStatsResponse)
	if err := c.invoke(ctx, "GetStats", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListStoppedItems(ctx context.Context, in *OrganizationRequest, opts ...grpc.CallOption) (*ListStoppedItemsResponse, error) {
	out := new(ListStoppedItemsResponse)
	if err := c.invoke(ctx, "ListStoppedItems", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchReferences(ctx context.Context, in *SearchReferencesRequest, opts ...grpc.CallOption) (*SearchReferencesResponse, error) {
	out := new(SearchReferencesResponse)
	if err := c.invoke(ctx, "SearchReferences", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
