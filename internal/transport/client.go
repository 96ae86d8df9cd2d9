package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"transformstate/internal/metadata"
)

// Client calls a remote MetadataService. Errors for missing records and
// version conflicts match store.ErrNotFound and store.ErrVersionConflict.
type Client struct {
	cc *grpc.ClientConn
}

func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
	}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) invoke(ctx context.Context, method string, req message) (metadata.TransformMetadata, error) {
	out := new(MetadataResponse)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return metadata.TransformMetadata{}, fromStatus(err)
	}
	return out.Metadata, nil
}

func (c *Client) Get(ctx context.Context, id string) (metadata.TransformMetadata, error) {
	return c.invoke(ctx, "Get", &GetRequest{ID: id})
}

func (c *Client) Save(ctx context.Context, m metadata.TransformMetadata) (metadata.TransformMetadata, error) {
	return c.invoke(ctx, "Save", &SaveRequest{Metadata: m})
}

func (c *Client) MergeStats(ctx context.Context, id string, delta metadata.TransformStats) (metadata.TransformMetadata, error) {
	return c.invoke(ctx, "MergeStats", &MergeStatsRequest{ID: id, Delta: delta})
}
