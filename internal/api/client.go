package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls MembershipService over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListOrganizations(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListOrganizations", &emptypb.Empty{}, opts)
}

func (c *Client) GetOrganization(ctx context.Context, org string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetOrganization", wrapperspb.String(org), opts)
}

func (c *Client) GetTree(ctx context.Context, org string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetTree", wrapperspb.String(org), opts)
}

// SetActiveOrganizations replaces the selection and returns the new links.
func (c *Client) SetActiveOrganizations(ctx context.Context, orgs []string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := NewSelectionRequest(orgs...)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "SetActiveOrganizations", req, opts)
}

func (c *Client) GetLinks(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetLinks", &emptypb.Empty{}, opts)
}

func (c *Client) GetCountry(ctx context.Context, code string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCountry", wrapperspb.String(code), opts)
}
