// Package api exposes the membership scene over gRPC.
package api

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "globe.v1.MembershipService"

// MembershipServer is the server API of MembershipService.
type MembershipServer interface {
	ListOrganizations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetOrganization(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetTree(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SetActiveOrganizations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLinks(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetCountry(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes MembershipService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListOrganizations", Handler: unaryHandler("ListOrganizations", MembershipServer.ListOrganizations)},
		{MethodName: "GetOrganization", Handler: unaryHandler("GetOrganization", MembershipServer.GetOrganization)},
		{MethodName: "GetTree", Handler: unaryHandler("GetTree", MembershipServer.GetTree)},
		{MethodName: "SetActiveOrganizations", Handler: unaryHandler("SetActiveOrganizations", MembershipServer.SetActiveOrganizations)},
		{MethodName: "GetLinks", Handler: unaryHandler("GetLinks", MembershipServer.GetLinks)},
		{MethodName: "GetCountry", Handler: unaryHandler("GetCountry", MembershipServer.GetCountry)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "globe/v1/membership.proto",
}

// RegisterMembershipServer registers srv on s.
func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req any](method string, call func(MembershipServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MembershipServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MembershipServer), ctx, req.(*Req))
		})
	}
}

// Service implements MembershipServer on top of the knowledge base and the
// scene.
type Service struct {
	store   *kb.KnowledgeBase
	scene   *scene.State
	log     logging.Logger
	stripes int
}

var _ MembershipServer = (*Service)(nil)

// NewService constructs the gRPC service.
func NewService(store *kb.KnowledgeBase, st *scene.State, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{store: store, scene: st, log: log, stripes: core.DefaultStripeCount}
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.log)
}

func (s *Service) ListOrganizations(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	idx := s.scene.Index()
	out, err := EncodeOrganizations(s.store.ListOrganizations(), s.store.IsActive, idx.Size)
	return out, ToStatusError(err)
}

func (s *Service) GetOrganization(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	org, err := organizationParam(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	view, err := s.scene.Organization(org)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := EncodeOrganization(view)
	return out, ToStatusError(err)
}

func (s *Service) GetTree(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	org, err := organizationParam(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, span := StartChildSpan(ctx, "api.get_tree", string(org), "")
	defer span.End()

	tree, err := s.scene.Tree(ctx, org)
	if err != nil {
		return nil, ToStatusError(err)
	}
	span.SetAttributes(attribute.Int("nodes", len(tree.Nodes)))
	out, err := EncodeTree(org, tree)
	return out, ToStatusError(err)
}

func (s *Service) SetActiveOrganizations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := DecodeOrganizationIDs(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, span := StartChildSpan(ctx, "api.set_active", "", "", attribute.Int("requested", len(ids)))
	defer span.End()

	if err := s.store.SetActive(ids); err != nil {
		s.logger(ctx).Warn(ctx, "selection rejected", logging.Any("organizations", ids), logging.Err(err))
		return nil, ToStatusError(err)
	}
	if !s.scene.Watching() {
		if err := s.scene.Recompute(ctx); err != nil {
			return nil, ToStatusError(err)
		}
	}
	s.logger(ctx).Info(ctx, "selection changed", logging.Any("organizations", ids))
	return s.GetLinks(ctx, nil)
}

func (s *Service) GetLinks(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := EncodeLinks(s.scene.Snapshot(), s.stripes)
	return out, ToStatusError(err)
}

func (s *Service) GetCountry(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	code := strings.ToUpper(strings.TrimSpace(req.GetValue()))
	if code == "" {
		return nil, ToStatusError(fmt.Errorf("%w: country code is required", ErrInvalidRequest))
	}
	ctx, span := StartChildSpan(ctx, "api.get_country", "", code)
	defer span.End()

	rec, orgs, err := s.scene.CountryOrganizations(code)
	if err != nil {
		return nil, ToStatusError(err)
	}
	positions, err := s.scene.ActiveMemberships(ctx, rec.Code)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := EncodeCountry(rec, orgs, s.scene.Params(), positions)
	return out, ToStatusError(err)
}

func organizationParam(req *wrapperspb.StringValue) (model.OrganizationID, error) {
	id := model.ParseOrganizationID(req.GetValue())
	if id == "" {
		return "", fmt.Errorf("%w: organization is required", ErrInvalidRequest)
	}
	return id, nil
}
