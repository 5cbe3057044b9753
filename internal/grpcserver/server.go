// Package grpcserver implements the fulfillment.v1.FulfillmentService gRPC
// server.
//
// Messages are google.protobuf.Struct documents carrying the same JSON shapes
// as the REST transport. The server only handles transport concerns:
// metadata extraction, error mapping and conversion between Struct and the
// domain types.
package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/httpapi"
	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/model"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "fulfillment.v1.FulfillmentService"

// FulfillmentServer is the server API of ServiceName.
type FulfillmentServer interface {
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Convert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Notify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ServiceName for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: unary("Search", FulfillmentServer.Search)},
		{MethodName: "Transition", Handler: unary("Transition", FulfillmentServer.Transition)},
		{MethodName: "Convert", Handler: unary("Convert", FulfillmentServer.Convert)},
		{MethodName: "Notify", Handler: unary("Notify", FulfillmentServer.Notify)},
	},
	Streams: []grpc.StreamDesc{},
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv FulfillmentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary(method string, call func(FulfillmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FulfillmentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FulfillmentServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ─── Server ──────────────────────────────────────────────────────────────────

// Server implements FulfillmentServer on top of the domain services.
type Server struct {
	search    httpapi.Searcher
	lifecycle httpapi.Lifecycle
	convert   httpapi.Converter
	notify    httpapi.Notifier
}

// NewServer constructs a gRPC Server backed by the given services.
func NewServer(s httpapi.Searcher, lc httpapi.Lifecycle, c httpapi.Converter, n httpapi.Notifier) *Server {
	return &Server{search: s, lifecycle: lc, convert: c, notify: n}
}

// TransitionRequest is the Struct shape of a Transition call.
type TransitionRequest struct {
	EntityType model.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	httpapi.TransitionBody
}

// ConvertRequest is the Struct shape of a Convert call.
type ConvertRequest struct {
	RequestID string `json:"requestId"`
	httpapi.ConvertBody
}

// NotifyRequest is the Struct shape of a Notify call.
type NotifyRequest struct {
	Template string `json:"template"`
	httpapi.NotifyBody
}

// ─── RPC implementations ─────────────────────────────────────────────────────

// Search ranks providers for the criteria in req.
func (s *Server) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var c matching.Criteria
	if err := fromStruct(req, &c); err != nil {
		return nil, err
	}
	res, err := s.search.Search(ctx, c)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res)
}

// Transition moves a request or an application on behalf of the caller.
func (s *Server) Transition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var in TransitionRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := s.lifecycle.Transition(ctx, in.EntityType, in.EntityID, in.Status, actor, in.Comment)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res)
}

// Convert books a provider for a request.
func (s *Server) Convert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var in ConvertRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := s.convert.Convert(ctx, in.RequestID, in.ProviderID, in.ServiceID, actor)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res)
}

// Notify renders a template and dispatches it synchronously.
func (s *Server) Notify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := userIDFromCtx(ctx); err != nil {
		return nil, err
	}
	var in NotifyRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := s.notify.Notify(ctx, in.Template, in.Recipient, in.Data)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// CodeFor maps an error kind to a gRPC status code.
func CodeFor(kind apperr.Kind) codes.Code {
	switch kind {
	case apperr.KindValidation:
		return codes.InvalidArgument
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindInvalidState, apperr.KindInvalidTransition:
		return codes.FailedPrecondition
	case apperr.KindConcurrencyConflict:
		return codes.Aborted
	case apperr.KindProviderUnavailable:
		return codes.Unavailable
	}
	return codes.Internal
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	code := CodeFor(apperr.KindOf(err))
	if code == codes.Internal {
		log.Printf("[grpc] internal error: %v", err)
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, apperr.Message(err))
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid request: %v", err))
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
