package transport

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"transformstate/internal/metadata"
	"transformstate/internal/store"
)

const serviceName = "transformstate.v1.MetadataService"

// MetadataServer is the server side of MetadataService.
type MetadataServer interface {
	Get(context.Context, *GetRequest) (*MetadataResponse, error)
	Save(context.Context, *SaveRequest) (*MetadataResponse, error)
	MergeStats(context.Context, *MergeStatsRequest) (*MetadataResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MetadataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unaryHandler("Get", func(s MetadataServer, ctx context.Context, req *GetRequest) (*MetadataResponse, error) {
			return s.Get(ctx, req)
		})},
		{MethodName: "Save", Handler: unaryHandler("Save", func(s MetadataServer, ctx context.Context, req *SaveRequest) (*MetadataResponse, error) {
			return s.Save(ctx, req)
		})},
		{MethodName: "MergeStats", Handler: unaryHandler("MergeStats", func(s MetadataServer, ctx context.Context, req *MergeStatsRequest) (*MetadataResponse, error) {
			return s.MergeStats(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transformstate/v1/metadata",
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unaryHandler adapts a typed method to grpc.MethodHandler. Req is the
// request struct type; *Req must implement message.
func unaryHandler[Req any, PReq interface {
	*Req
	message
}](name string, call func(MetadataServer, context.Context, PReq) (*MetadataResponse, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetadataServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MetadataServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceServer exposes a store.Service over gRPC.
type serviceServer struct {
	svc *store.Service
}

func NewMetadataServer(svc *store.Service) MetadataServer { return &serviceServer{svc: svc} }

func (s *serviceServer) Get(ctx context.Context, req *GetRequest) (*MetadataResponse, error) {
	m, err := s.svc.Load(ctx, req.ID)
	return respond(m, err)
}

func (s *serviceServer) Save(ctx context.Context, req *SaveRequest) (*MetadataResponse, error) {
	m, err := s.svc.Save(ctx, req.Metadata)
	return respond(m, err)
}

func (s *serviceServer) MergeStats(ctx context.Context, req *MergeStatsRequest) (*MetadataResponse, error) {
	m, err := s.svc.RecordStats(ctx, req.ID, req.Delta)
	return respond(m, err)
}

func respond(m metadata.TransformMetadata, err error) (*MetadataResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &MetadataResponse{Metadata: m}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, metadata.ErrUnknownStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps gRPC codes back to store errors so callers can use
// errors.Is on either side of the wire.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.Join(store.ErrNotFound, err)
	case codes.Aborted:
		return errors.Join(store.ErrVersionConflict, err)
	}
	return err
}
