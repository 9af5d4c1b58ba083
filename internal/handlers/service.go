package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relata.v1.RelationService"

// RelationServiceServer is the server API for RelationService.
// Messages are google.protobuf.Struct documents.
type RelationServiceServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveSet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Result(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reload(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRelationServiceServer registers srv on s.
func RegisterRelationServiceServer(s grpc.ServiceRegistrar, srv RelationServiceServer) {
	s.RegisterService(&RelationServiceDesc, srv)
}

type unaryMethod func(RelationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RelationServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RelationServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RelationServiceDesc is the grpc.ServiceDesc for RelationService.
var RelationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Resolve", RelationServiceServer.Resolve),
		unaryHandler("ResolveSet", RelationServiceServer.ResolveSet),
		unaryHandler("Get", RelationServiceServer.Get),
		unaryHandler("Result", RelationServiceServer.Result),
		unaryHandler("Reload", RelationServiceServer.Reload),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relata/v1/relation.proto",
}

// RelationServiceClient is the client API for RelationService.
type RelationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRelationServiceClient creates a client over cc.
func NewRelationServiceClient(cc grpc.ClientConnInterface) *RelationServiceClient {
	return &RelationServiceClient{cc: cc}
}

// Call invokes method (e.g. "Resolve") with req.
func (c *RelationServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
