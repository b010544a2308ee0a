package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Mofasaz/aegisai-web/internal/engine"
)

// AnalyzerServiceName is the fully qualified gRPC service name.
const AnalyzerServiceName = "aegis.v1.Analyzer"

const (
	analyzeEventsMethod = "/" + AnalyzerServiceName + "/AnalyzeEvents"
	listRulesMethod     = "/" + AnalyzerServiceName + "/ListRules"
)

// AnalyzerServer scores events and lists rules. Messages are
// google.protobuf.Struct documents shaped like the HTTP bodies.
type AnalyzerServer interface {
	AnalyzeEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var analyzerServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalyzerServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeEvents", Handler: analyzeEventsHandler},
		{MethodName: "ListRules", Handler: listRulesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aegis/v1/analyzer.proto",
}

func analyzeEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).AnalyzeEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeEventsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).AnalyzeEvents(ctx, req.(*structpb.Struct))
	})
}

func listRulesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).ListRules(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRulesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).ListRules(ctx, req.(*emptypb.Empty))
	})
}

// AnalyzerClient calls the Analyzer service.
type AnalyzerClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyzerClient wraps cc.
func NewAnalyzerClient(cc grpc.ClientConnInterface) *AnalyzerClient {
	return &AnalyzerClient{cc: cc}
}

// AnalyzeEvents sends {"events": [...]} and returns {"anomalies": [...]}.
func (c *AnalyzerClient) AnalyzeEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeEventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRules returns the active rule list.
func (c *AnalyzerClient) ListRules(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listRulesMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPC serves the Analyzer and the standard health service. Health
// reports NOT_SERVING until MarkReady.
type GRPC struct {
	engine *engine.Engine
	health *health.Server
	server *grpc.Server
	logger *zap.Logger
}

// NewGRPC registers both services on a new grpc.Server.
func NewGRPC(eng *engine.Engine, logger *zap.Logger) *GRPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GRPC{engine: eng, health: health.NewServer(), logger: logger}
	g.server = grpc.NewServer(grpc.UnaryInterceptor(g.logCalls))
	g.server.RegisterService(&analyzerServiceDesc, g)
	healthpb.RegisterHealthServer(g.server, g.health)

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	g.health.SetServingStatus(AnalyzerServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// MarkReady flips health to SERVING once rules are loaded.
func (g *GRPC) MarkReady() {
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.health.SetServingStatus(AnalyzerServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Serve listens on addr and serves until stopped.
func (g *GRPC) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.ServeOn(lis)
}

// ServeOn serves on an existing listener.
func (g *GRPC) ServeOn(lis net.Listener) error {
	return g.server.Serve(lis)
}

// GracefulStop marks the server unhealthy and drains in-flight calls.
func (g *GRPC) GracefulStop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

// AnalyzeEvents implements AnalyzerServer.
func (g *GRPC) AnalyzeEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req analyzeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode events: %v", err)
	}
	return toStruct(analyzeResponse{Anomalies: g.engine.AnalyzeEvents(ctx, req.Events)})
}

// ListRules implements AnalyzerServer.
func (g *GRPC) ListRules(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(g.engine.ListRules())
}

func (g *GRPC) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		g.logger.Warn("grpc call failed", zap.String("method", info.FullMethod), zap.Error(err))
	}
	return resp, err
}

// fromStruct decodes a Struct through its JSON form so model types keep
// their own unmarshalling rules.
func fromStruct(in *structpb.Struct, v any) error {
	data, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
