package api

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/world"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ConsoleServiceName полное имя gRPC-сервиса консоли
const ConsoleServiceName = "mc.admin.Console"

// ConsoleServer серверная сторона mc.admin.Console. Сообщения: стандартные
// типы protobuf, поэтому .proto и кодогенерация не нужны.
type ConsoleServer interface {
	Broadcast(ctx context.Context, msg *wrapperspb.StringValue) (*emptypb.Empty, error)
	QueryBlock(ctx context.Context, pos *structpb.Struct) (*structpb.Struct, error)
	Players(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterConsoleServer регистрирует сервис на gRPC-сервере
func RegisterConsoleServer(s grpc.ServiceRegistrar, srv ConsoleServer) {
	s.RegisterService(&consoleServiceDesc, srv)
}

var consoleServiceDesc = grpc.ServiceDesc{
	ServiceName: ConsoleServiceName,
	HandlerType: (*ConsoleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Broadcast", Handler: consoleBroadcastHandler},
		{MethodName: "QueryBlock", Handler: consoleQueryBlockHandler},
		{MethodName: "Players", Handler: consolePlayersHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mc/admin/console.proto",
}

func consoleBroadcastHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsoleServer).Broadcast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ConsoleServiceName + "/Broadcast"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsoleServer).Broadcast(ctx, req.(*wrapperspb.StringValue))
	})
}

func consoleQueryBlockHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsoleServer).QueryBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ConsoleServiceName + "/QueryBlock"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsoleServer).QueryBlock(ctx, req.(*structpb.Struct))
	})
}

func consolePlayersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsoleServer).Players(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ConsoleServiceName + "/Players"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsoleServer).Players(ctx, req.(*emptypb.Empty))
	})
}

// ConsoleClient клиент mc.admin.Console
type ConsoleClient struct {
	cc grpc.ClientConnInterface
}

func NewConsoleClient(cc grpc.ClientConnInterface) *ConsoleClient {
	return &ConsoleClient{cc: cc}
}

func (c *ConsoleClient) Broadcast(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+ConsoleServiceName+"/Broadcast", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConsoleClient) QueryBlock(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ConsoleServiceName+"/QueryBlock", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConsoleClient) Players(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ConsoleServiceName+"/Players", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// consoleService реализует ConsoleServer поверх Console
type consoleService struct {
	console Console
	logger  *logging.Logger
}

// NewConsoleService создаёт реализацию консоли
func NewConsoleService(console Console) ConsoleServer {
	return &consoleService{console: console, logger: logging.GetAPILogger()}
}

func (s *consoleService) Broadcast(_ context.Context, msg *wrapperspb.StringValue) (*emptypb.Empty, error) {
	text := strings.TrimSpace(msg.GetValue())
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "empty message")
	}
	n := s.console.BroadcastMessage(text)
	s.logger.Debug("📢 gRPC broadcast доставлен %d игрокам", n)
	return &emptypb.Empty{}, nil
}

func (s *consoleService) QueryBlock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var coords [3]int32
	for i, key := range []string{"x", "y", "z"} {
		v, ok := in.GetFields()[key]
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "missing field %q", key)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue != float64(int32(n.NumberValue)) {
			return nil, status.Errorf(codes.InvalidArgument, "field %q must be an integer", key)
		}
		coords[i] = int32(n.NumberValue)
	}
	pos := world.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]}

	st, err := s.console.QueryBlock(ctx, pos)
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		return nil, status.Error(codes.OutOfRange, err.Error())
	case err != nil:
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	v := blockView(pos, st)
	return structpb.NewStruct(map[string]interface{}{
		"id":   float64(v.ID),
		"meta": float64(v.Meta),
		"name": v.Name,
	})
}

func (s *consoleService) Players(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	players := s.console.Players()
	items := make([]interface{}, 0, len(players))
	for _, p := range players {
		items = append(items, map[string]interface{}{
			"entity_id": float64(p.EntityID),
			"name":      p.Name,
			"uuid":      p.UUID.String(),
			"x":         p.Position.X(),
			"y":         p.Position.Y(),
			"z":         p.Position.Z(),
		})
	}
	return structpb.NewList(items)
}

// AdminInterceptor пропускает только вызовы с админским токеном в
// метаданных authorization
func AdminInterceptor(tokens *auth.TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		token, ok := bearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "malformed token")
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if !claims.IsAdmin {
			return nil, status.Error(codes.PermissionDenied, "admin only")
		}
		return handler(ctx, req)
	}
}

// NewGRPCServer собирает gRPC-сервер консоли с проверкой токена
func NewGRPCServer(console Console, tokens *auth.TokenIssuer) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(AdminInterceptor(tokens)))
	RegisterConsoleServer(srv, NewConsoleService(console))
	return srv
}

// ServeGRPC обслуживает ln до отмены ctx
func ServeGRPC(ctx context.Context, srv *grpc.Server, ln net.Listener) error {
	stop := context.AfterFunc(ctx, srv.GracefulStop)
	defer stop()
	logging.GetAPILogger().Info("🛰️ gRPC консоль слушает %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
