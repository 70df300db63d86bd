package api

import (
	"context"
	"net"
	"testing"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func newConsoleClient(t *testing.T, console Console, tokens *auth.TokenIssuer) *ConsoleClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(console, tokens)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeGRPC(ctx, srv, lis) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewConsoleClient(conn)
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestConsoleRequiresAdminToken(t *testing.T) {
	env := newTestEnv(t)
	client := newConsoleClient(t, env.console, env.tokens)

	_, err := client.Players(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.Players(withToken("garbage"), &emptypb.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.Players(withToken(env.viewer), &emptypb.Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestConsoleBroadcast(t *testing.T) {
	env := newTestEnv(t)
	client := newConsoleClient(t, env.console, env.tokens)

	_, err := client.Broadcast(withToken(env.admin), wrapperspb.String("server restart"))
	require.NoError(t, err)
	assert.Equal(t, []string{"server restart"}, env.console.messages)

	_, err = client.Broadcast(withToken(env.admin), wrapperspb.String("  "))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestConsoleQueryBlock(t *testing.T) {
	env := newTestEnv(t)
	client := newConsoleClient(t, env.console, env.tokens)

	req, err := structpb.NewStruct(map[string]interface{}{"x": 5, "y": 64, "z": 5})
	require.NoError(t, err)
	resp, err := client.QueryBlock(withToken(env.admin), req)
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.GetFields()["id"].GetNumberValue())
	assert.Equal(t, 0.0, resp.GetFields()["meta"].GetNumberValue())
	assert.Equal(t, "stone", resp.GetFields()["name"].GetStringValue())

	tests := []struct {
		name   string
		fields map[string]interface{}
		code   codes.Code
	}{
		{"нет поля", map[string]interface{}{"x": 1, "y": 2}, codes.InvalidArgument},
		{"дробная координата", map[string]interface{}{"x": 1.5, "y": 2, "z": 3}, codes.InvalidArgument},
		{"строка", map[string]interface{}{"x": "1", "y": 2, "z": 3}, codes.InvalidArgument},
		{"вне мира", map[string]interface{}{"x": 0, "y": 300, "z": 0}, codes.OutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = client.QueryBlock(withToken(env.admin), req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestConsolePlayers(t *testing.T) {
	env := newTestEnv(t)
	client := newConsoleClient(t, env.console, env.tokens)

	list, err := client.Players(withToken(env.admin), &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
	p := list.GetValues()[0].GetStructValue().GetFields()
	assert.Equal(t, "Alice", p["name"].GetStringValue())
	assert.Equal(t, 1.0, p["entity_id"].GetNumberValue())
	assert.Equal(t, auth.OfflineUUID("Alice").String(), p["uuid"].GetStringValue())
}
