package provider

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeSidecar is a minimal in-process stand-in for the external LLM
// sidecar, serving the same RPC paths a generated stub would dial — it
// exists only to exercise GRPCGateway's wire round-trip in tests.
type fakeSidecar struct {
	calls int
}

func newFakeSidecar() *fakeSidecar {
	return &fakeSidecar{}
}

func unaryHandler[Req any, Resp any](fn func(context.Context, Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		var in Req
		if err := dec(&in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

func startFakeSidecar(t *testing.T, s *fakeSidecar) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	desc := &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "CorrectSpelling", Handler: unaryHandler(func(ctx context.Context, in CorrectSpellingInput) (CorrectSpellingOutput, error) {
				s.calls++
				return CorrectSpellingOutput{Text: in.Text + "-corrected"}, nil
			})},
			{MethodName: "ResolveIntent", Handler: unaryHandler(func(ctx context.Context, in ResolveIntentInput) (ResolveIntentOutput, error) {
				s.calls++
				return ResolveIntentOutput{Items: []IntentCandidate{{Intent: "overview", Title: in.Query, Summary: "s"}}}, nil
			})},
		},
		Streams:  nil,
		Metadata: "genengine/provider_test.proto",
	}
	server.RegisterService(desc, nil)

	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

func TestGRPCGateway_CorrectSpelling_RoundTrip(t *testing.T) {
	sidecar := newFakeSidecar()
	addr := startFakeSidecar(t, sidecar)

	gw, err := NewGRPCGateway(addr)
	require.NoError(t, err)
	defer gw.Close()

	out, err := gw.CorrectSpelling(context.Background(), CorrectSpellingInput{Text: "helo", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "helo-corrected", out.Text)
	assert.Equal(t, 1, sidecar.calls)
}

func TestGRPCGateway_ResponseCache_AvoidsSecondCall(t *testing.T) {
	sidecar := newFakeSidecar()
	addr := startFakeSidecar(t, sidecar)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	gw, err := NewGRPCGateway(addr, WithResponseCache(client, time.Minute))
	require.NoError(t, err)
	defer gw.Close()

	in := ResolveIntentInput{Query: "golang channels", Language: "en"}

	out1, err := gw.ResolveIntent(context.Background(), in)
	require.NoError(t, err)
	out2, err := gw.ResolveIntent(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, 1, sidecar.calls, "second call should be served from the response cache")
}

func TestGRPCGateway_UnreachableAddrReturnsError(t *testing.T) {
	gw, err := NewGRPCGateway("127.0.0.1:1")
	require.NoError(t, err)
	defer gw.Close()

	_, err = gw.CorrectSpelling(context.Background(), CorrectSpellingInput{Text: "x"})
	assert.Error(t, err)
}

func TestCacheKey_IsDeterministic(t *testing.T) {
	in := CorrectSpellingInput{Text: "recieve", Language: "en"}
	k1, err := cacheKey("CorrectSpelling", in)
	require.NoError(t, err)
	k2, err := cacheKey("CorrectSpelling", in)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := cacheKey("CorrectSpelling", CorrectSpellingInput{Text: "receive", Language: "en"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}
