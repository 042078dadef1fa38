package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// serviceName is the gRPC service path dialed on the external LLM sidecar,
// mirroring the teacher's pkg/agent.GRPCLLMClient / llmv1.LLMServiceClient
// wiring one level up: instead of a generated llmv1 stub (protoc could not
// be run here, see codec.go) calls go out through grpc.ClientConn.Invoke
// against this fixed service path.
const serviceName = "genengine.provider.v1.Gateway"

// GRPCGateway implements Gateway by calling an external LLM sidecar over
// gRPC (base spec §4.2 grpcgateway), optionally fronting every call with a
// Redis response cache keyed by a hash of the request.
type GRPCGateway struct {
	conn     *grpc.ClientConn
	cache    *redis.Client
	cacheTTL time.Duration
}

// Option configures a GRPCGateway at construction time.
type Option func(*GRPCGateway)

// WithResponseCache fronts every call with client, caching responses for
// ttl keyed by a hash of the method name and request body — an explicit
// instance of "implementations may cache transport" (base spec §4.2) that
// is invisible to the Gateway interface and its callers.
func WithResponseCache(client *redis.Client, ttl time.Duration) Option {
	return func(g *GRPCGateway) {
		g.cache = client
		g.cacheTTL = ttl
	}
}

// NewGRPCGateway dials addr. Uses insecure (plaintext) transport — the
// sidecar is expected to run as a local sidecar or on a trusted network,
// mirroring the teacher's NewGRPCLLMClient.
func NewGRPCGateway(addr string, opts ...Option) (*GRPCGateway, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("provider: dial gateway %s: %w", addr, err)
	}
	g := &GRPCGateway{conn: conn}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Close releases the underlying gRPC connection.
func (g *GRPCGateway) Close() error {
	return g.conn.Close()
}

func fullMethod(rpc string) string {
	return fmt.Sprintf("/%s/%s", serviceName, rpc)
}

func cacheKey(rpc string, req any) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("provider: hash request: %w", err)
	}
	sum := sha256.Sum256(append([]byte(rpc+":"), b...))
	return "genengine:provider:" + hex.EncodeToString(sum[:]), nil
}

// invoke performs one unary RPC, optionally served from or stored into the
// response cache when g.cache is configured.
func invoke[Req any, Resp any](ctx context.Context, g *GRPCGateway, rpc string, req Req) (Resp, error) {
	var resp Resp

	var key string
	if g.cache != nil {
		k, err := cacheKey(rpc, req)
		if err != nil {
			slog.Warn("provider: cache key derivation failed, bypassing cache", "rpc", rpc, "error", err)
		} else {
			key = k
			if raw, err := g.cache.Get(ctx, key).Bytes(); err == nil {
				if err := json.Unmarshal(raw, &resp); err == nil {
					return resp, nil
				}
			} else if err != redis.Nil {
				slog.Warn("provider: cache read failed", "rpc", rpc, "error", err)
			}
		}
	}

	if err := g.conn.Invoke(ctx, fullMethod(rpc), req, &resp); err != nil {
		var zero Resp
		return zero, fmt.Errorf("provider: %s: %w", rpc, err)
	}

	if key != "" {
		if raw, err := json.Marshal(resp); err == nil {
			if err := g.cache.Set(ctx, key, raw, g.cacheTTL).Err(); err != nil {
				slog.Warn("provider: cache write failed", "rpc", rpc, "error", err)
			}
		}
	}

	return resp, nil
}

func (g *GRPCGateway) CorrectSpelling(ctx context.Context, in CorrectSpellingInput) (CorrectSpellingOutput, error) {
	return invoke[CorrectSpellingInput, CorrectSpellingOutput](ctx, g, "CorrectSpelling", in)
}

func (g *GRPCGateway) ResolveIntent(ctx context.Context, in ResolveIntentInput) (ResolveIntentOutput, error) {
	return invoke[ResolveIntentInput, ResolveIntentOutput](ctx, g, "ResolveIntent", in)
}

func (g *GRPCGateway) CreateArticle(ctx context.Context, in CreateArticleInput) (CreateArticleOutput, error) {
	return invoke[CreateArticleInput, CreateArticleOutput](ctx, g, "CreateArticle", in)
}

func (g *GRPCGateway) CreateImage(ctx context.Context, in CreateImageInput) (CreateImageOutput, error) {
	return invoke[CreateImageInput, CreateImageOutput](ctx, g, "CreateImage", in)
}

func (g *GRPCGateway) Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	return invoke[SummarizeInput, SummarizeOutput](ctx, g, "Summarize", in)
}

func (g *GRPCGateway) GenerateReply(ctx context.Context, in GenerateReplyInput) (GenerateReplyOutput, error) {
	return invoke[GenerateReplyInput, GenerateReplyOutput](ctx, g, "GenerateReply", in)
}
