package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("genengine_test"),
		postgres.WithUsername("genengine"),
		postgres.WithPassword("genengine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	st, err := store.Open(ctx, config.StoreConfig{
		Host: host, Port: port.Int(), User: "genengine", Password: "genengine",
		Database: "genengine_test", SSLMode: "disable",
		MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// fakeGateway lets tests script every Provider Gateway capability.
type fakeGateway struct {
	correctSpelling func(provider.CorrectSpellingInput) (provider.CorrectSpellingOutput, error)
}

func (f *fakeGateway) CorrectSpelling(ctx context.Context, in provider.CorrectSpellingInput) (provider.CorrectSpellingOutput, error) {
	if f.correctSpelling != nil {
		return f.correctSpelling(in)
	}
	return provider.CorrectSpellingOutput{Text: in.Text}, nil
}

func (f *fakeGateway) ResolveIntent(ctx context.Context, in provider.ResolveIntentInput) (provider.ResolveIntentOutput, error) {
	return provider.ResolveIntentOutput{Items: []provider.IntentCandidate{
		{Intent: "learn go channels", Title: "Go Channels", Summary: "an overview"},
	}}, nil
}

func (f *fakeGateway) CreateArticle(ctx context.Context, in provider.CreateArticleInput) (provider.CreateArticleOutput, error) {
	return provider.CreateArticleOutput{
		Article: provider.ArticleContent{
			Title: "Go Channels", Slug: "go-channels", Content: "channels are great", GeneratedBy: "fake",
		},
	}, nil
}

func (f *fakeGateway) CreateImage(ctx context.Context, in provider.CreateImageInput) (provider.CreateImageOutput, error) {
	return provider.CreateImageOutput{MimeType: "image/png", Binary: []byte("fake-image")}, nil
}

func (f *fakeGateway) Summarize(ctx context.Context, in provider.SummarizeInput) (provider.SummarizeOutput, error) {
	return provider.SummarizeOutput{Summary: "a summary"}, nil
}

func (f *fakeGateway) GenerateReply(ctx context.Context, in provider.GenerateReplyInput) (provider.GenerateReplyOutput, error) {
	return provider.GenerateReplyOutput{Content: "here is your reply"}, nil
}

func newTestEngine(st *store.Store, gw provider.Gateway) *Engine {
	dispatch := events.NewDispatcher(st)
	cache := config.NewRuntimeCache(nil, config.DefaultRetryConfig(), config.DefaultMailConfig(), time.Minute)
	exec := executor.New(st, cache)
	return New(st, gw, dispatch, exec)
}
