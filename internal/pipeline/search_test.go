package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/lease"
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
	resolveIntent func(provider.ResolveIntentInput) (provider.ResolveIntentOutput, error)
	createArticle func(provider.CreateArticleInput) (provider.CreateArticleOutput, error)
}

func (f *fakeGateway) CorrectSpelling(ctx context.Context, in provider.CorrectSpellingInput) (provider.CorrectSpellingOutput, error) {
	return provider.CorrectSpellingOutput{Text: in.Text}, nil
}

func (f *fakeGateway) ResolveIntent(ctx context.Context, in provider.ResolveIntentInput) (provider.ResolveIntentOutput, error) {
	if f.resolveIntent != nil {
		return f.resolveIntent(in)
	}
	return provider.ResolveIntentOutput{Items: []provider.IntentCandidate{
		{Intent: "learn go channels", Title: "Go Channels", Summary: "an overview"},
	}}, nil
}

func (f *fakeGateway) CreateArticle(ctx context.Context, in provider.CreateArticleInput) (provider.CreateArticleOutput, error) {
	if f.createArticle != nil {
		return f.createArticle(in)
	}
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

func newSearchPipeline(st *store.Store, gw provider.Gateway) *SearchGeneration {
	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)
	cache := config.NewRuntimeCache(nil, config.DefaultRetryConfig(), config.DefaultMailConfig(), time.Minute)
	exec := executor.New(st, cache)
	return NewSearchGeneration(gw, st, dispatch, leases, exec)
}

func TestSearchGeneration_QueryFull_GeneratesIntentsAndArticles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, QueryID: &query.ID, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)

	p := newSearchPipeline(st, &fakeGateway{})
	result := p.Run(ctx, order)

	require.Equal(t, store.OrderStatusCompleted, result.Status)

	intents, err := st.ListIntentsForQuery(ctx, query.ID)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "learn go channels", intents[0].IntentText)
}

func TestSearchGeneration_QueryFull_LeaseContested(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)

	leases := lease.NewManager(st)
	ok, _, err := leases.TryAcquire(ctx, 999, lease.ScopeQuery, lease.QueryScopeKey(query.ID), 60)
	require.NoError(t, err)
	require.True(t, ok)

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, QueryID: &query.ID, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)

	p := newSearchPipeline(st, &fakeGateway{})
	result := p.Run(ctx, order)

	assert.Equal(t, store.OrderStatusFailed, result.Status)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "resource locked by order 999")
}

func TestSearchGeneration_SlugCollision_SuffixesSlug(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	intent, err := st.GetOrCreateIntent(ctx, query.ID, "learn go channels", "md")
	require.NoError(t, err)
	_, err = st.CreateArticlePreview(ctx, intent.ID, "go-channels", "md", nil)
	require.NoError(t, err)

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindIntentRegen, QueryID: &query.ID, IntentID: &intent.ID, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)

	p := newSearchPipeline(st, &fakeGateway{})
	result := p.Run(ctx, order)
	require.Equal(t, store.OrderStatusCompleted, result.Status)

	intents, err := st.ListIntentsForQuery(ctx, query.ID)
	require.NoError(t, err)
	require.Len(t, intents, 1)

	// the pipeline's article took the first free suffix, so "-2" is now taken
	_, err = st.CreateArticlePreview(ctx, intent.ID, "go-channels-2", "md", nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSearchGeneration_ArticleContentGenerate_NarrowsToOneArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	intent, err := st.GetOrCreateIntent(ctx, query.ID, "learn go channels", "md")
	require.NoError(t, err)
	article, err := st.CreateArticlePreview(ctx, intent.ID, "go-channels-preview", "md", nil)
	require.NoError(t, err)

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindArticleContentGenerate, QueryID: &query.ID, ArticleID: &article.ID, RequestedBy: store.RequestedBySystem})
	require.NoError(t, err)
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)

	p := newSearchPipeline(st, &fakeGateway{})
	result := p.Run(ctx, order)
	require.Equal(t, store.OrderStatusCompleted, result.Status)

	refreshed, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ArticleStatusContentReady, refreshed.Status)
	require.NotNil(t, refreshed.Content)
	assert.Equal(t, "channels are great", *refreshed.Content)
}
