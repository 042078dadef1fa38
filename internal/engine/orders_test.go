package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/store"
)

func TestCreateOrder_QueryFullBlocksPerIntentForSameQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	intent, err := st.GetOrCreateIntent(ctx, query.ID, "learn go channels", "md")
	require.NoError(t, err)

	full, err := e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindQueryFull, QueryID: &query.ID})
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, CreateOrderRequest{
		Kind: store.OrderKindIntentRegen, QueryID: &query.ID, IntentID: &intent.ID,
	})
	require.Error(t, err)

	var locked *ErrResourceLocked
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, full.ID, locked.ActiveOrderID)
	assert.Equal(t, "query", locked.Scope)
}

func TestCreateOrder_PerIntentOnlyBlocksSameIntent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	intentA, err := st.GetOrCreateIntent(ctx, query.ID, "learn go channels", "md")
	require.NoError(t, err)
	intentB, err := st.GetOrCreateIntent(ctx, query.ID, "go channel select", "md")
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindIntentRegen, QueryID: &query.ID, IntentID: &intentA.ID})
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindIntentRegen, QueryID: &query.ID, IntentID: &intentB.ID})
	assert.NoError(t, err, "a different intent on the same query must not be blocked")
}

func TestCreateOrder_ArticleContentGenerateScopedToArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	intent, err := st.GetOrCreateIntent(ctx, query.ID, "learn go channels", "md")
	require.NoError(t, err)
	article, err := st.CreateArticlePreview(ctx, intent.ID, "go-channels", "md", nil)
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindArticleContentGenerate, ArticleID: &article.ID, RequestedBy: store.RequestedBySystem})
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindArticleContentGenerate, ArticleID: &article.ID, RequestedBy: store.RequestedBySystem})
	require.Error(t, err)
	var locked *ErrResourceLocked
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, "article", locked.Scope)
}

func TestCreateOrder_RejectsMailReplyKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	_, err := e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindMailReply})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestCheckAvailability_ReportsActiveOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)

	avail, err := e.CheckAvailability(ctx, store.OrderKindQueryFull, &query.ID, nil, nil)
	require.NoError(t, err)
	assert.True(t, avail.Available)

	order, err := e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindQueryFull, QueryID: &query.ID})
	require.NoError(t, err)

	avail, err = e.CheckAvailability(ctx, store.OrderKindQueryFull, &query.ID, nil, nil)
	require.NoError(t, err)
	assert.False(t, avail.Available)
	require.NotNil(t, avail.ActiveOrderID)
	assert.Equal(t, order.ID, *avail.ActiveOrderID)
}

func TestGetOrderLogs_NotFoundForMissingOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	_, err := e.GetOrderLogs(ctx, 99999)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribeOrderStream_ReplaysBacklogThenLive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	query, err := st.GetOrCreateQuery(ctx, "go channels", "en", nil)
	require.NoError(t, err)
	order, err := e.CreateOrder(ctx, CreateOrderRequest{Kind: store.OrderKindQueryFull, QueryID: &query.ID})
	require.NoError(t, err)

	_, err = e.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderStarted, events.OrderStartedPayload{OrderID: order.ID, Kind: store.OrderKindQueryFull})
	require.NoError(t, err)

	backlog, ch, cancel, err := e.SubscribeOrderStream(ctx, order.ID, 0)
	require.NoError(t, err)
	defer cancel()
	require.Len(t, backlog, 1)
	assert.Equal(t, events.TypeOrderStarted, backlog[0].Type)

	_, err = e.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderProgress, events.OrderProgressPayload{OrderID: order.ID, Stage: "spell", Message: "correcting"})
	require.NoError(t, err)

	env := <-ch
	assert.Equal(t, events.TypeOrderProgress, env.Type)
}
