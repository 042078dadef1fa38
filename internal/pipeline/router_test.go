package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/store"
)

func TestRouter_Execute_DispatchesByOrderKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cache := config.NewRuntimeCache(nil, config.DefaultRetryConfig(), config.DefaultMailConfig(), time.Minute)
	gw := &fakeGateway{}
	search := newSearchPipeline(st, gw)
	mail := newMailPipeline(st, gw, cache)
	router := NewRouter(search, mail)

	query, err := st.GetOrCreateQuery(ctx, "go generics", "en", nil)
	require.NoError(t, err)
	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, QueryID: &query.ID, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)

	result := router.Execute(ctx, order)
	assert.Equal(t, store.OrderStatusCompleted, result.Status)
}

func TestRouter_Execute_RejectsUnknownKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cache := config.NewRuntimeCache(nil, config.DefaultRetryConfig(), config.DefaultMailConfig(), time.Minute)
	gw := &fakeGateway{}
	router := NewRouter(newSearchPipeline(st, gw), newMailPipeline(st, gw, cache))

	// Kind is validated at the database boundary (a CHECK constraint), so an
	// unrecognized kind can only reach Execute via an in-memory order that
	// was never persisted — Execute's default branch must still reject it.
	order := &store.Order{ID: 999, Kind: "something_else", RequestedBy: store.RequestedByUser}

	result := router.Execute(ctx, order)
	assert.Equal(t, store.OrderStatusFailed, result.Status)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "unrecognized order kind")
}
