package events

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

func TestDispatcher_SubscribeReceivesEmit(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st)
	ctx := context.Background()

	ch, unsubscribe := d.Subscribe(TopicOrder, "42")
	defer unsubscribe()

	env, err := d.Emit(ctx, TopicOrder, "42", TypeOrderStarted, OrderStartedPayload{OrderID: 42, Kind: "query_full"})
	require.NoError(t, err)
	assert.Equal(t, 1, env.Seq)

	select {
	case got := <-ch:
		assert.Equal(t, TypeOrderStarted, got.Type)
		assert.Equal(t, 1, got.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestDispatcher_UnsubscribeIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st)

	_, unsubscribe := d.Subscribe(TopicOrder, "1")
	unsubscribe()
	assert.NotPanics(t, unsubscribe)
}

func TestDispatcher_ReplayAfterOrdersBySeq(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st)
	ctx := context.Background()

	_, err := d.Emit(ctx, TopicMail, "thread-1", TypeMailJobStarted, MailJobStartedPayload{ThreadUID: "thread-1", OrderID: 7})
	require.NoError(t, err)
	_, err = d.Emit(ctx, TopicMail, "thread-1", TypeMailReplyCreated, MailReplyCreatedPayload{ThreadUID: "thread-1", ReplyID: 1, Role: "assistant", Status: "completed"})
	require.NoError(t, err)

	envs, err := d.ReplayAfter(ctx, TopicMail, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, TypeMailJobStarted, envs[0].Type)
	assert.Equal(t, TypeMailReplyCreated, envs[1].Type)

	afterFirst, err := d.ReplayAfter(ctx, TopicMail, "thread-1", 1)
	require.NoError(t, err)
	require.Len(t, afterFirst, 1)
	assert.Equal(t, TypeMailReplyCreated, afterFirst[0].Type)
}

func TestDispatcher_SlowSubscriberDoesNotBlockEmit(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st)
	ctx := context.Background()

	ch, unsubscribe := d.Subscribe(TopicOrder, "99")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		_, err := d.Emit(ctx, TopicOrder, "99", TypeOrderProgress, OrderProgressPayload{OrderID: 99, Stage: "article", Message: "working"})
		require.NoError(t, err)
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.LessOrEqual(t, drained, subscriberBuffer)
			return
		}
	}
}

func TestDispatcher_SubscribersRegisteredAfterEmitAreExcluded(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st)
	ctx := context.Background()

	_, err := d.Emit(ctx, TopicOrder, "5", TypeOrderStarted, OrderStartedPayload{OrderID: 5, Kind: "query_full"})
	require.NoError(t, err)

	ch, unsubscribe := d.Subscribe(TopicOrder, "5")
	defer unsubscribe()

	select {
	case <-ch:
		t.Fatal("late subscriber should not receive events emitted before it subscribed")
	case <-time.After(100 * time.Millisecond):
	}
}
