package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbussearch/genengine/internal/store"
)

func TestAppendMailReply_CreatesThreadAndEnqueuesOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	content := "How do I use channels in Go?"
	res, err := e.AppendMailReply(ctx, "thread-1", nil, &content, nil)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", res.ThreadUID)
	assert.NotZero(t, res.UserReplyID)
	assert.NotZero(t, res.OrderID)

	order, err := st.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderKindMailReply, order.Kind)
	assert.Equal(t, store.OrderStatusQueued, order.Status)

	replies, err := st.ListAllMailReplies(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, store.MailRoleUser, replies[0].Role)
}

func TestAppendMailReply_AppendsToExistingThread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	subject := "Go questions"
	_, err := st.CreateMailThread(ctx, "thread-2", &subject)
	require.NoError(t, err)

	content := "What about select statements?"
	res, err := e.AppendMailReply(ctx, "thread-2", nil, &content, nil)
	require.NoError(t, err)
	assert.Equal(t, "thread-2", res.ThreadUID)

	replies, err := st.ListAllMailReplies(ctx, "thread-2")
	require.NoError(t, err)
	require.Len(t, replies, 1)
}

func TestAppendMailReply_RejectsEmptyContent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	_, err := e.AppendMailReply(ctx, "thread-3", nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestAppendMailReply_WithAttachments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	content := "See attached"
	text := "some notes"
	res, err := e.AppendMailReply(ctx, "thread-4", nil, &content, []MailAttachmentInput{
		{Kind: store.MailAttachmentKindText, ContentText: &text},
	})
	require.NoError(t, err)

	attachments, err := st.ListMailAttachments(ctx, res.UserReplyID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	require.NotNil(t, attachments[0].ContentText)
	assert.Equal(t, "some notes", *attachments[0].ContentText)
}

func TestSubscribeMailStream_NotFoundForMissingThread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	_, _, _, err := e.SubscribeMailStream(ctx, "does-not-exist", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
