package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/pipeline"
	"github.com/nimbussearch/genengine/internal/store"
)

// MailAttachmentInput is one attachment on an incoming user reply.
type MailAttachmentInput struct {
	Kind          string
	Filename      *string
	ContentText   *string
	ContentBinary []byte
	ContentType   *string
}

// MailReplyResult is AppendMailReply's return shape, mirroring base spec
// §6's POST /api/mail/thread{,/reply} response.
type MailReplyResult struct {
	ThreadUID   string
	UserReplyID int64
	OrderID     int64
}

// AppendMailReply records a user's message on threadUID (creating the
// thread on first use, with subject as its subject, which may be nil) and
// enqueues the mail_reply
// order that will generate the assistant's response. Mail orders have no
// query/intent/article scope to conflict over, so — unlike CreateOrder —
// nothing here ever returns ErrResourceLocked.
func (e *Engine) AppendMailReply(ctx context.Context, threadUID string, subject, content *string, attachments []MailAttachmentInput) (*MailReplyResult, error) {
	if threadUID == "" {
		return nil, NewBadRequest("thread uid is required")
	}
	if content == nil || *content == "" {
		return nil, NewBadRequest("reply content is required")
	}

	if _, err := e.store.GetMailThread(ctx, threadUID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if _, err := e.store.CreateMailThread(ctx, threadUID, subject); err != nil {
			return nil, err
		}
	}

	reply, err := e.store.AppendMailReply(ctx, threadUID, nil, store.MailRoleUser, store.MailReplyStatusCompleted, content)
	if err != nil {
		return nil, err
	}

	for _, a := range attachments {
		if _, err := e.store.AddMailAttachment(ctx, &store.MailAttachment{
			ReplyID: reply.ID, Kind: a.Kind, Filename: a.Filename,
			ContentText: a.ContentText, ContentBinary: a.ContentBinary, ContentType: a.ContentType,
		}); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(pipeline.MailReplyRequest{ThreadUID: threadUID, UserReplyID: reply.ID})
	if err != nil {
		return nil, fmt.Errorf("engine: marshal mail reply request: %w", err)
	}

	orderID, err := e.store.CreateOrder(ctx, &store.Order{
		Kind:           store.OrderKindMailReply,
		RequestedBy:    store.RequestedByUser,
		RequestPayload: payload,
	})
	if err != nil {
		return nil, err
	}

	return &MailReplyResult{ThreadUID: threadUID, UserReplyID: reply.ID, OrderID: orderID}, nil
}

// SubscribeMailStream mirrors SubscribeOrderStream for a mail thread's
// event stream, keyed by thread uid instead of an order id (base spec
// §4.5: "mail threads use the same dispatcher keyed by (topic, entityID)").
func (e *Engine) SubscribeMailStream(ctx context.Context, threadUID string, afterSeq int) ([]events.Envelope, <-chan events.Envelope, func(), error) {
	if _, err := e.store.GetMailThread(ctx, threadUID); err != nil {
		return nil, nil, nil, err
	}
	backlog, err := e.dispatch.ReplayAfter(ctx, events.TopicMail, threadUID, afterSeq)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := e.dispatch.Subscribe(events.TopicMail, threadUID)
	return backlog, ch, cancel, nil
}
