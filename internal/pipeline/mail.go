package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/queue"
	"github.com/nimbussearch/genengine/internal/store"
)

// maxDerivedTitleLen bounds a thread title derived from a user's content
// (base spec §4.8.2 step 9).
const maxDerivedTitleLen = 64

// MailReplyRequest is the shape of an order's request_payload for
// kind=mail_reply. Model selection (base spec §4.8.2 step 3) is not
// represented here: the Provider Gateway capability set (§4.2) takes no
// model parameter, so there is nothing in this repository's Gateway
// interface for a requested model to influence.
type MailReplyRequest struct {
	ThreadUID   string `json:"thread_uid"`
	UserReplyID int64  `json:"user_reply_id"`
}

// MailReply implements the Mail Reply Pipeline (base spec §4.8.2).
type MailReply struct {
	gateway  provider.Gateway
	store    *store.Store
	dispatch *events.Dispatcher
	executor *executor.Executor
	cache    *config.RuntimeCache
}

// NewMailReply builds a MailReply pipeline.
func NewMailReply(gw provider.Gateway, st *store.Store, dispatch *events.Dispatcher, exec *executor.Executor, cache *config.RuntimeCache) *MailReply {
	return &MailReply{gateway: gw, store: st, dispatch: dispatch, executor: exec, cache: cache}
}

// Run executes order (kind=mail_reply) to completion.
func (p *MailReply) Run(ctx context.Context, order *store.Order) *queue.ExecutionResult {
	log := slog.With("order_id", order.ID)

	var req MailReplyRequest
	if err := json.Unmarshal(order.RequestPayload, &req); err != nil {
		return failResult(fmt.Errorf("decode mail reply request: %w", err))
	}
	if req.ThreadUID == "" {
		return failResult(fmt.Errorf("mail reply request has no thread_uid"))
	}

	thread, err := p.store.GetMailThread(ctx, req.ThreadUID)
	if err != nil {
		return failResult(fmt.Errorf("load mail thread: %w", err))
	}
	history, err := p.store.ListAllMailReplies(ctx, req.ThreadUID)
	if err != nil {
		return failResult(fmt.Errorf("load mail history: %w", err))
	}
	if len(history) == 0 {
		return failResult(fmt.Errorf("mail thread %s has no replies", req.ThreadUID))
	}

	var latestUser *store.MailReply
	for _, r := range history {
		if r.ID == req.UserReplyID {
			latestUser = r
			break
		}
	}
	if latestUser == nil {
		return failResult(fmt.Errorf("mail thread %s has no reply %d", req.ThreadUID, req.UserReplyID))
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicMail, req.ThreadUID, events.TypeMailJobStarted, events.MailJobStartedPayload{
		ThreadUID: req.ThreadUID, OrderID: order.ID,
	}); err != nil {
		log.Warn("failed to emit mail.job.started", "error", err)
	}

	snap := p.cache.Get(ctx)

	window := slidingWindow(history, snap.MailMaxMessages)

	summary := ""
	if thread.ContextSummary != nil {
		summary = *thread.ContextSummary
	}
	if shouldSummarize(history, thread, snap.MailSummaryTriggerTokenCount) {
		sumOut, err := executor.Execute(ctx, p.executor, executor.CallMeta{
			OrderID: &order.ID, Provider: "gateway", Component: "summarize",
		}, func(ctx context.Context) (provider.SummarizeOutput, error) {
			return p.gateway.Summarize(ctx, provider.SummarizeInput{Messages: toSummarizeMessages(history)})
		})
		if err != nil {
			return failResult(fmt.Errorf("summarize thread: %w", err))
		}
		summary = sumOut.Summary
		tokenCount := estimateTokens(history)
		if err := p.store.PutMailThreadContext(ctx, req.ThreadUID, summary, tokenCount, history[len(history)-1].ID); err != nil {
			log.Warn("failed to persist thread context summary", "error", err)
		}
	}

	policy := provider.AttachmentPolicy{MaxCount: snap.MailAttachmentsMaxCount, MaxTextChars: snap.MailAttachmentsMaxTextChars}

	replyOut, err := executor.Execute(ctx, p.executor, executor.CallMeta{
		OrderID: &order.ID, Provider: "gateway", Component: "generateReply",
	}, func(ctx context.Context) (provider.GenerateReplyOutput, error) {
		return p.gateway.GenerateReply(ctx, provider.GenerateReplyInput{
			History:          toSummarizeMessages(window),
			Summary:          summary,
			UserInput:        contentOf(latestUser),
			AttachmentPolicy: policy,
		})
	})
	if err != nil {
		return failResult(fmt.Errorf("generate reply: %w", err))
	}

	assistantReply, err := p.store.AppendMailReply(ctx, req.ThreadUID, &order.ID, store.MailRoleAssistant, store.MailReplyStatusCompleted, &replyOut.Content)
	if err != nil {
		return failResult(fmt.Errorf("append assistant reply: %w", err))
	}

	for _, att := range replyOut.Attachments {
		if err := p.persistAttachment(ctx, order.ID, assistantReply.ID, att); err != nil {
			return failResult(fmt.Errorf("persist attachment: %w", err))
		}
	}

	if !thread.UserSetTitle && emptyTitle(thread.Title) {
		if title := deriveTitle(contentOf(latestUser)); title != "" {
			if err := p.store.SetMailThreadTitle(ctx, req.ThreadUID, title); err != nil {
				log.Warn("failed to set derived thread title", "error", err)
			}
		}
	}

	unread, err := p.store.IncrementMailUnread(ctx, req.ThreadUID, 1)
	if err != nil {
		log.Warn("failed to increment unread count", "error", err)
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicMail, req.ThreadUID, events.TypeMailReplyCreated, events.MailReplyCreatedPayload{
		ThreadUID: req.ThreadUID, ReplyID: assistantReply.ID, Role: store.MailRoleAssistant,
		Status: store.MailReplyStatusCompleted, Content: replyOut.Content,
	}); err != nil {
		log.Warn("failed to emit mail.reply.created", "error", err)
	}
	if _, err := p.dispatch.Emit(ctx, events.TopicMail, req.ThreadUID, events.TypeMailThreadUpdated, events.MailThreadUpdatedPayload{
		ThreadUID: req.ThreadUID,
	}); err != nil {
		log.Warn("failed to emit mail.thread.updated", "error", err)
	}
	if _, err := p.dispatch.Emit(ctx, events.TopicMail, req.ThreadUID, events.TypeMailUnreadChanged, events.MailUnreadChangedPayload{
		ThreadUID: req.ThreadUID, Unread: unread > 0,
	}); err != nil {
		log.Warn("failed to emit mail.unread.changed", "error", err)
	}

	return &queue.ExecutionResult{Status: store.OrderStatusCompleted, ResultSummary: "reply generated"}
}

func (p *MailReply) persistAttachment(ctx context.Context, orderID, replyID int64, att provider.ReplyAttachment) error {
	switch att.Kind {
	case provider.ReplyAttachmentText:
		mime := "text/plain; charset=utf-8"
		_, err := p.store.AddMailAttachment(ctx, &store.MailAttachment{
			ReplyID: replyID, Kind: store.MailAttachmentKindText, ContentText: &att.Text, ContentType: &mime,
		})
		return err
	case provider.ReplyAttachmentImage:
		quality := provider.ImageQualityNormal
		imgOut, err := executor.Execute(ctx, p.executor, executor.CallMeta{
			OrderID: &orderID, Provider: "gateway", Component: "createImage",
		}, func(ctx context.Context) (provider.CreateImageOutput, error) {
			return p.gateway.CreateImage(ctx, provider.CreateImageInput{Description: att.Text, Quality: quality})
		})
		if err != nil {
			return fmt.Errorf("create image: %w", err)
		}
		_, err = p.store.AddMailAttachment(ctx, &store.MailAttachment{
			ReplyID: replyID, Kind: store.MailAttachmentKindImage, ContentBinary: imgOut.Binary, ContentType: &imgOut.MimeType,
		})
		return err
	default:
		return fmt.Errorf("unrecognized attachment kind %q", att.Kind)
	}
}

func contentOf(r *store.MailReply) string {
	if r == nil || r.Content == nil {
		return ""
	}
	return *r.Content
}

func emptyTitle(title *string) bool {
	return title == nil || strings.TrimSpace(*title) == ""
}

// slidingWindow returns the last n replies (or all of them if n <= 0 or
// there are fewer than n), base spec §4.8.2 step 4.
func slidingWindow(history []*store.MailReply, n int) []*store.MailReply {
	if n <= 0 || n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}

func toSummarizeMessages(replies []*store.MailReply) []provider.SummarizeMessage {
	out := make([]provider.SummarizeMessage, 0, len(replies))
	for _, r := range replies {
		out = append(out, provider.SummarizeMessage{Role: r.Role, Content: contentOf(r)})
	}
	return out
}

// estimateTokens implements base spec §4.8.2 step 5's token estimate:
// ceil(sum(reply.content.length)/4) over the full history.
func estimateTokens(history []*store.MailReply) int {
	chars := 0
	for _, r := range history {
		chars += len(contentOf(r))
	}
	return (chars + 3) / 4
}

// shouldSummarize reports whether the thread's estimated token count has
// crossed the configured trigger and the existing summary (if any) does not
// already cover the latest reply.
func shouldSummarize(history []*store.MailReply, thread *store.MailThread, triggerTokens int) bool {
	if triggerTokens <= 0 || len(history) == 0 {
		return false
	}
	if estimateTokens(history) < triggerTokens {
		return false
	}
	latestID := history[len(history)-1].ID
	return thread.ContextLastSummarizedReplyID == nil || *thread.ContextLastSummarizedReplyID != latestID
}

// deriveTitle implements base spec §4.8.2 step 9: strip markdown meta,
// collapse whitespace, cap at maxDerivedTitleLen with an ellipsis suffix if
// truncated.
func deriveTitle(content string) string {
	stripped := stripMarkdown(content)
	collapsed := strings.Join(strings.Fields(stripped), " ")
	if collapsed == "" {
		return ""
	}
	runes := []rune(collapsed)
	if len(runes) <= maxDerivedTitleLen {
		return collapsed
	}
	return strings.TrimRightFunc(string(runes[:maxDerivedTitleLen-1]), unicode.IsSpace) + "…"
}

// stripMarkdown removes the handful of markdown meta characters that would
// otherwise leak into a derived plain-text title.
func stripMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '#', '*', '_', '`', '>':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
