package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const mailThreadColumns = `uid, subject, title, user_set_title, unread_count,
	context_summary, context_summary_token_count, context_last_summarized_reply_id,
	created_at, updated_at`

func scanMailThread(row *sql.Row) (*MailThread, error) {
	var t MailThread
	err := row.Scan(&t.UID, &t.Subject, &t.Title, &t.UserSetTitle, &t.UnreadCount,
		&t.ContextSummary, &t.ContextSummaryTokenCount, &t.ContextLastSummarizedReplyID,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan mail thread: %w", err)
	}
	return &t, nil
}

// CreateMailThread inserts a new thread keyed by uid (an external
// google/uuid string minted by the caller).
func (s *Store) CreateMailThread(ctx context.Context, uid string, subject *string) (*MailThread, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO mail_threads (uid, subject) VALUES ($1, $2)
		RETURNING `+mailThreadColumns,
		uid, subject,
	)
	t, err := scanMailThread(row)
	if err != nil {
		return nil, fmt.Errorf("store: create mail thread: %w", err)
	}
	return t, nil
}

// GetMailThread loads a thread by uid.
func (s *Store) GetMailThread(ctx context.Context, uid string) (*MailThread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mailThreadColumns+` FROM mail_threads WHERE uid = $1`, uid,
	)
	t, err := scanMailThread(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get mail thread: %w", err)
	}
	return t, nil
}

// SetMailThreadTitle derives a title for a thread that has none and whose
// user never set one explicitly (base spec §4.8.2 step 9).
func (s *Store) SetMailThreadTitle(ctx context.Context, uid, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mail_threads SET title = $1, updated_at = now()
		WHERE uid = $2 AND user_set_title = false AND (title IS NULL OR title = '')`,
		title, uid,
	)
	if err != nil {
		return fmt.Errorf("store: set mail thread title: %w", err)
	}
	return nil
}

// SetUserMailThreadTitle sets a thread's title on the user's explicit
// request, marking user_set_title so SetMailThreadTitle's auto-derived
// title never overwrites it afterward.
func (s *Store) SetUserMailThreadTitle(ctx context.Context, uid, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mail_threads SET title = $1, user_set_title = true, updated_at = now()
		WHERE uid = $2`,
		title, uid,
	)
	if err != nil {
		return fmt.Errorf("store: set user mail thread title: %w", err)
	}
	return nil
}

// PutMailThreadContext upserts the sliding-window summary used once a
// thread's estimated token count crosses the configured trigger (base spec
// §4.8.2 step 5).
func (s *Store) PutMailThreadContext(ctx context.Context, uid, summary string, tokenCount int, lastSummarizedReplyID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mail_threads
		SET context_summary = $1, context_summary_token_count = $2,
		    context_last_summarized_reply_id = $3, updated_at = now()
		WHERE uid = $4`,
		summary, tokenCount, lastSummarizedReplyID, uid,
	)
	if err != nil {
		return fmt.Errorf("store: put mail thread context: %w", err)
	}
	return nil
}

// IncrementMailUnread bumps a thread's unread_count, emitted alongside
// `mail.unread.changed` whenever an assistant reply is appended.
func (s *Store) IncrementMailUnread(ctx context.Context, uid string, delta int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE mail_threads SET unread_count = unread_count + $1, updated_at = now()
		WHERE uid = $2
		RETURNING unread_count`,
		delta, uid,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: increment mail unread: %w", err)
	}
	return count, nil
}

// AppendMailReply inserts the next reply in threadUID, assigning seq as
// max(seq)+1 under the same transaction, mirroring AppendEvent's density
// guarantee.
func (s *Store) AppendMailReply(ctx context.Context, threadUID string, orderID *int64, role, status string, content *string) (*MailReply, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: append mail reply: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var nextSeq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM mail_replies WHERE thread_uid = $1`, threadUID,
	).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("store: append mail reply: next seq: %w", err)
	}

	var r MailReply
	err = tx.QueryRowContext(ctx, `
		INSERT INTO mail_replies (thread_uid, order_id, role, status, content, seq)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, thread_uid, order_id, role, status, content, seq, created_at, updated_at`,
		threadUID, orderID, role, status, content, nextSeq,
	).Scan(&r.ID, &r.ThreadUID, &r.OrderID, &r.Role, &r.Status, &r.Content, &r.Seq, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: append mail reply: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE mail_threads SET updated_at = now() WHERE uid = $1`, threadUID); err != nil {
		return nil, fmt.Errorf("store: append mail reply: touch thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: append mail reply: commit: %w", err)
	}
	return &r, nil
}

// UpdateMailReplyStatus transitions a reply's status (pending -> streaming
// -> completed/error) and optionally sets its final content.
func (s *Store) UpdateMailReplyStatus(ctx context.Context, id int64, status string, content *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mail_replies SET status = $1, content = COALESCE($2, content), updated_at = now()
		WHERE id = $3`,
		status, content, id,
	)
	if err != nil {
		return fmt.Errorf("store: update mail reply status: %w", err)
	}
	return nil
}

// ListMailReplies returns a thread's replies in seq order, the context
// window the Mail Reply Pipeline trims to MailConfig.ContextMaxMessages.
func (s *Store) ListMailReplies(ctx context.Context, threadUID string, limit int) ([]*MailReply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_uid, order_id, role, status, content, seq, created_at, updated_at
		FROM mail_replies WHERE thread_uid = $1 ORDER BY seq DESC LIMIT $2`,
		threadUID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list mail replies: %w", err)
	}
	defer rows.Close()

	var out []*MailReply
	for rows.Next() {
		var r MailReply
		if err := rows.Scan(&r.ID, &r.ThreadUID, &r.OrderID, &r.Role, &r.Status, &r.Content, &r.Seq, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan mail reply: %w", err)
		}
		out = append(out, &r)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// ListAllMailReplies returns every reply in a thread, ascending by seq —
// used for the full-history token estimate (base spec §4.8.2 step 5), as
// opposed to ListMailReplies' sliding context window.
func (s *Store) ListAllMailReplies(ctx context.Context, threadUID string) ([]*MailReply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_uid, order_id, role, status, content, seq, created_at, updated_at
		FROM mail_replies WHERE thread_uid = $1 ORDER BY seq ASC`, threadUID)
	if err != nil {
		return nil, fmt.Errorf("store: list all mail replies: %w", err)
	}
	defer rows.Close()

	var out []*MailReply
	for rows.Next() {
		var r MailReply
		if err := rows.Scan(&r.ID, &r.ThreadUID, &r.OrderID, &r.Role, &r.Status, &r.Content, &r.Seq, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan mail reply: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// AddMailAttachment attaches a text or image artifact to replyID.
func (s *Store) AddMailAttachment(ctx context.Context, a *MailAttachment) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mail_attachments (reply_id, kind, filename, content_text, content_binary, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.ReplyID, a.Kind, a.Filename, a.ContentText, a.ContentBinary, a.ContentType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: add mail attachment: %w", err)
	}
	return id, nil
}

// ListMailAttachments returns every attachment on a reply.
func (s *Store) ListMailAttachments(ctx context.Context, replyID int64) ([]*MailAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reply_id, kind, filename, content_text, content_binary, content_type, created_at
		FROM mail_attachments WHERE reply_id = $1 ORDER BY id ASC`, replyID)
	if err != nil {
		return nil, fmt.Errorf("store: list mail attachments: %w", err)
	}
	defer rows.Close()

	var out []*MailAttachment
	for rows.Next() {
		var a MailAttachment
		if err := rows.Scan(&a.ID, &a.ReplyID, &a.Kind, &a.Filename, &a.ContentText, &a.ContentBinary, &a.ContentType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan mail attachment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
