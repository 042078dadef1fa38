package events

// OrderStartedPayload accompanies TypeOrderStarted.
type OrderStartedPayload struct {
	OrderID  int64  `json:"order_id"`
	QueryID  *int64 `json:"query_id,omitempty"`
	Kind     string `json:"kind"`
	IntentID *int64 `json:"intent_id,omitempty"`
}

// OrderProgressPayload accompanies TypeOrderProgress — a free-text progress
// note from whichever pipeline stage is currently running.
type OrderProgressPayload struct {
	OrderID int64  `json:"order_id"`
	QueryID *int64 `json:"query_id,omitempty"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// IntentRef is the nested intent shape carried on IntentUpsertedPayload.
type IntentRef struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// IntentUpsertedPayload accompanies TypeIntentUpserted.
type IntentUpsertedPayload struct {
	OrderID  int64     `json:"order_id"`
	QueryID  *int64    `json:"query_id,omitempty"`
	Intent   IntentRef `json:"intent"`
	Filetype string    `json:"filetype"`
}

// ArticleRef is the nested article shape carried on ArticleUpsertedPayload.
type ArticleRef struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Slug    string  `json:"slug"`
	Summary *string `json:"summary,omitempty"`
}

// ArticleUpsertedPayload accompanies TypeArticleUpserted.
type ArticleUpsertedPayload struct {
	OrderID  int64      `json:"order_id"`
	QueryID  *int64     `json:"query_id,omitempty"`
	IntentID int64      `json:"intent_id"`
	Article  ArticleRef `json:"article"`
	Status   string     `json:"status"`
}

// OrderCompletedPayload accompanies TypeOrderCompleted.
type OrderCompletedPayload struct {
	OrderID       int64  `json:"order_id"`
	QueryID       *int64 `json:"query_id,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
}

// OrderFailedPayload accompanies TypeOrderFailed.
type OrderFailedPayload struct {
	OrderID      int64  `json:"order_id"`
	QueryID      *int64 `json:"query_id,omitempty"`
	ErrorMessage string `json:"error_message"`
}

// MailJobStartedPayload accompanies TypeMailJobStarted.
type MailJobStartedPayload struct {
	ThreadUID string `json:"thread_uid"`
	OrderID   int64  `json:"order_id"`
}

// MailReplyCreatedPayload accompanies TypeMailReplyCreated.
type MailReplyCreatedPayload struct {
	ThreadUID string `json:"thread_uid"`
	ReplyID   int64  `json:"reply_id"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
}

// MailThreadUpdatedPayload accompanies TypeMailThreadUpdated.
type MailThreadUpdatedPayload struct {
	ThreadUID string `json:"thread_uid"`
}

// MailUnreadChangedPayload accompanies TypeMailUnreadChanged.
type MailUnreadChangedPayload struct {
	ThreadUID string `json:"thread_uid"`
	Unread    bool   `json:"unread"`
}
