package store

import (
	"encoding/json"
	"time"
)

// Order status values (base spec §3). Transitions:
// queued -> running -> {completed, failed, cancelled}; queued -> {completed,
// failed, cancelled} (FinishOrder, CancelQueuedOrder); running -> queued
// (RequeueOrder, crash recovery).
const (
	OrderStatusQueued    = "queued"
	OrderStatusRunning   = "running"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// Order kinds.
const (
	OrderKindQueryFull              = "query_full"
	OrderKindIntentRegen            = "intent_regen"
	OrderKindArticleRegenKeepTitle  = "article_regen_keep_title"
	OrderKindArticleContentGenerate = "article_content_generate"
	OrderKindMailReply              = "mail_reply"
)

// Order requester values.
const (
	RequestedByUser   = "user"
	RequestedBySystem = "system"
)

// Order is the unit of work dispatched by the Order Scheduler & Worker.
type Order struct {
	ID             int64
	QueryID        *int64
	Kind           string
	IntentID       *int64
	ArticleID      *int64
	Status         string
	RequestedBy    string
	RequestPayload json.RawMessage
	ResultSummary  *string
	ErrorMessage   *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	UpdatedAt      time.Time
}

// Event topics the Dispatcher backs (base spec §4.5: "mail threads use the
// same dispatcher keyed by (topic, entityID) instead of orderID").
const (
	EventTopicOrder = "order"
	EventTopicMail  = "mail"
)

// Event is an immutable append-only log row (base spec §3, §4.5). EntityID
// is an order id (as text) for topic "order", or a mail thread uid for
// topic "mail".
type Event struct {
	ID        int64
	Topic     string
	EntityID  string
	Seq       int
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Log stages and levels (OrderLog, base spec §3).
const (
	LogStageOrder  = "order"
	LogStageSpell  = "spell"
	LogStageIntent = "intent"
	LogStageArticle = "article"
	LogStageMail   = "mail"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// OrderLog is an operator-facing breadcrumb row.
type OrderLog struct {
	ID        int64
	OrderID   int64
	Stage     string
	Level     string
	Message   string
	Meta      json.RawMessage
	CreatedAt time.Time
}

// Lease is the at-most-one-in-flight reservation row (base spec §4.6).
type Lease struct {
	ScopeType      string
	ScopeKey       string
	OwnerOrderID   int64
	LeaseExpiresAt time.Time
}

// RunStats kinds and statuses (article_generation_run, base spec §3).
const (
	RunKindPreview = "preview"
	RunKindContent = "content"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunStats tracks one article-generation attempt for latency estimation.
type RunStats struct {
	ID            int64
	OrderID       *int64
	ArticleID     *int64
	Kind          string
	Status        string
	Attempts      int
	DurationMs    *int64
	LLMDurationMs *int64
	ErrorMessage  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Query is a corrected/canonicalized search query artifact.
type Query struct {
	ID            int64
	Value         string
	Language      string
	OriginalValue *string
	CreatedAt     time.Time
}

// Intent is a disambiguated, filetype-scoped search intent artifact.
type Intent struct {
	ID         int64
	IntentText string
	Filetype   string
	CreatedAt  time.Time
}

// Article statuses.
const (
	ArticleStatusPreviewReady       = "preview_ready"
	ArticleStatusContentGenerating  = "content_generating"
	ArticleStatusContentReady       = "content_ready"
	ArticleStatusContentFailed      = "content_failed"
)

// Article is a generated (or generating) search result artifact.
type Article struct {
	ID        int64
	IntentID  *int64
	Slug      string
	Status    string
	Filetype  string
	Title     *string
	Content   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mail reply roles and statuses.
const (
	MailRoleUser      = "user"
	MailRoleAssistant = "assistant"
	MailRoleSystem    = "system"

	MailReplyStatusPending   = "pending"
	MailReplyStatusStreaming = "streaming"
	MailReplyStatusCompleted = "completed"
	MailReplyStatusError     = "error"
)

// MailThread owns an ordered sequence of MailReply rows.
type MailThread struct {
	UID                          string
	Subject                      *string
	Title                        *string
	UserSetTitle                 bool
	UnreadCount                  int
	ContextSummary               *string
	ContextSummaryTokenCount     int
	ContextLastSummarizedReplyID *int64
	CreatedAt                    time.Time
	UpdatedAt                    time.Time
}

// MailReply is one message within a MailThread.
type MailReply struct {
	ID        int64
	ThreadUID string
	OrderID   *int64
	Role      string
	Status    string
	Content   *string
	Seq       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mail attachment kinds.
const (
	MailAttachmentKindText  = "text"
	MailAttachmentKindImage = "image"
)

// MailAttachment belongs to a MailReply; text attachments use ContentText,
// image attachments use ContentBinary.
type MailAttachment struct {
	ID            int64
	ReplyID       int64
	Kind          string
	Filename      *string
	ContentText   *string
	ContentBinary []byte
	ContentType   *string
	CreatedAt     time.Time
}

// LLM failure triggers (base spec §4.4).
const (
	LLMFailureTriggerTimeout = "timeout"
	LLMFailureTriggerError   = "error"
)

// LLMFailure records one failed attempt made by the Retry/Timeout Executor.
type LLMFailure struct {
	ID               int64
	OrderID          *int64
	Provider         string
	Component        string
	Trigger          string
	Attempt          int
	DurationMs       int64
	ErrorName        *string
	ErrorMessage     *string
	RequestSnapshot  json.RawMessage
	CreatedAt        time.Time
}
