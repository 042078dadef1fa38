// Package events implements the Event Dispatcher: durable append via Store,
// in-process fan-out to live subscribers, and seq-ordered replay for
// reconnecting clients. Distribution across processes is out of scope (a
// declared Non-goal) — the teacher's Postgres NOTIFY/LISTEN cross-pod
// broadcast is dropped in favor of purely in-memory channels.
package events

import (
	"encoding/json"
	"strconv"
	"time"
)

// OrderEntityID converts an order id into the entity_id string the
// Dispatcher keys order streams by.
func OrderEntityID(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// Topics the Dispatcher backs (base spec §4.5).
const (
	TopicOrder = "order"
	TopicMail  = "mail"
)

// Order stream event types (base spec §4.5/§4.8.1).
const (
	TypeOrderStarted   = "order.started"
	TypeOrderProgress  = "order.progress"
	TypeIntentUpserted = "intent.upserted"
	TypeArticleUpserted = "article.upserted"
	TypeOrderCompleted = "order.completed"
	TypeOrderFailed    = "order.failed"
)

// Mail stream event types (base spec §4.8.2).
const (
	TypeMailJobStarted     = "mail.job.started"
	TypeMailReplyCreated   = "mail.reply.created"
	TypeMailThreadUpdated  = "mail.thread.updated"
	TypeMailUnreadChanged  = "mail.unread.changed"
)

// terminalOrderEventTypes are the event types that close an order stream.
// Mail streams have no terminal event (base spec §4.5).
var terminalOrderEventTypes = map[string]bool{
	TypeOrderCompleted: true,
	TypeOrderFailed:    true,
}

// IsTerminal reports whether eventType ends an order stream.
func IsTerminal(eventType string) bool {
	return terminalOrderEventTypes[eventType]
}

// Envelope is the {seq, entityID, event} tuple handed to a subscriber or
// returned by replay (base spec §6 glossary).
type Envelope struct {
	Topic     string          `json:"topic"`
	EntityID  string          `json:"entity_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
