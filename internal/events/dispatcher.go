package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nimbussearch/genengine/internal/store"
)

// subscriberBuffer bounds how many envelopes a slow subscriber can lag
// behind before Emit starts dropping for it. A dropped subscriber must
// reconnect and call ReplayAfter to catch up — it never blocks Emit.
const subscriberBuffer = 64

type subscriber struct {
	id int64
	ch chan Envelope
}

// Dispatcher is the Event Dispatcher (base spec §4.5): durable append via
// Store, in-process fan-out to live subscribers, and ordered replay.
// Mail threads reuse the same implementation keyed by (TopicMail, threadUID)
// instead of (TopicOrder, orderID).
type Dispatcher struct {
	store *store.Store

	mu      sync.Mutex
	subs    map[string][]*subscriber
	nextID  int64
}

// NewDispatcher builds a Dispatcher backed by st.
func NewDispatcher(st *store.Store) *Dispatcher {
	return &Dispatcher{
		store: st,
		subs:  make(map[string][]*subscriber),
	}
}

func streamKey(topic, entityID string) string {
	return topic + ":" + entityID
}

// Subscribe registers a new listener for (topic, entityID). Delivery is
// best-effort: a subscriber that falls behind has further envelopes dropped
// rather than blocking Emit, mirroring the teacher's ConnectionManager
// snapshot-then-send pattern. Unsubscribe (the returned func) is idempotent.
func (d *Dispatcher) Subscribe(topic, entityID string) (<-chan Envelope, func()) {
	key := streamKey(topic, entityID)
	sub := &subscriber{ch: make(chan Envelope, subscriberBuffer)}

	d.mu.Lock()
	d.nextID++
	sub.id = d.nextID
	d.subs[key] = append(d.subs[key], sub)
	d.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			d.mu.Lock()
			list := d.subs[key]
			for i, s := range list {
				if s.id == sub.id {
					d.subs[key] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(d.subs[key]) == 0 {
				delete(d.subs, key)
			}
			d.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, unsubscribe
}

// Emit persists {topic, entityID, next_seq, type, payload} transactionally
// via Store, then snapshots current subscribers for (topic, entityID) and
// hands each one the envelope synchronously and non-blockingly. Subscribers
// registered after the persist completes are excluded from this delivery —
// they catch up via ReplayAfter instead.
func (d *Dispatcher) Emit(ctx context.Context, topic, entityID, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}

	ev, err := d.store.AppendEvent(ctx, topic, entityID, eventType, raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: emit: %w", err)
	}

	env := Envelope{
		Topic:     topic,
		EntityID:  entityID,
		Seq:       ev.Seq,
		Type:      ev.Type,
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt,
	}

	key := streamKey(topic, entityID)
	d.mu.Lock()
	snapshot := append([]*subscriber(nil), d.subs[key]...)
	d.mu.Unlock()

	for _, sub := range snapshot {
		select {
		case sub.ch <- env:
		default:
			// subscriber is behind; drop rather than block Emit.
		}
	}

	return env, nil
}

// ReplayAfter returns every event for (topic, entityID) with seq > afterSeq,
// ascending. Payloads that are not valid JSON are skipped silently —
// tolerant replay, mirroring the teacher's truncated-payload catchup
// tolerance in its connection manager.
func (d *Dispatcher) ReplayAfter(ctx context.Context, topic, entityID string, afterSeq int) ([]Envelope, error) {
	evs, err := d.store.EventsAfter(ctx, topic, entityID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("events: replay after: %w", err)
	}

	out := make([]Envelope, 0, len(evs))
	for _, ev := range evs {
		if !json.Valid(ev.Payload) {
			continue
		}
		out = append(out, Envelope{
			Topic:     ev.Topic,
			EntityID:  ev.EntityID,
			Seq:       ev.Seq,
			Type:      ev.Type,
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out, nil
}
