package engine

import (
	"context"

	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/store"
)

// Availability is CheckAvailability's result, mirroring base spec §6's
// GET /api/orders/availability response shape.
type Availability struct {
	Available     bool
	Reason        string
	ActiveOrderID *int64
	Scope         string
}

// CreateOrderRequest is CreateOrder's input.
type CreateOrderRequest struct {
	Kind        string
	QueryID     *int64
	IntentID    *int64
	ArticleID   *int64
	RequestedBy string
	Payload     []byte
}

// scopeFor resolves the conflict-check scope for an order kind, per base
// spec §4.6's "Conflict rules enforced at order acceptance": query_full
// orders occupy the whole query; per-intent kinds occupy just (query,
// intent); article_content_generate (this repo's Open-Question resolution,
// base spec §4.8.3) occupies just the one article.
func scopeFor(kind string, queryID, intentID, articleID *int64) (scope string, err error) {
	switch kind {
	case store.OrderKindQueryFull:
		if queryID == nil {
			return "", NewBadRequest("query_full requires queryId")
		}
		return "query", nil
	case store.OrderKindIntentRegen, store.OrderKindArticleRegenKeepTitle:
		if queryID == nil || intentID == nil {
			return "", NewBadRequest(kind + " requires queryId and intentId")
		}
		return "intent", nil
	case store.OrderKindArticleContentGenerate:
		if articleID == nil {
			return "", NewBadRequest("article_content_generate requires articleId")
		}
		return "article", nil
	case store.OrderKindMailReply:
		return "", NewBadRequest("mail_reply orders are created through AppendMailReply, not CreateOrder")
	default:
		return "", NewBadRequest("unrecognized order kind " + kind)
	}
}

// findBlockingOrder returns the active order (if any) that conflicts with
// a new order of kind against the named scope.
func (e *Engine) findBlockingOrder(ctx context.Context, kind string, queryID, intentID, articleID *int64) (*store.Order, string, error) {
	scope, err := scopeFor(kind, queryID, intentID, articleID)
	if err != nil {
		return nil, "", err
	}

	switch scope {
	case "query":
		blocking, err := e.store.FindActiveOrderForQuery(ctx, *queryID)
		return blocking, scope, err
	case "intent":
		// A query_full order for the same query blocks every per-intent
		// order, not just ones for the same intent.
		blocking, err := e.store.FindActiveOrderForQuery(ctx, *queryID)
		if err != nil {
			return nil, scope, err
		}
		if blocking != nil && blocking.Kind == store.OrderKindQueryFull {
			return blocking, "query", nil
		}
		blocking, err = e.store.FindActiveOrderForIntent(ctx, *queryID, *intentID)
		return blocking, scope, err
	case "article":
		blocking, err := e.store.FindActiveOrderForArticle(ctx, *articleID)
		return blocking, scope, err
	default:
		return nil, scope, nil
	}
}

// CheckAvailability reports whether a new order of kind could be accepted
// right now, without creating one.
func (e *Engine) CheckAvailability(ctx context.Context, kind string, queryID, intentID, articleID *int64) (*Availability, error) {
	blocking, scope, err := e.findBlockingOrder(ctx, kind, queryID, intentID, articleID)
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		return &Availability{Available: false, Reason: "resource locked", ActiveOrderID: &blocking.ID, Scope: scope}, nil
	}
	return &Availability{Available: true, Scope: scope}, nil
}

// CreateOrder enqueues a new order after confirming its scope is free. The
// order sits in status=queued until the Worker claims it — order.started is
// emitted by the pipeline at that point (base spec §6 example 1), not here.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*store.Order, error) {
	if req.RequestedBy == "" {
		req.RequestedBy = store.RequestedByUser
	}

	blocking, scope, err := e.findBlockingOrder(ctx, req.Kind, req.QueryID, req.IntentID, req.ArticleID)
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		return nil, &ErrResourceLocked{ActiveOrderID: blocking.ID, Scope: scope}
	}

	if req.QueryID != nil {
		if _, err := e.store.GetQueryByID(ctx, *req.QueryID); err != nil {
			return nil, err
		}
	}
	if req.IntentID != nil {
		if _, err := e.store.GetIntent(ctx, *req.IntentID); err != nil {
			return nil, err
		}
	}
	if req.ArticleID != nil {
		if _, err := e.store.GetArticle(ctx, *req.ArticleID); err != nil {
			return nil, err
		}
	}

	id, err := e.store.CreateOrder(ctx, &store.Order{
		Kind: req.Kind, QueryID: req.QueryID, IntentID: req.IntentID, ArticleID: req.ArticleID,
		RequestedBy: req.RequestedBy, RequestPayload: req.Payload,
	})
	if err != nil {
		return nil, err
	}

	return e.store.GetOrder(ctx, id)
}

// GetOrder loads an order by id, surfacing store.ErrNotFound untouched.
func (e *Engine) GetOrder(ctx context.Context, id int64) (*store.Order, error) {
	return e.store.GetOrder(ctx, id)
}

// ListOrders returns orders matching filter.
func (e *Engine) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*store.Order, error) {
	return e.store.ListOrders(ctx, filter)
}

// GetOrderLogs returns an order's operator-facing log breadcrumbs,
// surfacing store.ErrNotFound when the order itself doesn't exist.
func (e *Engine) GetOrderLogs(ctx context.Context, id int64) ([]*store.OrderLog, error) {
	if _, err := e.store.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListLogs(ctx, id)
}

// SubscribeOrderStream returns a live channel of an order's events plus a
// cancel function, after replaying everything with seq > afterSeq so a
// reconnecting client never misses an event (base spec §4.5/§6). The
// caller is responsible for draining replayed events before reading from
// the returned channel, and for calling the cancel func when done.
func (e *Engine) SubscribeOrderStream(ctx context.Context, id int64, afterSeq int) ([]events.Envelope, <-chan events.Envelope, func(), error) {
	if _, err := e.store.GetOrder(ctx, id); err != nil {
		return nil, nil, nil, err
	}
	backlog, err := e.dispatch.ReplayAfter(ctx, events.TopicOrder, events.OrderEntityID(id), afterSeq)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := e.dispatch.Subscribe(events.TopicOrder, events.OrderEntityID(id))
	return backlog, ch, cancel, nil
}

