package pipeline

import (
	"context"
	"fmt"

	"github.com/nimbussearch/genengine/internal/queue"
	"github.com/nimbussearch/genengine/internal/store"
)

// Router is the single queue.OrderExecutor the Worker pool drives: it
// dispatches each claimed order to the pipeline that owns its kind (base
// spec §2's "only fixed pipelines, no DAGs" — Router performs that fixed
// dispatch, it is not itself a pipeline).
type Router struct {
	search *SearchGeneration
	mail   *MailReply
}

// NewRouter builds a Router over both pipelines.
func NewRouter(search *SearchGeneration, mail *MailReply) *Router {
	return &Router{search: search, mail: mail}
}

// Execute implements queue.OrderExecutor.
func (r *Router) Execute(ctx context.Context, order *store.Order) *queue.ExecutionResult {
	switch order.Kind {
	case store.OrderKindQueryFull, store.OrderKindIntentRegen, store.OrderKindArticleRegenKeepTitle, store.OrderKindArticleContentGenerate:
		return r.search.Run(ctx, order)
	case store.OrderKindMailReply:
		return r.mail.Run(ctx, order)
	default:
		return failResult(fmt.Errorf("unrecognized order kind %q", order.Kind))
	}
}
