// Package pipeline implements the two domain pipelines (base spec §4.8):
// Search Generation and Mail Reply. Each composes the Provider Gateway,
// Store, Event Dispatcher, Lease Manager, and Retry/Timeout Executor —
// nothing here talks to the provider or the database directly without
// going through those leaf components.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/lease"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/queue"
	"github.com/nimbussearch/genengine/internal/store"
)

// queryLeaseSeconds and intentLeaseSeconds are the scope-lease TTLs
// acquired by the Search Generation Pipeline (base spec §4.8.1 steps 2, 5.1)
// — both comfortably exceed the expected per-stage duration, per §5.
const (
	queryLeaseSeconds  = 60
	intentLeaseSeconds = 60
)

// SearchGeneration implements the Search Generation Pipeline (base spec
// §4.8.1) for orders whose kind is query_full, intent_regen,
// article_regen_keep_title, or article_content_generate (§4.8.3).
type SearchGeneration struct {
	gateway  provider.Gateway
	store    *store.Store
	dispatch *events.Dispatcher
	leases   *lease.Manager
	executor *executor.Executor
}

// NewSearchGeneration builds a SearchGeneration pipeline.
func NewSearchGeneration(gw provider.Gateway, st *store.Store, dispatch *events.Dispatcher, leases *lease.Manager, exec *executor.Executor) *SearchGeneration {
	return &SearchGeneration{gateway: gw, store: st, dispatch: dispatch, leases: leases, executor: exec}
}

// Run executes order to completion, returning its terminal ExecutionResult.
// It never returns an error itself — every failure mode the spec describes
// is captured in the returned result so the Worker can still mark the order
// terminal and release its leases.
func (p *SearchGeneration) Run(ctx context.Context, order *store.Order) *queue.ExecutionResult {
	log := slog.With("order_id", order.ID, "kind", order.Kind)

	switch order.Kind {
	case store.OrderKindArticleContentGenerate:
		return p.runArticleContentGenerate(ctx, order, log)
	default:
		return p.runQueryPipeline(ctx, order, log)
	}
}

func (p *SearchGeneration) runQueryPipeline(ctx context.Context, order *store.Order, log *slog.Logger) *queue.ExecutionResult {
	if order.QueryID == nil {
		return failResult(fmt.Errorf("order has no query_id"))
	}
	row, err := p.store.GetQueryByID(ctx, *order.QueryID)
	if err != nil {
		return failResult(fmt.Errorf("load query: %w", err))
	}

	cleanQuery, filetype := ParseFiletypeOperators(row.Value)

	if order.Kind == store.OrderKindQueryFull {
		ok, owner, err := p.leases.TryAcquire(ctx, order.ID, lease.ScopeQuery, lease.QueryScopeKey(row.ID), queryLeaseSeconds)
		if err != nil {
			return failResult(fmt.Errorf("acquire query lease: %w", err))
		}
		if !ok {
			return failResult(fmt.Errorf("resource locked by order %d", owner))
		}
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderStarted, events.OrderStartedPayload{
		OrderID:  order.ID,
		QueryID:  &row.ID,
		Kind:     order.Kind,
		IntentID: order.IntentID,
	}); err != nil {
		log.Warn("failed to emit order.started", "error", err)
	}
	p.logOrder(ctx, order.ID, store.LogLevelInfo, "pipeline started")

	intents, err := p.resolveIntentPhase(ctx, order, row.ID, row.Language, cleanQuery, filetype, log)
	if err != nil {
		return failResult(err)
	}

	for _, intent := range intents {
		if result := p.runArticlePhase(ctx, order, row.ID, intent, row.Language, cleanQuery, filetype, log); result != nil {
			return result
		}
	}

	return &queue.ExecutionResult{Status: store.OrderStatusCompleted, ResultSummary: fmt.Sprintf("generated %d article(s)", len(intents))}
}

// resolveIntentPhase implements base spec §4.8.1 step 4.
func (p *SearchGeneration) resolveIntentPhase(ctx context.Context, order *store.Order, queryID int64, language, cleanQuery, filetype string, log *slog.Logger) ([]*store.Intent, error) {
	if order.Kind != store.OrderKindQueryFull {
		if order.IntentID == nil {
			return nil, fmt.Errorf("order has no intent_id")
		}
		intent, err := p.store.GetIntent(ctx, *order.IntentID)
		if err != nil {
			return nil, fmt.Errorf("load intent: %w", err)
		}
		return []*store.Intent{intent}, nil
	}

	if err := p.store.ClearQueryIntentLinks(ctx, queryID); err != nil {
		return nil, fmt.Errorf("clear query intent links: %w", err)
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderProgress, events.OrderProgressPayload{
		OrderID: order.ID, QueryID: &queryID, Stage: store.LogStageIntent, Message: "resolving intents",
	}); err != nil {
		log.Warn("failed to emit order.progress", "error", err)
	}

	out, err := executor.Execute(ctx, p.executor, executor.CallMeta{
		OrderID: &order.ID, Provider: "gateway", Component: "resolveIntent",
	}, func(ctx context.Context) (provider.ResolveIntentOutput, error) {
		return p.gateway.ResolveIntent(ctx, provider.ResolveIntentInput{Query: cleanQuery, Language: language, Filetype: filetype})
	})
	if err != nil {
		return nil, fmt.Errorf("resolve intent: %w", err)
	}

	seen := make(map[string]bool, len(out.Items))
	intents := make([]*store.Intent, 0, len(out.Items))
	for _, item := range out.Items {
		key := strings.ToLower(item.Intent)
		if seen[key] {
			continue
		}
		seen[key] = true

		intent, err := p.store.GetOrCreateIntent(ctx, queryID, item.Intent, filetype)
		if err != nil {
			return nil, fmt.Errorf("upsert intent: %w", err)
		}
		intents = append(intents, intent)

		if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeIntentUpserted, events.IntentUpsertedPayload{
			OrderID: order.ID, QueryID: &queryID,
			Intent:   events.IntentRef{ID: intent.ID, Value: intent.IntentText},
			Filetype: filetype,
		}); err != nil {
			log.Warn("failed to emit intent.upserted", "error", err)
		}
	}

	return intents, nil
}

// runArticlePhase implements base spec §4.8.1 step 5 for one intent. It
// returns a non-nil ExecutionResult only on failure, so the caller can fail
// the whole order immediately.
func (p *SearchGeneration) runArticlePhase(ctx context.Context, order *store.Order, queryID int64, intent *store.Intent, language, cleanQuery, filetype string, log *slog.Logger) *queue.ExecutionResult {
	ok, owner, err := p.leases.TryAcquire(ctx, order.ID, lease.ScopeIntent, lease.IntentScopeKey(queryID, intent.ID), intentLeaseSeconds)
	if err != nil {
		return failResult(fmt.Errorf("acquire intent lease: %w", err))
	}
	if !ok {
		return failResult(fmt.Errorf("resource locked by order %d", owner))
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderProgress, events.OrderProgressPayload{
		OrderID: order.ID, QueryID: &queryID, Stage: store.LogStageArticle, Message: fmt.Sprintf("generating article for intent %d", intent.ID),
	}); err != nil {
		log.Warn("failed to emit order.progress", "error", err)
	}

	runID, err := p.store.StartRunStats(ctx, &order.ID, nil, store.RunKindPreview)
	if err != nil {
		return failResult(fmt.Errorf("start run stats: %w", err))
	}
	runStart := time.Now()

	keepTitle := order.Kind == store.OrderKindArticleRegenKeepTitle
	attempts := 0
	out, llmErr := executor.Execute(ctx, p.executor, executor.CallMeta{
		OrderID: &order.ID, Provider: "gateway", Component: "createArticle",
	}, func(ctx context.Context) (provider.CreateArticleOutput, error) {
		attempts++
		return p.gateway.CreateArticle(ctx, provider.CreateArticleInput{
			Query: cleanQuery, Intent: intent.IntentText, Language: language, Filetype: filetype,
		})
	})

	if llmErr != nil {
		var execErr *executor.Error
		if errors.As(llmErr, &execErr) {
			attempts = execErr.LLMAttempts
		}
		if ferr := p.store.FinishRunStats(ctx, runID, store.RunStatusFailed, attempts, time.Since(runStart).Milliseconds(), 0, errPtr(llmErr)); ferr != nil {
			log.Error("failed to finish run stats", "error", ferr)
		}
		return failResult(fmt.Errorf("create article: %w", llmErr))
	}

	article, err := p.upsertArticle(ctx, intent.ID, out.Article, filetype, keepTitle)
	if err != nil {
		if ferr := p.store.FinishRunStats(ctx, runID, store.RunStatusFailed, attempts, time.Since(runStart).Milliseconds(), 0, errPtr(err)); ferr != nil {
			log.Error("failed to finish run stats", "error", ferr)
		}
		return failResult(fmt.Errorf("upsert article: %w", err))
	}

	if err := p.store.FinishRunStats(ctx, runID, store.RunStatusCompleted, attempts, time.Since(runStart).Milliseconds(), 0, nil); err != nil {
		log.Error("failed to finish run stats", "error", err)
	}

	title := out.Article.Title
	if article.Title != nil {
		title = *article.Title
	}
	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeArticleUpserted, events.ArticleUpsertedPayload{
		OrderID: order.ID, QueryID: &queryID, IntentID: intent.ID,
		Article: events.ArticleRef{ID: article.ID, Title: title, Slug: article.Slug},
		Status:  article.Status,
	}); err != nil {
		log.Warn("failed to emit article.upserted", "error", err)
	}

	return nil
}

// upsertArticle implements slug-collision suffixing (base spec §4.8.1 step
// 5.5): "-2", "-3", ... before the filetype extension.
func (p *SearchGeneration) upsertArticle(ctx context.Context, intentID int64, content provider.ArticleContent, filetype string, keepTitle bool) (*store.Article, error) {
	title := &content.Title
	if keepTitle {
		title = nil
	}

	base := content.Slug
	for attempt := 1; attempt <= 20; attempt++ {
		slug := base
		if attempt > 1 {
			slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		article, err := p.store.CreateArticlePreview(ctx, intentID, slug, filetype, title)
		if err == nil {
			if content.Content != "" {
				if cerr := p.store.CompleteArticleContent(ctx, article.ID, content.Content); cerr != nil {
					return nil, cerr
				}
				article.Content = &content.Content
				article.Status = store.ArticleStatusContentReady
			}
			return article, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted slug suffixes for %q", base)
}

// runArticleContentGenerate implements base spec §4.8.3's resolution: the
// Article phase sub-routine run against a single already-previewed article,
// skipping Intent resolution entirely.
func (p *SearchGeneration) runArticleContentGenerate(ctx context.Context, order *store.Order, log *slog.Logger) *queue.ExecutionResult {
	if order.ArticleID == nil {
		return failResult(fmt.Errorf("order has no article_id"))
	}
	article, err := p.store.GetArticle(ctx, *order.ArticleID)
	if err != nil {
		return failResult(fmt.Errorf("load article: %w", err))
	}
	if article.IntentID == nil {
		return failResult(fmt.Errorf("article %d has no intent", article.ID))
	}
	intent, err := p.store.GetIntent(ctx, *article.IntentID)
	if err != nil {
		return failResult(fmt.Errorf("load intent: %w", err))
	}

	ok, owner, err := p.leases.TryAcquire(ctx, order.ID, lease.ScopeArticle, lease.ArticleScopeKey(article.ID), intentLeaseSeconds)
	if err != nil {
		return failResult(fmt.Errorf("acquire article lease: %w", err))
	}
	if !ok {
		return failResult(fmt.Errorf("resource locked by order %d", owner))
	}

	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeOrderStarted, events.OrderStartedPayload{
		OrderID: order.ID, Kind: order.Kind, IntentID: article.IntentID,
	}); err != nil {
		log.Warn("failed to emit order.started", "error", err)
	}

	if err := p.store.SetArticleGenerating(ctx, article.ID); err != nil {
		return failResult(fmt.Errorf("mark article generating: %w", err))
	}

	runID, err := p.store.StartRunStats(ctx, &order.ID, &article.ID, store.RunKindContent)
	if err != nil {
		return failResult(fmt.Errorf("start run stats: %w", err))
	}
	runStart := time.Now()

	attempts := 0
	out, llmErr := executor.Execute(ctx, p.executor, executor.CallMeta{
		OrderID: &order.ID, Provider: "gateway", Component: "createArticle",
	}, func(ctx context.Context) (provider.CreateArticleOutput, error) {
		attempts++
		return p.gateway.CreateArticle(ctx, provider.CreateArticleInput{
			Query: intent.IntentText, Intent: intent.IntentText, Filetype: article.Filetype,
		})
	})

	if llmErr != nil {
		var execErr *executor.Error
		if errors.As(llmErr, &execErr) {
			attempts = execErr.LLMAttempts
		}
		if ferr := p.store.FinishRunStats(ctx, runID, store.RunStatusFailed, attempts, time.Since(runStart).Milliseconds(), 0, errPtr(llmErr)); ferr != nil {
			log.Error("failed to finish run stats", "error", ferr)
		}
		if ferr := p.store.FailArticleContent(ctx, article.ID); ferr != nil {
			log.Error("failed to mark article content_failed", "error", ferr)
		}
		return failResult(fmt.Errorf("create article: %w", llmErr))
	}

	if err := p.store.CompleteArticleContent(ctx, article.ID, out.Article.Content); err != nil {
		return failResult(fmt.Errorf("complete article content: %w", err))
	}
	if err := p.store.FinishRunStats(ctx, runID, store.RunStatusCompleted, attempts, time.Since(runStart).Milliseconds(), 0, nil); err != nil {
		log.Error("failed to finish run stats", "error", err)
	}

	title := intent.IntentText
	if article.Title != nil {
		title = *article.Title
	}
	if _, err := p.dispatch.Emit(ctx, events.TopicOrder, events.OrderEntityID(order.ID), events.TypeArticleUpserted, events.ArticleUpsertedPayload{
		OrderID: order.ID, IntentID: *article.IntentID,
		Article: events.ArticleRef{ID: article.ID, Title: title, Slug: article.Slug},
		Status:  store.ArticleStatusContentReady,
	}); err != nil {
		log.Warn("failed to emit article.upserted", "error", err)
	}

	return &queue.ExecutionResult{Status: store.OrderStatusCompleted, ResultSummary: "article content generated"}
}

func (p *SearchGeneration) logOrder(ctx context.Context, orderID int64, level, message string) {
	if err := p.store.AppendLog(ctx, orderID, store.LogStageOrder, level, message, nil); err != nil {
		slog.Warn("failed to append order log", "order_id", orderID, "error", err)
	}
}

func failResult(err error) *queue.ExecutionResult {
	return &queue.ExecutionResult{Status: store.OrderStatusFailed, Error: err}
}

func errPtr(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
