package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/store"
)

// Spell correction modes reported back to the caller (base spec §6
// POST /api/query's spellCorrectionMode field).
const (
	SpellCorrectionModeCached = "cached"
	SpellCorrectionModeLive   = "live"
)

// QueryResult is SubmitQuery's return shape.
type QueryResult struct {
	QueryID             int64
	Query               string
	OriginalQuery       string
	CorrectionApplied   bool
	CorrectedQuery      *string
	Language            string
	SpellCorrectionMode string
}

// SubmitQuery runs spell correction (cached first, then a live provider
// call on a cache miss), upserts the canonical (value, language) query
// row, and records the original pre-correction input.
func (e *Engine) SubmitQuery(ctx context.Context, raw, language string) (*QueryResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewBadRequest("query text is required")
	}
	if language == "" {
		return nil, NewBadRequest("language is required")
	}

	corrected, mode, err := e.correct(ctx, raw, language)
	if err != nil {
		return nil, err
	}

	value := raw
	var correctedPtr *string
	applied := corrected != raw
	if applied {
		value = corrected
		correctedPtr = &corrected
	}

	q, err := e.store.GetOrCreateQuery(ctx, value, language, &raw)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		QueryID:             q.ID,
		Query:               value,
		OriginalQuery:       raw,
		CorrectionApplied:   applied,
		CorrectedQuery:      correctedPtr,
		Language:            language,
		SpellCorrectionMode: mode,
	}, nil
}

// correct consults the spell-correction cache before falling back to a
// live provider call, caching the live result for next time.
func (e *Engine) correct(ctx context.Context, raw, language string) (string, string, error) {
	if cached, err := e.store.GetSpellCorrection(ctx, raw, language); err == nil {
		return cached, SpellCorrectionModeCached, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", "", err
	}

	out, err := executor.Execute(ctx, e.executor, executor.CallMeta{
		Provider: "gateway", Component: "correctSpelling",
	}, func(ctx context.Context) (provider.CorrectSpellingOutput, error) {
		return e.gateway.CorrectSpelling(ctx, provider.CorrectSpellingInput{Text: raw, Language: language})
	})
	if err != nil {
		return "", "", err
	}

	if err := e.store.PutSpellCorrection(ctx, raw, language, out.Text); err != nil {
		return "", "", err
	}
	return out.Text, SpellCorrectionModeLive, nil
}
