package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbussearch/genengine/internal/provider"
)

func TestSubmitQuery_NoCorrectionNeeded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	res, err := e.SubmitQuery(ctx, "go channels", "en")
	require.NoError(t, err)
	assert.False(t, res.CorrectionApplied)
	assert.Nil(t, res.CorrectedQuery)
	assert.Equal(t, SpellCorrectionModeLive, res.SpellCorrectionMode)
	assert.Equal(t, "go channels", res.Query)
}

func TestSubmitQuery_LiveCorrectionThenCached(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	calls := 0
	gw := &fakeGateway{correctSpelling: func(in provider.CorrectSpellingInput) (provider.CorrectSpellingOutput, error) {
		calls++
		return provider.CorrectSpellingOutput{Text: "go channels"}, nil
	}}
	e := newTestEngine(st, gw)

	res, err := e.SubmitQuery(ctx, "go chanels", "en")
	require.NoError(t, err)
	assert.True(t, res.CorrectionApplied)
	require.NotNil(t, res.CorrectedQuery)
	assert.Equal(t, "go channels", *res.CorrectedQuery)
	assert.Equal(t, SpellCorrectionModeLive, res.SpellCorrectionMode)
	assert.Equal(t, 1, calls)

	res2, err := e.SubmitQuery(ctx, "go chanels", "en")
	require.NoError(t, err)
	assert.Equal(t, SpellCorrectionModeCached, res2.SpellCorrectionMode)
	assert.Equal(t, 1, calls, "second submit must hit the cache, not the gateway again")
}

func TestSubmitQuery_RejectsEmptyInput(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(st, &fakeGateway{})

	_, err := e.SubmitQuery(ctx, "   ", "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = e.SubmitQuery(ctx, "go channels", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}
