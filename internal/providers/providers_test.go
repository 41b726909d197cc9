package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockdata/internal/records"
)

type stubSource struct {
	name string
	rows []records.Quote
	err  error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context, string, time.Time, time.Time) ([]records.Quote, error) {
	return s.rows, s.err
}

func TestChain_FallbackSourceOrderHonored(t *testing.T) {
	primary := &stubSource{name: "primary", rows: nil}
	fallbackA := &stubSource{name: "fallback_A", rows: []records.Quote{{Symbol: "AAPL"}}}

	chain := NewChain(zerolog.Nop(), primary, fallbackA)
	rows := chain.Load(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())

	require.Len(t, rows, 1)
	assert.Equal(t, "fallback_A", rows[0].Source, "rows returned by the fallback source must be stamped with its name")
}

func TestChain_StopsAtFirstNonEmptySource(t *testing.T) {
	primary := &stubSource{name: "primary", rows: []records.Quote{{Symbol: "AAPL"}}}
	fallbackA := &stubSource{name: "fallback_A", rows: []records.Quote{{Symbol: "AAPL"}}}
	calledFallback := false
	wrapped := sourceFunc{name: "fallback_A", fetch: func() ([]records.Quote, error) {
		calledFallback = true
		return fallbackA.rows, nil
	}}

	chain := NewChain(zerolog.Nop(), primary, wrapped)
	rows := chain.Load(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())

	require.Len(t, rows, 1)
	assert.Equal(t, "primary", rows[0].Source)
	assert.False(t, calledFallback, "a source after the first non-empty result must not be invoked")
}

func TestChain_AllSourcesEmptyYieldsNil(t *testing.T) {
	primary := &stubSource{name: "primary", rows: nil}
	fallbackA := &stubSource{name: "fallback_A", rows: nil}

	chain := NewChain(zerolog.Nop(), primary, fallbackA)
	rows := chain.Load(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())

	assert.Nil(t, rows)
}

func TestChain_PersistentErrorFallsThroughToNextSource(t *testing.T) {
	failing := &stubSource{name: "primary", err: errors.New("boom")}
	fallbackA := &stubSource{name: "fallback_A", rows: []records.Quote{{Symbol: "MSFT"}}}

	chain := NewChain(zerolog.Nop(), failing, fallbackA)
	rows := chain.Load(context.Background(), "MSFT", time.Now().AddDate(0, -1, 0), time.Now())

	require.Len(t, rows, 1)
	assert.Equal(t, "fallback_A", rows[0].Source)
}

// sourceFunc adapts a bare fetch closure to Source, used where a test
// needs to observe whether a later source was ever called.
type sourceFunc struct {
	name  string
	fetch func() ([]records.Quote, error)
}

func (s sourceFunc) Name() string { return s.name }

func (s sourceFunc) Fetch(context.Context, string, time.Time, time.Time) ([]records.Quote, error) {
	return s.fetch()
}
