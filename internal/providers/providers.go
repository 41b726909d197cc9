// Package providers implements the Data Providers contracts (spec
// 4.3): price/fundamental/universe providers, an ordered per-symbol
// fallback source chain, and the unit-normalizing Asian-equity
// adapter. Adapters pass upstream errors through unchanged; Chain.Load
// treats an empty result, or an error that outlasts its retries, as a
// soft failure, advances to the next source, and never returns an
// error.
package providers

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/records"
)

// defaultRetryAttempts and defaultRetryBase match spec 4.3's adapter
// retry policy: 3 attempts, 0.25s base, exponential backoff with full
// jitter.
const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 250 * time.Millisecond
)

// Source fetches raw quote rows for one symbol over [start, end] from
// a single upstream. A Source must not retry internally; retrying is
// the caller's (withRetry's) job, so every Source attempt is a single
// real network round trip.
type Source interface {
	// Name identifies this source for provenance tagging and logging.
	Name() string
	// Fetch returns normalized rows for symbol in [start, end]. Rows
	// carry no Source field yet; the chain stamps it on success.
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]records.Quote, error)
}

// Chain tries each Source in order for a symbol, stopping at the
// first one that returns a non-empty result. Each call is wrapped
// with retry+backoff+jitter; a source exhausting its retries is
// treated as "soft failure" (logged, move on), never propagated.
type Chain struct {
	sources []Source
	log     zerolog.Logger
}

// NewChain builds a fallback Chain over sources in priority order
// (e.g. configured via INDEX_QUOTE_SOURCES).
func NewChain(log zerolog.Logger, sources ...Source) *Chain {
	return &Chain{sources: sources, log: log.With().Str("component", "provider_chain").Logger()}
}

// Load runs the chain for symbol, stamping the winning source's Name
// onto every returned row's Source field (spec 4.3/6).
func (c *Chain) Load(ctx context.Context, symbol string, start, end time.Time) []records.Quote {
	for _, src := range c.sources {
		rows, err := withRetry(ctx, src.Name(), symbol, defaultRetryAttempts, defaultRetryBase, func() ([]records.Quote, error) {
			return src.Fetch(ctx, symbol, start, end)
		})
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("source", src.Name()).Err(err).Msg("source exhausted retries")
			continue
		}
		if len(rows) == 0 {
			continue
		}
		for i := range rows {
			rows[i].Source = src.Name()
		}
		return rows
	}
	return nil
}

// withRetry retries fn up to attempts times with exponential backoff
// plus full jitter, starting at base. It never returns a partial
// result: on persistent failure the caller gets (nil, err) and treats
// it as the source having nothing to offer.
func withRetry(ctx context.Context, source, symbol string, attempts int, base time.Duration, fn func() ([]records.Quote, error)) ([]records.Quote, error) {
	var lastErr error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		rows, err := fn()
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(base)))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, apperr.NewProviderError(source, symbol, lastErr)
}

// PriceDataProvider loads historical OHLCV for a set of symbols over
// [start, end] into a panel-shaped result (spec 4.3).
type PriceDataProvider interface {
	Load(ctx context.Context, symbols []string, start, end time.Time, fields []string) (map[string][]records.Quote, error)
}

// FundamentalDataProvider loads a sparse fundamentals table keyed by
// symbol (spec 4.3).
type FundamentalDataProvider interface {
	Load(ctx context.Context, symbols []string, attributes []string) (map[string]records.Company, error)
}

// UniverseProvider resolves a sequence of symbols from a provider-side
// definition when the caller does not supply an explicit universe
// (spec 4.3, used by the backtest engine's universe-resolution step).
type UniverseProvider interface {
	Call(ctx context.Context, config map[string]string) ([]string, error)
}

// nonFinite reports whether f is NaN or +/-Inf, used by the
// Asian-equity unit normalization in asian.go to map undefined ratios to
// "missing" rather than propagating garbage.
func nonFinite(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
