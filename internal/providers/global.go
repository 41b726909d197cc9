package providers

import (
	"context"
	"time"

	"github.com/aristath/stockdata/internal/records"
)

// RawGlobalFetcher is the upstream call a GlobalMarketAdapter wraps: a
// single, non-retrying round trip for one symbol over a date range,
// already in the normalized quote schema (global-market feeds do not
// need the Asian adapter's unit conversions).
type RawGlobalFetcher interface {
	FetchRaw(ctx context.Context, symbol string, start, end time.Time) ([]records.Quote, error)
}

// GlobalMarketAdapter implements Source for global/US-style symbols
// whose upstream feed already reports shares and decimal ratios
// directly, requiring no unit normalization.
type GlobalMarketAdapter struct {
	name    string
	fetcher RawGlobalFetcher
}

// NewGlobalMarketAdapter builds an adapter over fetcher, identified by
// name for provenance tagging (e.g. "global").
func NewGlobalMarketAdapter(name string, fetcher RawGlobalFetcher) *GlobalMarketAdapter {
	return &GlobalMarketAdapter{name: name, fetcher: fetcher}
}

// Name identifies this adapter as a provenance source.
func (a *GlobalMarketAdapter) Name() string { return a.name }

// Fetch retrieves rows for symbol, stamping every row's Symbol field
// with symbol exactly as the caller passed it.
func (a *GlobalMarketAdapter) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]records.Quote, error) {
	rows, err := a.fetcher.FetchRaw(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Symbol = symbol
	}
	return rows, nil
}
