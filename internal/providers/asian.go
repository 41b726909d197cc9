package providers

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stockdata/internal/records"
)

// RawAsianBar is one upstream row before unit normalization: volume in
// lots, turnover_rate possibly expressed as a percentage string
// (detected by a trailing '%'), matching the Akshare-shaped feed the
// original's CN A-share collector normalizes from.
type RawAsianBar struct {
	Date           time.Time
	Open           decimal.Decimal
	High           decimal.Decimal
	Low            decimal.Decimal
	Close          decimal.Decimal
	AdjClose       *decimal.Decimal
	VolumeLots     *decimal.Decimal
	TurnoverAmount *decimal.Decimal
	TurnoverRate   *string // raw text, e.g. "3.42%" or "0.0342"
}

// RawAsianFetcher is the upstream call an AsianEquityAdapter wraps: a
// single, non-retrying round trip to the A-share data source for one
// symbol over a date range.
type RawAsianFetcher interface {
	FetchRaw(ctx context.Context, symbol string, start, end time.Time) ([]RawAsianBar, error)
}

// AsianEquityAdapter implements Source for CN A-share symbols,
// applying the unit normalization spec 4.3 specifies:
//   - volume: lots -> shares (x100)
//   - turnover_rate: percentage text -> ratio (/100), when '%'-suffixed
//   - adj_factor = adj_close / close
//   - vwap = turnover_amount / volume
//
// division-by-zero and non-finite results map to missing rather than
// to zero or an error.
type AsianEquityAdapter struct {
	name    string
	fetcher RawAsianFetcher
}

// NewAsianEquityAdapter builds an adapter over fetcher, identified by
// name for provenance tagging (e.g. "akshare").
func NewAsianEquityAdapter(name string, fetcher RawAsianFetcher) *AsianEquityAdapter {
	return &AsianEquityAdapter{name: name, fetcher: fetcher}
}

// Name identifies this adapter as a provenance source.
func (a *AsianEquityAdapter) Name() string { return a.name }

// Fetch retrieves and unit-normalizes raw bars for symbol.
func (a *AsianEquityAdapter) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]records.Quote, error) {
	raw, err := a.fetcher.FetchRaw(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]records.Quote, 0, len(raw))
	for _, bar := range raw {
		out = append(out, normalizeAsianBar(symbol, bar))
	}
	return out, nil
}

func normalizeAsianBar(symbol string, bar RawAsianBar) records.Quote {
	q := records.Quote{
		Symbol: symbol,
		Date:   bar.Date,
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
	}
	q.AdjClose = bar.AdjClose

	var volumeShares *decimal.Decimal
	if bar.VolumeLots != nil {
		shares := bar.VolumeLots.Mul(decimal.NewFromInt(100))
		volumeShares = &shares
	}
	q.Volume = volumeShares
	q.TurnoverAmount = bar.TurnoverAmount

	if bar.TurnoverRate != nil {
		if ratio, ok := normalizeTurnoverRate(*bar.TurnoverRate); ok {
			q.TurnoverRate = &ratio
		}
	}

	if q.AdjClose != nil && !bar.Close.IsZero() {
		factor, _ := q.AdjClose.Div(bar.Close).Float64()
		if !nonFinite(factor) {
			f := decimal.NewFromFloat(factor)
			q.AdjFactor = &f
		}
	}

	if bar.TurnoverAmount != nil && volumeShares != nil && !volumeShares.IsZero() {
		vwap, _ := bar.TurnoverAmount.Div(*volumeShares).Float64()
		if !nonFinite(vwap) {
			v := decimal.NewFromFloat(vwap)
			q.VWAP = &v
		}
	}

	return q
}

// normalizeTurnoverRate converts raw ("3.42%" or "0.0342") to a ratio,
// dividing by 100 only when a trailing '%' is present.
func normalizeTurnoverRate(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	hasPct := strings.HasSuffix(trimmed, "%")
	trimmed = strings.TrimSuffix(trimmed, "%")
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	if hasPct {
		d = d.Div(decimal.NewFromInt(100))
	}
	return d, true
}
