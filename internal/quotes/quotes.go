// Package quotes implements the Quote Service (spec 4.5): upsert,
// latest-date lookup, single-symbol history, and multi-symbol price
// panels.
package quotes

import (
	"context"
	"sort"
	"time"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/keycodec"
	"github.com/aristath/stockdata/internal/panel"
	"github.com/aristath/stockdata/internal/records"
	"github.com/aristath/stockdata/internal/store"
)

// Service upserts and reads quotes against a Repository.
type Service struct {
	repo                store.Repository
	writeExtendedFields bool
}

// New builds a quotes Service. writeExtendedFields controls whether
// turnover/vwap/adj_factor are persisted (spec §6
// STOCKDATA_WRITE_EXTENDED_FIELDS).
func New(repo store.Repository, writeExtendedFields bool) *Service {
	return &Service{repo: repo, writeExtendedFields: writeExtendedFields}
}

// UpsertQuotes validates the required-column set on every row, then
// batch-puts. All numeric values are already exact decimal on
// records.Quote by construction.
func (s *Service) UpsertQuotes(ctx context.Context, rows []records.Quote) (int, error) {
	items := make([]store.Item, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, err
		}
		item, err := row.ToItem(s.writeExtendedFields)
		if err != nil {
			return 0, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := s.repo.BatchPut(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// LatestQuoteDate returns the most recent date with a stored quote for
// symbol, or the zero time and ok=false when none exists.
func (s *Service) LatestQuoteDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	gsi1pk, err := keycodec.GSI1PKSymbol(symbol)
	if err != nil {
		return time.Time{}, false, err
	}
	items, err := s.repo.Query(ctx, store.QueryInput{
		IndexName:      "bySymbol",
		PartitionValue: gsi1pk,
		SortPrefix:     keycodec.GSI1SKEntity("QUOTE"),
		Limit:          1,
		Direction:      store.Descending,
	})
	if err != nil {
		return time.Time{}, false, err
	}
	if len(items) == 0 {
		return time.Time{}, false, nil
	}
	q := records.QuoteFromItem(items[0])
	if q.Date.IsZero() {
		return time.Time{}, false, nil
	}
	return q.Date, true, nil
}

// GetQuotes returns symbol's quotes in [start, end] (inclusive,
// zero-value bound means unbounded on that side), sorted ascending by
// date.
func (s *Service) GetQuotes(ctx context.Context, symbol string, start, end time.Time) ([]records.Quote, error) {
	pk, err := keycodec.PKStock(symbol)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Query(ctx, store.QueryInput{
		PartitionValue: pk,
		SortPrefix:     "QUOTE#",
		Direction:      store.Ascending,
	})
	if err != nil {
		return nil, err
	}

	out := make([]records.Quote, 0, len(items))
	for _, it := range items {
		q := records.QuoteFromItem(it)
		if !start.IsZero() && q.Date.Before(start) {
			continue
		}
		if !end.IsZero() && q.Date.After(end) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetPricePanel loads quotes for every symbol and assembles the
// two-level (date, symbol) panel the backtest engine and universe
// selector operate on. Symbols with no quotes in range simply
// contribute no rows; the panel is empty (not nil) when nothing
// matches.
func (s *Service) GetPricePanel(ctx context.Context, symbols []string, start, end time.Time) (*panel.Panel, error) {
	p := panel.New()
	for _, symbol := range symbols {
		rows, err := s.GetQuotes(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		for _, q := range rows {
			p.Set(q.Date, symbol, q)
		}
	}
	if len(symbols) == 0 {
		return nil, apperr.NewInvalidInput("GetPricePanel requires at least one symbol")
	}
	return p, nil
}
