// Package panel implements the two-level (date, symbol) frame: a
// sorted date index and a symbol interning table over per-date maps
// of records.Quote. Cells are whole quotes, not typed column slices.
// It backs both GetPricePanel (spec 4.5) and the backtest engine's
// price loading (spec 4.10), and supports a local on-disk cache so a
// backtest re-run does not re-fetch from the repository.
package panel

import (
	"sort"
	"time"

	"github.com/aristath/stockdata/internal/decimalx"
	"github.com/aristath/stockdata/internal/records"
)

// Panel is an ordered date index crossed with an interned symbol
// table, holding one records.Quote per (date, symbol) cell that has
// data. Cells with no data are simply absent, not zero-valued.
type Panel struct {
	dates     []time.Time
	dateIndex map[string]int // "2006-01-02" -> position in dates

	symbols     []string
	symbolIndex map[string]int

	// cells[dateKey][symbolKey] = quote
	cells map[string]map[string]records.Quote
}

// New returns an empty Panel.
func New() *Panel {
	return &Panel{
		dateIndex:   make(map[string]int),
		symbolIndex: make(map[string]int),
		cells:       make(map[string]map[string]records.Quote),
	}
}

func dateKey(d time.Time) string { return d.UTC().Format("2006-01-02") }

// Set records q at (date, symbol), inserting the date and symbol into
// their respective sorted/interned indexes if new.
func (p *Panel) Set(date time.Time, symbol string, q records.Quote) {
	dk := dateKey(date)
	if _, ok := p.dateIndex[dk]; !ok {
		p.insertDate(date, dk)
	}
	if _, ok := p.symbolIndex[symbol]; !ok {
		p.symbolIndex[symbol] = len(p.symbols)
		p.symbols = append(p.symbols, symbol)
	}
	row, ok := p.cells[dk]
	if !ok {
		row = make(map[string]records.Quote)
		p.cells[dk] = row
	}
	row[symbol] = q
}

func (p *Panel) insertDate(date time.Time, dk string) {
	i := sort.Search(len(p.dates), func(i int) bool { return !p.dates[i].Before(date) })
	p.dates = append(p.dates, time.Time{})
	copy(p.dates[i+1:], p.dates[i:])
	p.dates[i] = date
	for j := i; j < len(p.dates); j++ {
		p.dateIndex[dateKey(p.dates[j])] = j
	}
}

// Dates returns the sorted, deduplicated date index.
func (p *Panel) Dates() []time.Time { return p.dates }

// Symbols returns the interned symbol table in first-seen order.
func (p *Panel) Symbols() []string { return p.symbols }

// Empty reports whether the panel has no dates (and therefore no data).
func (p *Panel) Empty() bool { return len(p.dates) == 0 }

// Get returns the quote at (date, symbol), if present.
func (p *Panel) Get(date time.Time, symbol string) (records.Quote, bool) {
	row, ok := p.cells[dateKey(date)]
	if !ok {
		return records.Quote{}, false
	}
	q, ok := row[symbol]
	return q, ok
}

// Snapshot returns the single-level frame for one date: symbol -> quote.
func (p *Panel) Snapshot(date time.Time) map[string]records.Quote {
	row, ok := p.cells[dateKey(date)]
	if !ok {
		return map[string]records.Quote{}
	}
	out := make(map[string]records.Quote, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Field extracts a named numeric field from the quote at (date,
// symbol). Supported names: open, high, low, close, adj_close,
// volume. Returns ok=false if the cell, or that specific field, is
// absent.
func (p *Panel) Field(date time.Time, symbol, field string) (float64, bool) {
	q, ok := p.Get(date, symbol)
	if !ok {
		return 0, false
	}
	switch field {
	case "open":
		return decimalx.ToFloat(q.Open), true
	case "high":
		return decimalx.ToFloat(q.High), true
	case "low":
		return decimalx.ToFloat(q.Low), true
	case "close":
		return decimalx.ToFloat(q.Close), true
	case "adj_close":
		if q.AdjClose == nil {
			return 0, false
		}
		return decimalx.ToFloat(*q.AdjClose), true
	case "volume":
		if q.Volume == nil {
			return 0, false
		}
		return decimalx.ToFloat(*q.Volume), true
	default:
		return 0, false
	}
}

// HasField reports whether any cell in the panel carries field at
// all, used by the backtest engine to fail fast when neither the
// primary nor fallback price field exists anywhere in the loaded data.
func (p *Panel) HasField(field string) bool {
	for _, row := range p.cells {
		for _, q := range row {
			switch field {
			case "open":
				return true
			case "high":
				return true
			case "low":
				return true
			case "close":
				return true
			case "adj_close":
				if q.AdjClose != nil {
					return true
				}
			case "volume":
				if q.Volume != nil {
					return true
				}
			}
		}
	}
	return false
}

// Restrict returns a new Panel containing only dates within [start, end].
func (p *Panel) Restrict(start, end time.Time) *Panel {
	out := New()
	for _, d := range p.dates {
		if !start.IsZero() && d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			continue
		}
		for symbol, q := range p.cells[dateKey(d)] {
			out.Set(d, symbol, q)
		}
	}
	return out
}
