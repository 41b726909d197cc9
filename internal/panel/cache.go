package panel

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/records"
)

// cachedRow is the on-disk shape for one panel cell. Decimals are
// carried as their canonical string form rather than relying on
// msgpack's reflection encoding of decimal.Decimal's internal fields,
// matching the conversion discipline internal/store/dynamo.go applies
// at its own wire boundary.
type cachedRow struct {
	Date           string
	Symbol         string
	Open           string
	High           string
	Low            string
	Close          string
	AdjClose       string `msgpack:",omitempty"`
	Volume         string `msgpack:",omitempty"`
	TurnoverAmount string `msgpack:",omitempty"`
	TurnoverRate   string `msgpack:",omitempty"`
	VWAP           string `msgpack:",omitempty"`
	AdjFactor      string `msgpack:",omitempty"`
	Currency       string `msgpack:",omitempty"`
	Source         string `msgpack:",omitempty"`
}

func toCachedRow(date time.Time, symbol string, q records.Quote) cachedRow {
	row := cachedRow{
		Date:     date.UTC().Format("2006-01-02"),
		Symbol:   symbol,
		Open:     q.Open.String(),
		High:     q.High.String(),
		Low:      q.Low.String(),
		Close:    q.Close.String(),
		Currency: q.Currency,
		Source:   q.Source,
	}
	if q.AdjClose != nil {
		row.AdjClose = q.AdjClose.String()
	}
	if q.Volume != nil {
		row.Volume = q.Volume.String()
	}
	if q.TurnoverAmount != nil {
		row.TurnoverAmount = q.TurnoverAmount.String()
	}
	if q.TurnoverRate != nil {
		row.TurnoverRate = q.TurnoverRate.String()
	}
	if q.VWAP != nil {
		row.VWAP = q.VWAP.String()
	}
	if q.AdjFactor != nil {
		row.AdjFactor = q.AdjFactor.String()
	}
	return row
}

func (r cachedRow) toQuote() (time.Time, records.Quote, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, records.Quote{}, apperr.NewInvalidInput("cached panel row has unparsable date %q", r.Date)
	}
	open, err1 := decimal.NewFromString(r.Open)
	high, err2 := decimal.NewFromString(r.High)
	low, err3 := decimal.NewFromString(r.Low)
	closeP, err4 := decimal.NewFromString(r.Close)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return time.Time{}, records.Quote{}, apperr.NewInvalidInput("cached panel row %s/%s has unparsable OHLC", r.Date, r.Symbol)
	}
	q := records.Quote{
		Symbol:   r.Symbol,
		Date:     date,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closeP,
		Currency: r.Currency,
		Source:   r.Source,
	}
	q.AdjClose = optDecimalString(r.AdjClose)
	q.Volume = optDecimalString(r.Volume)
	q.TurnoverAmount = optDecimalString(r.TurnoverAmount)
	q.TurnoverRate = optDecimalString(r.TurnoverRate)
	q.VWAP = optDecimalString(r.VWAP)
	q.AdjFactor = optDecimalString(r.AdjFactor)
	return date, q, nil
}

func optDecimalString(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// CachePanel serializes p to path as msgpack, for reuse across
// backtest runs over the same universe and date range without
// re-querying the repository.
func CachePanel(path string, p *Panel) error {
	rows := make([]cachedRow, 0, len(p.dates)*len(p.symbols))
	for _, d := range p.dates {
		for symbol, q := range p.cells[dateKey(d)] {
			rows = append(rows, toCachedRow(d, symbol, q))
		}
	}
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return apperr.NewStoreError("CachePanel", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.NewStoreError("CachePanel", err)
	}
	return nil
}

// LoadCachedPanel deserializes a panel previously written by CachePanel.
func LoadCachedPanel(path string) (*Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewStoreError("LoadCachedPanel", err)
	}
	var rows []cachedRow
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, apperr.NewStoreError("LoadCachedPanel", err)
	}
	p := New()
	for _, row := range rows {
		date, q, err := row.toQuote()
		if err != nil {
			return nil, err
		}
		p.Set(date, row.Symbol, q)
	}
	return p, nil
}
