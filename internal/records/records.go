// Package records defines the domain-level row shapes the catalog,
// quote, and company services read and write: the typed view on top
// of the flat internal/store.Item maps, plus the conversions between
// the two. Nothing here touches a store or a network; it is pure data
// plus marshaling.
package records

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/decimalx"
	"github.com/aristath/stockdata/internal/keycodec"
	"github.com/aristath/stockdata/internal/store"
)

// AssetType enumerates the CatalogEntry.AssetType domain.
type AssetType string

const (
	AssetStock     AssetType = "stock"
	AssetIndex     AssetType = "index"
	AssetETF       AssetType = "etf"
	AssetCommodity AssetType = "commodity"
	AssetFX        AssetType = "fx"
)

// Status enumerates CatalogEntry.Status.
type Status string

const (
	StatusActive   Status = "active"
	StatusDeactive Status = "deactive"
)

// CatalogEntry is the latest-snapshot row for a tradable symbol (spec §3).
type CatalogEntry struct {
	Symbol    string
	Name      string
	Exchange  string
	AssetType AssetType
	Market    string
	Status    Status
}

// Validate checks the required-column set spec 4.4 UpsertCatalog enforces.
func (c CatalogEntry) Validate() error {
	switch {
	case c.Symbol == "":
		return apperr.NewInvalidInput("catalog entry missing symbol")
	case c.Name == "":
		return apperr.NewInvalidInput("catalog entry %s missing name", c.Symbol)
	case c.Exchange == "":
		return apperr.NewInvalidInput("catalog entry %s missing exchange", c.Symbol)
	case c.AssetType == "":
		return apperr.NewInvalidInput("catalog entry %s missing asset_type", c.Symbol)
	case c.Market == "":
		return apperr.NewInvalidInput("catalog entry %s missing market", c.Symbol)
	case c.Status == "":
		return apperr.NewInvalidInput("catalog entry %s missing status", c.Symbol)
	}
	return nil
}

// ToItem builds the store.Item for this entry, populating the primary
// key and both bySymbol/byMarketStatus secondary-index attributes.
func (c CatalogEntry) ToItem() (store.Item, error) {
	pk, err := keycodec.PKCatalog(c.Symbol)
	if err != nil {
		return nil, err
	}
	gsi1pk, err := keycodec.GSI1PKSymbol(c.Symbol)
	if err != nil {
		return nil, err
	}
	gsi2pk, err := keycodec.GSI2PKMarketStatus(c.Market, string(c.Status))
	if err != nil {
		return nil, err
	}
	return store.Item{
		"pk":        store.Str(pk),
		"sk":        store.Str(keycodec.SKMeta("CATALOG")),
		"gsi1pk":    store.Str(gsi1pk),
		"gsi1sk":    store.Str(keycodec.GSI1SKEntity("CATALOG")),
		"gsi2pk":    store.Str(gsi2pk),
		"gsi2sk":    store.Str(keycodec.GSI2SKEntity("CATALOG")),
		"symbol":    store.Str(c.Symbol),
		"name":      store.Str(c.Name),
		"exchange":  store.Str(c.Exchange),
		"assetType": store.Str(string(c.AssetType)),
		"market":    store.Str(c.Market),
		"status":    store.Str(string(c.Status)),
	}, nil
}

// CatalogEntryFromItem reconstructs a CatalogEntry from a stored item.
func CatalogEntryFromItem(it store.Item) CatalogEntry {
	return CatalogEntry{
		Symbol:    it.GetString("symbol"),
		Name:      it.GetString("name"),
		Exchange:  it.GetString("exchange"),
		AssetType: AssetType(it.GetString("assetType")),
		Market:    it.GetString("market"),
		Status:    Status(it.GetString("status")),
	}
}

// Quote is one symbol's daily bar (spec §3). Optional numeric fields
// are nil when absent from the source, per the "absent stays absent"
// invariant.
type Quote struct {
	Symbol         string
	Date           time.Time
	Open           decimal.Decimal
	High           decimal.Decimal
	Low            decimal.Decimal
	Close          decimal.Decimal
	AdjClose       *decimal.Decimal
	Volume         *decimal.Decimal
	TurnoverAmount *decimal.Decimal
	TurnoverRate   *decimal.Decimal
	VWAP           *decimal.Decimal
	AdjFactor      *decimal.Decimal
	Currency       string
	Source         string
	IngestedAt     time.Time
}

// Validate checks the required-column set spec 4.5 UpsertQuotes enforces.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return apperr.NewInvalidInput("quote missing symbol")
	}
	if q.Date.IsZero() {
		return apperr.NewInvalidInput("quote %s missing date", q.Symbol)
	}
	return nil
}

// ToItem builds the store.Item for this quote, including the
// bySymbol timeline attributes, writing only the optional fields that
// are present.
func (q Quote) ToItem(writeExtendedFields bool) (store.Item, error) {
	pk, err := keycodec.PKStock(q.Symbol)
	if err != nil {
		return nil, err
	}
	gsi1pk, err := keycodec.GSI1PKSymbol(q.Symbol)
	if err != nil {
		return nil, err
	}
	isoDate := q.Date.UTC().Format("2006-01-02")

	item := store.Item{
		"pk":     store.Str(pk),
		"sk":     store.Str(keycodec.SKQuoteDate(q.Date)),
		"gsi1pk": store.Str(gsi1pk),
		"gsi1sk": store.Str(keycodec.GSI1SKEntity("QUOTE", isoDate)),
		"symbol": store.Str(q.Symbol),
		"date":   store.Str(isoDate),
		"open":   store.Num(q.Open),
		"high":   store.Num(q.High),
		"low":    store.Num(q.Low),
		"close":  store.Num(q.Close),
	}
	if q.Currency != "" {
		item["currency"] = store.Str(q.Currency)
	}
	if q.Source != "" {
		item["source"] = store.Str(q.Source)
	}
	if !q.IngestedAt.IsZero() {
		item["ingestedAt"] = store.Str(q.IngestedAt.UTC().Format(time.RFC3339))
	}
	if q.AdjClose != nil {
		item["adjClose"] = store.Num(*q.AdjClose)
	}
	if q.Volume != nil {
		item["volume"] = store.Num(*q.Volume)
	}
	if writeExtendedFields {
		setIfPresent(item, "turnoverAmount", q.TurnoverAmount)
		setIfPresent(item, "turnoverRate", q.TurnoverRate)
		setIfPresent(item, "vwap", q.VWAP)
		setIfPresent(item, "adjFactor", q.AdjFactor)
	}
	return item, nil
}

func setIfPresent(item store.Item, key string, v *decimal.Decimal) {
	if v != nil {
		item[key] = store.Num(*v)
	}
}

// QuoteFromItem reconstructs a Quote from a stored item. date and
// ingestedAt are parsed as UTC midnight / RFC3339 respectively;
// malformed timestamps are treated as zero rather than erroring, since
// the store's own write path is the only producer of these fields.
func QuoteFromItem(it store.Item) Quote {
	q := Quote{
		Symbol:   it.GetString("symbol"),
		Currency: it.GetString("currency"),
		Source:   it.GetString("source"),
	}
	if d, err := time.Parse("2006-01-02", it.GetString("date")); err == nil {
		q.Date = d
	}
	if ts, err := time.Parse(time.RFC3339, it.GetString("ingestedAt")); err == nil {
		q.IngestedAt = ts
	}
	q.Open, _ = it.GetDecimal("open")
	q.High, _ = it.GetDecimal("high")
	q.Low, _ = it.GetDecimal("low")
	q.Close, _ = it.GetDecimal("close")
	q.AdjClose = optDecimal(it, "adjClose")
	q.Volume = optDecimal(it, "volume")
	q.TurnoverAmount = optDecimal(it, "turnoverAmount")
	q.TurnoverRate = optDecimal(it, "turnoverRate")
	q.VWAP = optDecimal(it, "vwap")
	q.AdjFactor = optDecimal(it, "adjFactor")
	return q
}

func optDecimal(it store.Item, key string) *decimal.Decimal {
	if d, ok := it.GetDecimal(key); ok {
		return &d
	}
	return nil
}

// Company is the latest fundamentals snapshot for a symbol, keyed by
// symbol with a nonnegative Score driving the score index (spec §3).
// Metrics is a sparse, flattened bag of fundamental fields (market
// cap, PE, EPS growth, ROE, revenue growth, beta, and whatever else a
// given fundamentals source contributes); only the metrics a source
// actually reports are present.
type Company struct {
	Symbol  string
	Score   float64
	Metrics map[string]float64
}

// Validate checks the required-field set spec 4.6 PutCompany enforces.
func (c Company) Validate() error {
	if c.Symbol == "" {
		return apperr.NewInvalidInput("company missing symbol")
	}
	if c.Score < 0 {
		return apperr.NewInvalidInput("company %s has negative score %v", c.Symbol, c.Score)
	}
	return nil
}

// ToItem builds the store.Item for this company row, deep-converting
// every metric to exact decimal and populating the score index.
func (c Company) ToItem() (store.Item, error) {
	pk, err := keycodec.PKCompany(c.Symbol)
	if err != nil {
		return nil, err
	}
	scoreSK, err := keycodec.ScoreSK(c.Score, c.Symbol)
	if err != nil {
		return nil, err
	}
	item := store.Item{
		"pk":       store.Str(pk),
		"sk":       store.Str(keycodec.SKMeta("COMPANY")),
		"score_pk": store.Str(keycodec.ScorePK),
		"score_sk": store.Str(scoreSK),
		"symbol":   store.Str(c.Symbol),
		"score":    store.NumFloat(c.Score),
	}
	for k, v := range c.Metrics {
		if d, ok := decimalx.FromFloat(v); ok {
			item["metric_"+k] = store.Num(d)
		}
	}
	return item, nil
}

const metricPrefix = "metric_"

// CompanyFromItem reconstructs a Company from a stored item, folding
// every "metric_*" attribute back into Metrics with floats.
func CompanyFromItem(it store.Item) Company {
	c := Company{
		Symbol:  it.GetString("symbol"),
		Metrics: make(map[string]float64),
	}
	if d, ok := it.GetDecimal("score"); ok {
		c.Score = decimalx.ToFloat(d)
	}
	for k, v := range it {
		if len(k) > len(metricPrefix) && k[:len(metricPrefix)] == metricPrefix && v.N != nil {
			c.Metrics[k[len(metricPrefix):]] = decimalx.ToFloat(*v.N)
		}
	}
	return c
}
