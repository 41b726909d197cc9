package backtest

import (
	"context"
	"time"

	"github.com/aristath/stockdata/internal/company"
	"github.com/aristath/stockdata/internal/panel"
	"github.com/aristath/stockdata/internal/universe"
)

// quotePanelSource is the subset of quotes.Service a PriceLoader
// needs; kept narrow so tests can fake it without a full repository.
type quotePanelSource interface {
	GetPricePanel(ctx context.Context, symbols []string, start, end time.Time) (*panel.Panel, error)
}

// QuotesPriceLoader adapts a quotes.Service (or any matching source)
// to PriceLoader.
type QuotesPriceLoader struct {
	source quotePanelSource
}

// NewQuotesPriceLoader wraps source as a PriceLoader.
func NewQuotesPriceLoader(source quotePanelSource) *QuotesPriceLoader {
	return &QuotesPriceLoader{source: source}
}

// LoadPanel implements PriceLoader.
func (l *QuotesPriceLoader) LoadPanel(ctx context.Context, symbols []string, start, end time.Time) (*panel.Panel, error) {
	return l.source.GetPricePanel(ctx, symbols, start, end)
}

// CachedPanelLoader serves a pre-loaded panel (e.g. from
// panel.LoadCachedPanel) without touching the repository, for
// repeated local CLI runs over the same window.
type CachedPanelLoader struct {
	Panel *panel.Panel
}

// LoadPanel implements PriceLoader, ignoring symbols/start/end beyond
// restricting to the requested window.
func (l *CachedPanelLoader) LoadPanel(_ context.Context, _ []string, start, end time.Time) (*panel.Panel, error) {
	return l.Panel.Restrict(start, end), nil
}

// CompanyFundamentalLoader adapts company.Service's batch-get into the
// symbol -> metric -> value shape StrategyContext.Fundamentals uses.
type CompanyFundamentalLoader struct {
	companyS *company.Service
}

// NewCompanyFundamentalLoader wraps companyS as a FundamentalLoader.
func NewCompanyFundamentalLoader(companyS *company.Service) *CompanyFundamentalLoader {
	return &CompanyFundamentalLoader{companyS: companyS}
}

// LoadFundamentals implements FundamentalLoader.
func (l *CompanyFundamentalLoader) LoadFundamentals(ctx context.Context, symbols []string) (map[string]map[string]float64, error) {
	companies, err := l.companyS.BatchGetCompanies(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]float64, len(companies))
	for symbol, c := range companies {
		out[symbol] = c.Metrics
	}
	return out, nil
}

// UniverseSelectorResolver adapts a universe.Selector into a dynamic
// UniverseResolver for --dynamic-universe backtest runs.
type UniverseSelectorResolver struct {
	selector   *universe.Selector
	market     string
	thresholds universe.Thresholds
	mode       universe.Mode
	limit      int
}

// NewUniverseSelectorResolver builds a resolver that calls
// selector.Select with the given parameters.
func NewUniverseSelectorResolver(selector *universe.Selector, market string, thresholds universe.Thresholds, mode universe.Mode, limit int) *UniverseSelectorResolver {
	return &UniverseSelectorResolver{selector: selector, market: market, thresholds: thresholds, mode: mode, limit: limit}
}

// ResolveUniverse implements UniverseResolver.
func (r *UniverseSelectorResolver) ResolveUniverse(ctx context.Context) ([]string, error) {
	result, err := r.selector.Select(ctx, r.market, r.thresholds, r.mode, r.limit)
	if err != nil {
		return nil, err
	}
	return result.Symbols, nil
}
