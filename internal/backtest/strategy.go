package backtest

import (
	"time"

	"github.com/aristath/stockdata/internal/panel"
)

// StrategyContext is the shared, read-only view of loaded data and
// configuration a Strategy receives at Initialize and on every
// OnRebalance call (spec 4.12). Strategies read from it but must not
// mutate it; the engine owns the Panel and rebuilds snapshots per
// date.
type StrategyContext struct {
	Prices       *panel.Panel
	Fundamentals map[string]map[string]float64 // symbol -> metric -> value
	Config       Config
	Universe     []string
	CurrentDate  time.Time
}

// PriceSeries returns symbol's price-field series across the context's
// full date index, ascending, for strategies that need a rolling
// window (momentum, EMA/RSI) rather than a single-date snapshot.
func (c *StrategyContext) PriceSeries(symbol, field string) []float64 {
	dates := c.Prices.Dates()
	out := make([]float64, 0, len(dates))
	for _, d := range dates {
		v, ok := c.Prices.Field(d, symbol, field)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Strategy is the contract the engine depends on (spec 4.12): the
// engine calls Initialize once, then OnRebalance on every scheduled
// rebalance date. Either call may return a StrategyError, which the
// engine surfaces as a fatal run failure. Two representative
// strategies (package internal/strategy) implement it; their exact
// formulations are illustrative, not part of the contract.
type Strategy interface {
	Initialize(ctx *StrategyContext) error
	OnRebalance(date time.Time, ctx *StrategyContext, priceSnapshot map[string]float64, portfolio PortfolioSnapshot) (map[string]float64, error)
}
