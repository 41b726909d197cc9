// Package backtest implements the event-driven simulator (spec
// 4.10-4.12): a strategy-driven rebalance loop over a price panel,
// portfolio mechanics with slippage/fee/turnover accounting, and the
// performance analytics a BacktestResult reports.
package backtest

import (
	"time"

	"github.com/aristath/stockdata/internal/apperr"
)

// Config bundles a single backtest run's tunables (spec 4.10).
type Config struct {
	StartDate          time.Time
	EndDate            time.Time
	InitialCapital     float64
	RebalanceFrequency string
	MaxPositions       int
	SlippageBps        float64
	TransactionCostBps float64
	PriceField         string
	FallbackPriceField string
	MinWeight          float64
	PriceFields        []string
	FundamentalFields  []string
}

// Validate enforces the invariants spec 4.10 lists, returning an
// apperr.InvalidInput describing the first violation found.
func (c Config) Validate() error {
	if c.StartDate.After(c.EndDate) {
		return apperr.NewInvalidInput("start_date must be on or before end_date")
	}
	if c.InitialCapital <= 0 {
		return apperr.NewInvalidInput("initial_capital must be positive")
	}
	if c.MaxPositions <= 0 {
		return apperr.NewInvalidInput("max_positions must be positive")
	}
	if c.SlippageBps < 0 || c.TransactionCostBps < 0 {
		return apperr.NewInvalidInput("cost parameters cannot be negative")
	}
	if c.MinWeight < 0 {
		return apperr.NewInvalidInput("min_weight cannot be negative")
	}
	if c.RebalanceFrequency == "" {
		return apperr.NewInvalidInput("rebalance_frequency must be provided")
	}
	if c.PriceField == "" {
		return apperr.NewInvalidInput("price_field must be provided")
	}
	return nil
}

func (c Config) slippageFactor() float64 { return c.SlippageBps / 10_000.0 }
func (c Config) feeFactor() float64      { return c.TransactionCostBps / 10_000.0 }
