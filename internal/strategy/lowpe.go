// Package strategy holds the two illustrative strategies spec 4.12
// calls for: a low-PE/momentum fundamental screen and a trend-
// following EMA/RSI/ATR state machine. Neither formulation is part of
// the Strategy contract itself (internal/backtest.Strategy) — they
// exist to exercise the engine end to end.
package strategy

import (
	"sort"
	"time"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/backtest"
)

// LowPEMomentum filters the universe to symbols with positive
// earnings under a PE ceiling, then ranks survivors by trailing price
// momentum and equal-weights the top MaxAssets each rebalance.
// Grounded on
// original_source/core/src/core/strategy/fundamental/low_pe_momentum.py.
type LowPEMomentum struct {
	MaxAssets        int
	MaxPE            float64 // <= 0 disables the PE ceiling
	MinEPS           float64
	MomentumWindow   int
	MinMomentum      float64
	PriceField       string // empty uses ctx.Config.PriceField
	UniverseOverride []string

	eligible   []string
	priceField string
}

// Initialize screens the universe against fundamentals once, caching
// the eligible set for every subsequent OnRebalance call.
func (s *LowPEMomentum) Initialize(ctx *backtest.StrategyContext) error {
	if s.MomentumWindow <= 0 {
		return apperr.NewStrategyError("momentum_window must be a positive integer")
	}
	if len(ctx.Fundamentals) == 0 {
		return apperr.NewStrategyError("fundamental data is required for LowPEMomentum")
	}

	priceField := s.PriceField
	if priceField == "" {
		priceField = ctx.Config.PriceField
	}
	if !ctx.Prices.HasField(priceField) {
		priceField = ctx.Config.FallbackPriceField
		if !ctx.Prices.HasField(priceField) {
			return apperr.NewStrategyError("required price fields are missing for price history")
		}
	}
	s.priceField = priceField

	candidates := ctx.Universe
	if len(s.UniverseOverride) > 0 {
		candidates = dedupe(s.UniverseOverride)
	}

	var eligible []string
	for _, symbol := range candidates {
		metrics, ok := ctx.Fundamentals[symbol]
		if !ok {
			continue
		}
		eps, ok := metrics["eps"]
		if !ok || eps <= s.MinEPS {
			continue
		}
		price := firstValidPrice(ctx, symbol, priceField)
		if price <= 0 {
			continue
		}
		pe := price / eps
		if s.MaxPE > 0 && pe > s.MaxPE {
			continue
		}
		eligible = append(eligible, symbol)
	}
	sort.Strings(eligible)
	s.eligible = eligible
	return nil
}

// OnRebalance ranks eligible symbols by trailing momentum over
// MomentumWindow bars and equal-weights the top min(MaxAssets,
// config.MaxPositions) whose momentum clears MinMomentum.
func (s *LowPEMomentum) OnRebalance(date time.Time, ctx *backtest.StrategyContext, priceSnapshot map[string]float64, _ backtest.PortfolioSnapshot) (map[string]float64, error) {
	if len(s.eligible) == 0 {
		return map[string]float64{}, nil
	}

	type scored struct {
		symbol   string
		momentum float64
	}
	var scores []scored
	for _, symbol := range s.eligible {
		if _, ok := priceSnapshot[symbol]; !ok {
			continue
		}
		series := windowEndingAt(ctx, symbol, s.priceField, date, s.MomentumWindow+1)
		if len(series) < s.MomentumWindow+1 || series[0] == 0 {
			continue
		}
		momentum := series[len(series)-1]/series[0] - 1.0
		if momentum < s.MinMomentum {
			continue
		}
		scores = append(scores, scored{symbol, momentum})
	}
	if len(scores) == 0 {
		return map[string]float64{}, nil
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].momentum > scores[j].momentum })

	limit := s.MaxAssets
	if ctx.Config.MaxPositions < limit {
		limit = ctx.Config.MaxPositions
	}
	if limit > len(scores) {
		limit = len(scores)
	}
	weights := make(map[string]float64, limit)
	weight := 1.0 / float64(limit)
	for i := 0; i < limit; i++ {
		weights[scores[i].symbol] = weight
	}
	return weights, nil
}

func firstValidPrice(ctx *backtest.StrategyContext, symbol, field string) float64 {
	for _, d := range ctx.Prices.Dates() {
		if v, ok := ctx.Prices.Field(d, symbol, field); ok {
			return v
		}
	}
	return 0
}

// windowEndingAt returns up to n values of field for symbol, over
// dates <= asOf, ascending, skipping dates with no value.
func windowEndingAt(ctx *backtest.StrategyContext, symbol, field string, asOf time.Time, n int) []float64 {
	dates := ctx.Prices.Dates()
	var vals []float64
	for _, d := range dates {
		if d.After(asOf) {
			break
		}
		if v, ok := ctx.Prices.Field(d, symbol, field); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) > n {
		vals = vals[len(vals)-n:]
	}
	return vals
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
