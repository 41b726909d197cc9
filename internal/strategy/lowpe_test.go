package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockdata/internal/backtest"
	"github.com/aristath/stockdata/internal/panel"
	"github.com/aristath/stockdata/internal/records"
)

func businessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := start
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func buildPanel(closes map[string][]float64, dates []time.Time) *panel.Panel {
	p := panel.New()
	for symbol, series := range closes {
		for i, v := range series {
			p.Set(dates[i], symbol, records.Quote{Symbol: symbol, Date: dates[i], Close: decimal.NewFromFloat(v)})
		}
	}
	return p
}

func TestLowPEMomentum_Initialize_RejectsMissingFundamentals(t *testing.T) {
	s := &LowPEMomentum{MaxAssets: 2, MomentumWindow: 5}
	ctx := &backtest.StrategyContext{Config: backtest.Config{PriceField: "close"}}
	err := s.Initialize(ctx)
	assert.Error(t, err)
}

func TestLowPEMomentum_Initialize_RejectsNonPositiveWindow(t *testing.T) {
	s := &LowPEMomentum{MaxAssets: 2, MomentumWindow: 0}
	ctx := &backtest.StrategyContext{Fundamentals: map[string]map[string]float64{"AAA": {"eps": 1}}}
	err := s.Initialize(ctx)
	assert.Error(t, err)
}

func TestLowPEMomentum_Initialize_FiltersByEPSAndPECeiling(t *testing.T) {
	dates := businessDays(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 3)
	p := buildPanel(map[string][]float64{
		"CHEAP":     {10, 10, 10},    // eps 2 -> pe 5, passes a ceiling of 15
		"EXPENSIVE": {100, 100, 100}, // eps 2 -> pe 50, fails a ceiling of 15
		"NEGATIVE":  {10, 10, 10},    // eps <= 0, excluded regardless of price
	}, dates)

	s := &LowPEMomentum{MaxAssets: 2, MomentumWindow: 1, MaxPE: 15}
	ctx := &backtest.StrategyContext{
		Prices:   p,
		Universe: []string{"CHEAP", "EXPENSIVE", "NEGATIVE"},
		Config:   backtest.Config{PriceField: "close", FallbackPriceField: "close"},
		Fundamentals: map[string]map[string]float64{
			"CHEAP":     {"eps": 2},
			"EXPENSIVE": {"eps": 2},
			"NEGATIVE":  {"eps": -1},
		},
	}

	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, []string{"CHEAP"}, s.eligible)
}

func TestLowPEMomentum_OnRebalance_RanksByMomentumAndEqualWeights(t *testing.T) {
	dates := businessDays(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 6)
	p := buildPanel(map[string][]float64{
		"FAST": {10, 11, 12, 13, 15, 20}, // strong upward momentum
		"SLOW": {10, 10, 10, 10, 10, 11}, // weak momentum
	}, dates)

	s := &LowPEMomentum{MaxAssets: 1, MomentumWindow: 5}
	ctx := &backtest.StrategyContext{
		Prices:   p,
		Universe: []string{"FAST", "SLOW"},
		Config:   backtest.Config{PriceField: "close", FallbackPriceField: "close", MaxPositions: 5},
		Fundamentals: map[string]map[string]float64{
			"FAST": {"eps": 1},
			"SLOW": {"eps": 1},
		},
	}
	require.NoError(t, s.Initialize(ctx))

	asOf := dates[len(dates)-1]
	priceSnapshot := map[string]float64{"FAST": 20, "SLOW": 11}
	weights, err := s.OnRebalance(asOf, ctx, priceSnapshot, backtest.PortfolioSnapshot{})

	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.Contains(t, weights, "FAST", "the higher-momentum symbol must win the single available slot")
	assert.InDelta(t, 1.0, weights["FAST"], 1e-9)
}

func TestLowPEMomentum_OnRebalance_EmptyEligibleSetYieldsNoTargets(t *testing.T) {
	s := &LowPEMomentum{MaxAssets: 2, MomentumWindow: 5}
	weights, err := s.OnRebalance(time.Now(), &backtest.StrategyContext{}, nil, backtest.PortfolioSnapshot{})
	require.NoError(t, err)
	assert.Empty(t, weights)
}
