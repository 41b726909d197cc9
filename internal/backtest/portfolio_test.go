package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		InitialCapital:     10000,
		RebalanceFrequency: "monthly",
		MaxPositions:       5,
		PriceField:         "close",
		FallbackPriceField: "close",
	}
}

func TestNewPortfolio_StartsAllCash(t *testing.T) {
	p := NewPortfolio(testConfig())
	assert.Equal(t, 10000.0, p.Cash)
	assert.Equal(t, 10000.0, p.TotalValue)
	assert.Empty(t, p.Positions)
}

func TestRebalance_AffordableBuyOpensPosition(t *testing.T) {
	p := NewPortfolio(testConfig())
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	trades, turnover := p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, date)

	assert.Empty(t, trades, "a fresh buy closes no trade")
	assert.Greater(t, turnover, 0.0)
	require.Contains(t, p.Positions, "AAPL")
	assert.InDelta(t, 100.0, p.Cash, 1.0, "nearly all cash should be deployed into the single target")
	assert.InDelta(t, 100.0, p.Positions["AAPL"].AvgPrice, 1e-6)
	assert.True(t, p.Positions["AAPL"].EntryDate.Equal(date))
}

func TestRebalance_SellClosesPositionAndRecordsTrade(t *testing.T) {
	p := NewPortfolio(testConfig())
	buyDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, buyDate)
	p.MarkToMarket(map[string]float64{"AAPL": 120})

	sellDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	trades, turnover := p.Rebalance(map[string]float64{}, map[string]float64{"AAPL": 120}, sellDate)

	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.True(t, trade.EntryDate.Equal(buyDate))
	assert.True(t, trade.ExitDate.Equal(sellDate))
	assert.Greater(t, trade.Profit, 0.0, "selling above cost basis must record a profit")
	assert.Greater(t, turnover, 0.0)
	assert.NotContains(t, p.Positions, "AAPL", "a fully sold position must be removed")
}

func TestRebalance_SellsExecuteBeforeBuysWithinSameCall(t *testing.T) {
	p := NewPortfolio(testConfig())
	date1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, date1)
	p.MarkToMarket(map[string]float64{"AAPL": 100})

	date2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	// Rotate fully out of AAPL into MSFT in one rebalance call; this only
	// works if the AAPL sell proceeds are available to fund the MSFT buy.
	trades, _ := p.Rebalance(map[string]float64{"MSFT": 1.0}, map[string]float64{"AAPL": 100, "MSFT": 50}, date2)

	require.Len(t, trades, 1)
	assert.Equal(t, "AAPL", trades[0].Symbol)
	require.Contains(t, p.Positions, "MSFT")
	assert.NotContains(t, p.Positions, "AAPL")
}

func TestRebalance_SlippageAndFeeReduceSellProceeds(t *testing.T) {
	cfg := testConfig()
	cfg.SlippageBps = 100  // 1%
	cfg.TransactionCostBps = 50 // 0.5%
	p := NewPortfolio(cfg)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, date)
	p.MarkToMarket(map[string]float64{"AAPL": 100})

	sellDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	qtyBefore := p.Positions["AAPL"].Quantity
	trades, _ := p.Rebalance(map[string]float64{}, map[string]float64{"AAPL": 100}, sellDate)

	require.Len(t, trades, 1)
	expectedEffectivePrice := 100 * (1.0 - 0.01)
	expectedCost := qtyBefore * 100 * 0.005
	expectedCash := qtyBefore*expectedEffectivePrice - expectedCost
	assert.InDelta(t, expectedCash, p.Cash, 1e-6)
}

func TestRebalance_BuyScaledDownWhenCashInsufficient(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = 1000
	cfg.SlippageBps = 10
	cfg.TransactionCostBps = 5
	p := NewPortfolio(cfg)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// A full-weight target of 2 shares at 500 costs more than the 1000
	// in cash once slippage and fees are added; the buy must be scaled
	// down to what cash actually affords rather than overdraw.
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 500}, date)

	require.Contains(t, p.Positions, "AAPL")
	assert.Less(t, p.Positions["AAPL"].Quantity, 2.0, "the buy must be scaled below the unconstrained 2 shares")
	assert.GreaterOrEqual(t, p.Cash, -1e-6, "cash must never go meaningfully negative")
}

func TestRebalance_MaxPositionsCapTrimsLowestWeightTargets(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 2
	p := NewPortfolio(cfg)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	weights := map[string]float64{"A": 0.2, "B": 0.5, "C": 0.3}
	prices := map[string]float64{"A": 10, "B": 10, "C": 10}
	p.Rebalance(weights, prices, date)

	assert.NotContains(t, p.Positions, "A", "lowest-weight target beyond the cap must be dropped")
	assert.Contains(t, p.Positions, "B")
	assert.Contains(t, p.Positions, "C")
}

func TestRebalance_WeightedAverageCostOnAddToPosition(t *testing.T) {
	p := NewPortfolio(testConfig())
	date1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 0.5}, map[string]float64{"AAPL": 100}, date1)
	firstQty := p.Positions["AAPL"].Quantity
	p.MarkToMarket(map[string]float64{"AAPL": 200})

	date2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 200}, date2)

	pos := p.Positions["AAPL"]
	assert.Greater(t, pos.Quantity, firstQty)
	assert.Greater(t, pos.AvgPrice, 100.0, "averaging in shares bought at 200 must raise the cost basis above 100")
	assert.Less(t, pos.AvgPrice, 200.0, "the blended cost basis must stay below the most recent purchase price")
}

func TestMarkToMarket_FallsBackToLastKnownPrice(t *testing.T) {
	p := NewPortfolio(testConfig())
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, date)
	p.MarkToMarket(map[string]float64{"AAPL": 150})
	valueWithPrice := p.TotalValue

	// A date with no quote for AAPL at all must reuse the last resolved price.
	p.MarkToMarket(map[string]float64{})
	assert.Equal(t, valueWithPrice, p.TotalValue)
}

func TestRebalance_NoPriceAvailableSkipsSymbol(t *testing.T) {
	p := NewPortfolio(testConfig())
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	trades, turnover := p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{}, date)

	assert.Empty(t, trades)
	assert.Equal(t, 0.0, turnover)
	assert.NotContains(t, p.Positions, "AAPL")
	assert.Equal(t, p.cfg.InitialCapital, p.Cash)
}

func TestRebalance_ZeroPreTradeEquityIsNoOp(t *testing.T) {
	p := NewPortfolio(testConfig())
	p.TotalValue = 0
	trades, turnover := p.Rebalance(map[string]float64{"AAPL": 1.0}, map[string]float64{"AAPL": 100}, time.Now())
	assert.Nil(t, trades)
	assert.Equal(t, 0.0, turnover)
}
