package backtest

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// EquityPoint is one date's total portfolio value.
type EquityPoint struct {
	Date  time.Time
	Value float64
}

// Result is the aggregated outcome of a backtest run (spec 4.10
// Analytics, 4.11).
type Result struct {
	RunID            string
	Config           Config
	EquityCurve      []EquityPoint
	DailyReturns     []float64
	TotalReturn      float64
	AnnualizedReturn float64
	MaxDrawdown      float64
	Volatility       float64
	SharpeRatio      float64
	WinRate          float64
	NumTrades        int
	GrossProfit      float64
	GrossLoss        float64
	Trades           []TradeRecord
	Turnover         float64
	EndingCash       float64
	EndingPositions  []PositionSnapshot
}

// dailyReturns computes the percentage change of an equity curve,
// replacing +/-Inf and NaN with 0 (spec 4.10: "infinities and NaN
// replaced with 0"). The result has one fewer element than values.
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out[i-1] = 0
			continue
		}
		r := (values[i] - values[i-1]) / values[i-1]
		if math.IsInf(r, 0) || math.IsNaN(r) {
			r = 0
		}
		out[i-1] = r
	}
	return out
}

func totalReturn(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	first := values[0]
	if first == 0 {
		return 0
	}
	return values[len(values)-1]/first - 1.0
}

func annualizedReturn(values []float64) float64 {
	n := len(values)
	if n <= 1 || values[0] <= 0 {
		return 0
	}
	return math.Pow(values[n-1]/values[0], 252.0/float64(n)) - 1.0
}

// maxDrawdown returns min(equity/cummax - 1), 0 on an empty series.
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	runningMax := values[0]
	worst := 0.0
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax <= 0 {
			continue
		}
		dd := v/runningMax - 1.0
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// volatility is σ(returns, ddof=0)·√252 (spec 4.10).
func volatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	_, popVariance := stat.PopMeanVariance(returns, nil)
	return math.Sqrt(popVariance) * math.Sqrt(252)
}

// sharpeRatio is mean(returns)/σ(returns)·√252, 0 when σ=0.
func sharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, popVariance := stat.PopMeanVariance(returns, nil)
	sigma := math.Sqrt(popVariance)
	if sigma == 0 {
		return 0
	}
	return mean / sigma * math.Sqrt(252)
}

// assembleResult builds the final Result from the accumulated equity
// curve and closed trades (spec 4.10 step 6).
func assembleResult(runID string, cfg Config, equity []EquityPoint, trades []TradeRecord, turnover float64, ending PortfolioSnapshot) *Result {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Value
	}
	returns := dailyReturns(values)

	wins, losses := 0, 0
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		switch {
		case t.Profit > 0:
			wins++
			grossProfit += t.Profit
		case t.Profit < 0:
			losses++
			grossLoss += t.Profit
		}
	}
	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}

	return &Result{
		RunID:            runID,
		Config:           cfg,
		EquityCurve:      equity,
		DailyReturns:     returns,
		TotalReturn:      totalReturn(values),
		AnnualizedReturn: annualizedReturn(values),
		MaxDrawdown:      maxDrawdown(values),
		Volatility:       volatility(returns),
		SharpeRatio:      sharpeRatio(returns),
		WinRate:          winRate,
		NumTrades:        len(trades),
		GrossProfit:      grossProfit,
		GrossLoss:        grossLoss,
		Trades:           trades,
		Turnover:         turnover,
		EndingCash:       ending.Cash,
		EndingPositions:  ending.Positions,
	}
}
