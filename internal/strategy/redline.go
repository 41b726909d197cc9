package strategy

import (
	"math"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/backtest"
)

// RedLine approximates a TradingView-style trend-following system: an
// EMA stack confirms a bull structure, RSI and a volume surge gate
// entries, and an ATR-based trailing stop (the "red line") exits.
// Grounded on
// original_source/core/src/core/strategy/technical/swing_falcon.py;
// the exact formulation is illustrative per spec 4.12, not part of
// the Strategy contract.
type RedLine struct {
	MaxPositions     int
	MinMarketCap     float64 // <= 0 disables
	MaxPE            float64 // <= 0 disables
	MinEPSGrowth     float64
	MinROE           float64
	MinBeta, MaxBeta float64 // both 0 disables the beta band

	EMAShortLen, EMAMidLen, EMALongLen int
	RSILen                             int
	ATRBreakoutLen, ATRTrailLen        int
	VolumeLookback                     int

	RSIBuyThreshold, RSIExitThreshold float64
	BuyVolumeFactor                   float64
	TrailATRMult                      float64

	PriceField       string
	UniverseOverride []string

	eligible   []string
	priceField string
	series     map[string]*redlineSeries
}

type redlineSeries struct {
	dateIndex map[string]int
	momentum  []float64
	inLong    []bool
}

// Initialize screens the universe on fundamentals, then precomputes
// the EMA/RSI/ATR-driven long/flat state for every eligible symbol
// across the full date index.
func (s *RedLine) Initialize(ctx *backtest.StrategyContext) error {
	if ctx.Prices.Empty() {
		return apperr.NewStrategyError("price history is required for RedLine")
	}
	if len(ctx.Fundamentals) == 0 {
		return apperr.NewStrategyError("fundamental data is required for RedLine")
	}

	priceField := s.PriceField
	if priceField == "" {
		priceField = ctx.Config.PriceField
	}
	s.priceField = priceField

	candidates := ctx.Universe
	if len(s.UniverseOverride) > 0 {
		candidates = dedupe(s.UniverseOverride)
	}

	s.eligible = nil
	s.series = make(map[string]*redlineSeries)
	for _, symbol := range candidates {
		metrics, ok := ctx.Fundamentals[symbol]
		if !ok || !s.passesFundamentals(metrics) {
			continue
		}
		series := s.buildSeries(ctx, symbol, priceField)
		if series == nil {
			continue
		}
		s.series[symbol] = series
		s.eligible = append(s.eligible, symbol)
	}
	sort.Strings(s.eligible)
	return nil
}

func (s *RedLine) passesFundamentals(m map[string]float64) bool {
	if s.MinMarketCap > 0 {
		if v, ok := m["market_cap"]; !ok || v < s.MinMarketCap {
			return false
		}
	}
	if s.MaxPE > 0 {
		if v, ok := m["pe"]; !ok || v > s.MaxPE {
			return false
		}
	}
	if v, ok := m["eps_growth"]; ok {
		if v < s.MinEPSGrowth {
			return false
		}
	} else if s.MinEPSGrowth > 0 {
		return false
	}
	if v, ok := m["roe"]; ok {
		if v < s.MinROE {
			return false
		}
	} else if s.MinROE > 0 {
		return false
	}
	if s.MinBeta != 0 || s.MaxBeta != 0 {
		beta, ok := m["beta"]
		if !ok {
			return false
		}
		if s.MinBeta != 0 && beta < s.MinBeta {
			return false
		}
		if s.MaxBeta != 0 && beta > s.MaxBeta {
			return false
		}
	}
	return true
}

// buildSeries computes the per-date in_long state machine for one
// symbol, forward-filling close and treating absent high/low/volume
// samples as zero (an accepted simplification for an illustrative
// strategy; see spec 4.12).
func (s *RedLine) buildSeries(ctx *backtest.StrategyContext, symbol, priceField string) *redlineSeries {
	dates := ctx.Prices.Dates()
	n := len(dates)
	closeArr := make([]float64, n)
	highArr := make([]float64, n)
	lowArr := make([]float64, n)
	volumeArr := make([]float64, n)

	lastClose := math.NaN()
	any := false
	for i, d := range dates {
		if v, ok := ctx.Prices.Field(d, symbol, priceField); ok {
			lastClose = v
		}
		closeArr[i] = lastClose
		if !math.IsNaN(lastClose) {
			any = true
		}
		if v, ok := ctx.Prices.Field(d, symbol, "high"); ok {
			highArr[i] = v
		}
		if v, ok := ctx.Prices.Field(d, symbol, "low"); ok {
			lowArr[i] = v
		}
		if v, ok := ctx.Prices.Field(d, symbol, "volume"); ok {
			volumeArr[i] = v
		}
	}
	if !any {
		return nil
	}
	for i := range closeArr {
		if math.IsNaN(closeArr[i]) {
			closeArr[i] = 0
		}
	}

	emaShort := talib.Ema(closeArr, s.EMAShortLen)
	emaMid := talib.Ema(closeArr, s.EMAMidLen)
	emaLong := talib.Ema(closeArr, s.EMALongLen)
	rsi := talib.Rsi(closeArr, s.RSILen)
	atrBreakout := talib.Atr(highArr, lowArr, closeArr, s.ATRBreakoutLen)
	atrTrail := talib.Atr(highArr, lowArr, closeArr, s.ATRTrailLen)
	volumeSMA := talib.Sma(volumeArr, s.VolumeLookback)

	momentum := make([]float64, n)
	for i := range closeArr {
		j := i - s.EMAShortLen
		if j >= 0 && closeArr[j] != 0 {
			momentum[i] = closeArr[i]/closeArr[j] - 1.0
		}
	}

	inLong := make([]bool, n)
	trailHigh := math.NaN()
	trailLevel := math.NaN()
	inLongState := false
	for i := range closeArr {
		bull := emaShort[i] > emaMid[i] && emaMid[i] > emaLong[i] && closeArr[i] > emaMid[i]

		if inLongState {
			if math.IsNaN(trailHigh) {
				trailHigh = highArr[i]
			} else {
				trailHigh = math.Max(trailHigh, highArr[i])
			}
			if atrTrail[i] != 0 {
				candidate := trailHigh - atrTrail[i]*s.TrailATRMult
				if math.IsNaN(trailLevel) || candidate > trailLevel {
					trailLevel = candidate
				}
			}
			exit := (!math.IsNaN(trailLevel) && closeArr[i] < trailLevel) || rsi[i] < s.RSIExitThreshold
			if exit {
				inLongState = false
				trailHigh = math.NaN()
				trailLevel = math.NaN()
			}
		}
		if !inLongState {
			volumeOK := volumeSMA[i] > 0 && volumeArr[i] >= volumeSMA[i]*s.BuyVolumeFactor
			rsiOK := rsi[i] >= s.RSIBuyThreshold
			closeOK := closeArr[i] >= emaShort[i]
			atrReady := atrBreakout[i] != 0
			if bull && volumeOK && rsiOK && closeOK && atrReady {
				inLongState = true
				trailHigh = highArr[i]
				trailLevel = highArr[i] - atrTrail[i]*s.TrailATRMult
			}
		}
		inLong[i] = inLongState
	}

	dateIndex := make(map[string]int, n)
	for i, d := range dates {
		dateIndex[d.UTC().Format("2006-01-02")] = i
	}
	return &redlineSeries{dateIndex: dateIndex, momentum: momentum, inLong: inLong}
}

// OnRebalance equal-weights the eligible symbols currently flagged
// in_long, ranked by momentum, capped at MaxPositions.
func (s *RedLine) OnRebalance(date time.Time, ctx *backtest.StrategyContext, priceSnapshot map[string]float64, _ backtest.PortfolioSnapshot) (map[string]float64, error) {
	if len(s.eligible) == 0 {
		return map[string]float64{}, nil
	}
	key := date.UTC().Format("2006-01-02")

	type active struct {
		symbol   string
		momentum float64
	}
	var actives []active
	for _, symbol := range s.eligible {
		series, ok := s.series[symbol]
		if !ok {
			continue
		}
		i, ok := series.dateIndex[key]
		if !ok || !series.inLong[i] {
			continue
		}
		if _, ok := priceSnapshot[symbol]; !ok {
			continue
		}
		actives = append(actives, active{symbol, series.momentum[i]})
	}
	if len(actives) == 0 {
		return map[string]float64{}, nil
	}
	sort.SliceStable(actives, func(i, j int) bool { return actives[i].momentum > actives[j].momentum })
	if s.MaxPositions > 0 && len(actives) > s.MaxPositions {
		actives = actives[:s.MaxPositions]
	}

	weight := 1.0 / float64(len(actives))
	weights := make(map[string]float64, len(actives))
	for _, a := range actives {
		weights[a.symbol] = weight
	}
	return weights, nil
}
