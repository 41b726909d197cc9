package backtest

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/stockdata/internal/decimalx"
)

// positionEpsilon is the quantity-units tolerance spec 4.11 step 4 uses
// to classify a reconciliation delta as a real sell/buy rather than
// rounding noise, and to decide when a shrinking position is fully
// closed.
const positionEpsilon = 1e-8

// Position is one open holding.
type Position struct {
	Quantity  float64
	AvgPrice  float64
	EntryDate time.Time
}

// TradeRecord is a closed trade summary used for analytics (spec 4.10
// Analytics, 4.11 step 5).
type TradeRecord struct {
	ID         string
	Symbol     string
	EntryDate  time.Time
	ExitDate   time.Time
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	ReturnPct  float64
}

// PositionSnapshot is the read-only view of a position exposed to
// strategies and results.
type PositionSnapshot struct {
	Symbol      string
	Quantity    float64
	AvgPrice    float64
	MarketPrice float64
	MarketValue float64
}

// PortfolioSnapshot is the immutable view handed to
// Strategy.OnRebalance and assembled into BacktestResult's ending
// state.
type PortfolioSnapshot struct {
	Date      time.Time
	Cash      float64
	Equity    float64
	Positions []PositionSnapshot
}

// Portfolio is the mutable state container spec 4.11 describes: cash,
// open positions, last mark-to-market value, and the last price seen
// per symbol (used when a date's snapshot omits a held symbol).
type Portfolio struct {
	cfg Config

	Cash         float64
	Positions    map[string]*Position
	TotalValue   float64
	lastPriceMap map[string]float64
}

// NewPortfolio starts a Portfolio at cfg.InitialCapital in cash.
func NewPortfolio(cfg Config) *Portfolio {
	return &Portfolio{
		cfg:          cfg,
		Cash:         cfg.InitialCapital,
		Positions:    make(map[string]*Position),
		TotalValue:   cfg.InitialCapital,
		lastPriceMap: make(map[string]float64),
	}
}

// resolvePrice returns the price to use for symbol from an
// already-field-resolved snapshot (price field falling back to the
// fallback field is applied upstream when the snapshot is built).
// Non-positive or non-finite values are treated as unavailable.
func resolvePrice(symbol string, prices map[string]float64) (float64, bool) {
	v, ok := prices[symbol]
	if ok && decimalx.IsFinitePositive(v) {
		return v, true
	}
	return 0, false
}

// MarkToMarket resolves each held symbol's price from prices, falling
// back to the last known price when prices omits it, and updates
// TotalValue = cash + Σ qty·price. Symbols with no price at all
// (never seen) contribute nothing.
func (p *Portfolio) MarkToMarket(prices map[string]float64) {
	total := p.Cash
	for symbol, pos := range p.Positions {
		price, ok := resolvePrice(symbol, prices)
		if ok {
			p.lastPriceMap[symbol] = price
		} else if last, seen := p.lastPriceMap[symbol]; seen {
			price, ok = last, true
		}
		if !ok {
			continue
		}
		total += pos.Quantity * price
	}
	p.TotalValue = total
}

// Snapshot builds the read-only PortfolioSnapshot for date, using the
// last resolved price per held symbol.
func (p *Portfolio) Snapshot(date time.Time) PortfolioSnapshot {
	views := make([]PositionSnapshot, 0, len(p.Positions))
	for symbol, pos := range p.Positions {
		price := p.lastPriceMap[symbol]
		views = append(views, PositionSnapshot{
			Symbol:      symbol,
			Quantity:    pos.Quantity,
			AvgPrice:    pos.AvgPrice,
			MarketPrice: price,
			MarketValue: pos.Quantity * price,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })
	return PortfolioSnapshot{Date: date, Cash: p.Cash, Equity: p.TotalValue, Positions: views}
}

// prepareWeights clamps negative weights to zero, ranks desc, keeps
// the top maxPositions, then zero-pads any currently held symbol
// missing from the trimmed set so it is still considered for
// divestment (spec 4.11 step 2). Padding happens after the trim, so a
// held symbol that falls outside the top maxPositions gets weight 0
// and is sold.
func prepareWeights(target map[string]float64, held map[string]*Position, maxPositions int) map[string]float64 {
	type kv struct {
		symbol string
		weight float64
	}
	clamped := make([]kv, 0, len(target))
	for symbol, w := range target {
		if w < 0 {
			w = 0
		}
		clamped = append(clamped, kv{symbol, w})
	}
	sort.SliceStable(clamped, func(i, j int) bool { return clamped[i].weight > clamped[j].weight })
	if maxPositions > 0 && len(clamped) > maxPositions {
		clamped = clamped[:maxPositions]
	}
	trimmed := make(map[string]float64, len(clamped)+len(held))
	for _, e := range clamped {
		trimmed[e.symbol] = e.weight
	}
	for symbol := range held {
		if _, ok := trimmed[symbol]; !ok {
			trimmed[symbol] = 0
		}
	}
	return trimmed
}

// Rebalance reconciles the portfolio to targetWeights on date,
// following spec 4.11 steps 1-7: clamp/rank/trim, normalize,
// classify sell/buy by delta quantity, execute sells first, then
// scale and execute buys within available cash. Returns the trades
// closed by sells and the turnover fraction of pre-trade equity.
func (p *Portfolio) Rebalance(targetWeights map[string]float64, prices map[string]float64, date time.Time) ([]TradeRecord, float64) {
	preTradeEquity := p.TotalValue
	if preTradeEquity <= 0 {
		return nil, 0
	}

	weights := prepareWeights(targetWeights, p.Positions, p.cfg.MaxPositions)
	weightSum := 0.0
	for _, w := range weights {
		if w > 0 {
			weightSum += w
		}
	}
	if weightSum > 1.0 {
		scale := 1.0 / weightSum
		for symbol, w := range weights {
			if w > 0 {
				w *= scale
			} else {
				w = 0
			}
			weights[symbol] = w
		}
	}

	slippage := p.cfg.slippageFactor()
	fee := p.cfg.feeFactor()

	type order struct {
		symbol string
		qty    float64
		price  float64
	}
	var sells, buys []order

	allSymbols := make(map[string]struct{}, len(weights)+len(p.Positions))
	for symbol := range weights {
		allSymbols[symbol] = struct{}{}
	}
	for symbol := range p.Positions {
		allSymbols[symbol] = struct{}{}
	}

	for symbol := range allSymbols {
		targetWeight := weights[symbol]
		price, ok := resolvePrice(symbol, prices)
		if !ok {
			continue
		}
		currentQty := 0.0
		if pos, held := p.Positions[symbol]; held {
			currentQty = pos.Quantity
		}
		desiredQty := targetWeight * preTradeEquity / price
		delta := desiredQty - currentQty
		switch {
		case delta < -positionEpsilon:
			sells = append(sells, order{symbol, -delta, price})
		case delta > positionEpsilon:
			buys = append(buys, order{symbol, delta, price})
		}
	}
	sort.Slice(sells, func(i, j int) bool { return sells[i].symbol < sells[j].symbol })
	sort.Slice(buys, func(i, j int) bool { return buys[i].symbol < buys[j].symbol })

	var trades []TradeRecord
	turnoverValue := 0.0

	for _, o := range sells {
		pos, held := p.Positions[o.symbol]
		if !held || o.qty <= positionEpsilon {
			continue
		}
		qty := o.qty
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		effectivePrice := o.price * (1.0 - slippage)
		grossProceeds := qty * effectivePrice
		cost := qty * o.price * fee
		cashReceived := grossProceeds - cost
		costBasis := qty * pos.AvgPrice
		profit := cashReceived - costBasis
		returnPct := 0.0
		if costBasis > 0 {
			returnPct = profit / costBasis
		}
		p.Cash += cashReceived
		pos.Quantity -= qty
		entryDate := pos.EntryDate
		if pos.Quantity <= positionEpsilon {
			delete(p.Positions, o.symbol)
		}
		trades = append(trades, TradeRecord{
			ID:         uuid.NewString(),
			Symbol:     o.symbol,
			EntryDate:  entryDate,
			ExitDate:   date,
			Quantity:   qty,
			EntryPrice: pos.AvgPrice,
			ExitPrice:  o.price,
			Profit:     profit,
			ReturnPct:  returnPct,
		})
		turnoverValue += qty * o.price
	}

	estimatedCashNeeded := 0.0
	for _, o := range buys {
		effectivePrice := o.price * (1.0 + slippage)
		cost := o.qty * o.price * fee
		estimatedCashNeeded += o.qty*effectivePrice + cost
	}
	if estimatedCashNeeded > p.Cash && estimatedCashNeeded > 0 {
		scale := p.Cash / estimatedCashNeeded
		for i := range buys {
			buys[i].qty *= scale
		}
	}

	for _, o := range buys {
		if o.qty <= positionEpsilon {
			continue
		}
		effectivePrice := o.price * (1.0 + slippage)
		cost := o.qty * o.price * fee
		cashRequired := o.qty*effectivePrice + cost
		if cashRequired > p.Cash+1e-6 {
			continue
		}
		pos, held := p.Positions[o.symbol]
		if !held {
			pos = &Position{EntryDate: date}
			p.Positions[o.symbol] = pos
		}
		totalCost := pos.Quantity*pos.AvgPrice + cashRequired
		wasFresh := pos.Quantity <= positionEpsilon
		pos.Quantity += o.qty
		if pos.Quantity > positionEpsilon {
			pos.AvgPrice = totalCost / pos.Quantity
			if wasFresh {
				pos.EntryDate = date
			}
		}
		p.Cash -= cashRequired
		turnoverValue += o.qty * o.price
	}

	turnover := 0.0
	if preTradeEquity > 0 {
		turnover = turnoverValue / preTradeEquity
	}
	return trades, turnover
}
