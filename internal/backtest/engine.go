package backtest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aristath/stockdata/internal/panel"
)

// State is the engine's run state machine (spec 4.10): Constructed ->
// Initialized -> Running -> Done|Failed.
type State int

const (
	Constructed State = iota
	Initialized
	Running
	Done
	Failed
)

// PriceLoader loads the price panel an engine run needs; satisfied by
// QuotesPriceLoader (which wraps internal/quotes.Service.GetPricePanel)
// and by CachedPanelLoader for CLI reruns.
type PriceLoader interface {
	LoadPanel(ctx context.Context, symbols []string, start, end time.Time) (*panel.Panel, error)
}

// FundamentalLoader loads a symbol -> metric -> value map, optional:
// a nil loader yields an empty fundamentals set.
type FundamentalLoader interface {
	LoadFundamentals(ctx context.Context, symbols []string) (map[string]map[string]float64, error)
}

// UniverseResolver supplies a dynamic universe when the caller passes
// none explicitly (spec 4.10 step 1).
type UniverseResolver interface {
	ResolveUniverse(ctx context.Context) ([]string, error)
}

// Engine runs one backtest for a Strategy over a resolved universe
// and price panel.
type Engine struct {
	cfg      Config
	strategy Strategy
	state    State
	log      zerolog.Logger
}

// New validates cfg and constructs an Engine bound to strategy.
func New(cfg Config, strategy Strategy, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		strategy: strategy,
		state:    Constructed,
		log:      log.With().Str("component", "backtest_engine").Logger(),
	}, nil
}

// State reports the engine's current run state.
func (e *Engine) State() State { return e.state }

// resolveUniverse normalizes and deduplicates caller symbols
// (upper-case, trimmed, order-preserving), falling back to resolver
// when caller supplies none. An empty result after resolution is
// fatal (spec 4.10 step 1).
func resolveUniverse(ctx context.Context, caller []string, resolver UniverseResolver) ([]string, error) {
	if len(caller) > 0 {
		return normalizeSymbols(caller), nil
	}
	if resolver == nil {
		return nil, apperr.NewBacktestError("universe is empty: provide symbols or a universe resolver")
	}
	resolved, err := resolver.ResolveUniverse(ctx)
	if err != nil {
		return nil, apperr.NewBacktestError("resolve universe: %v", err)
	}
	return normalizeSymbols(resolved), nil
}

func normalizeSymbols(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.ToUpper(strings.TrimSpace(s))
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}

// effectivePriceSnapshot builds symbol -> resolved price for date,
// applying price_field falling back to fallback_price_field (spec
// 4.11's per-symbol price resolution, hoisted to the engine so
// Portfolio operates on one already-resolved map).
func effectivePriceSnapshot(p *panel.Panel, date time.Time, symbols []string, priceField, fallbackField string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if v, ok := p.Field(date, symbol, priceField); ok {
			out[symbol] = v
			continue
		}
		if v, ok := p.Field(date, symbol, fallbackField); ok {
			out[symbol] = v
		}
	}
	return out
}

// Run executes the event loop described in spec 4.10 step 5 and
// assembles the final Result. universe may be empty to defer
// resolution to resolver (nil is allowed when the caller always
// supplies symbols explicitly).
func (e *Engine) Run(ctx context.Context, universe []string, resolver UniverseResolver, prices PriceLoader, fundamentals FundamentalLoader) (*Result, error) {
	if e.state != Constructed {
		return nil, apperr.NewBacktestError("engine must be in Constructed state to run, got %v", e.state)
	}

	resolvedUniverse, err := resolveUniverse(ctx, universe, resolver)
	if err != nil {
		e.state = Failed
		return nil, err
	}
	if len(resolvedUniverse) == 0 {
		e.state = Failed
		return nil, apperr.NewBacktestError("universe is empty after normalization")
	}

	p, err := prices.LoadPanel(ctx, resolvedUniverse, e.cfg.StartDate, e.cfg.EndDate)
	if err != nil {
		e.state = Failed
		return nil, apperr.NewBacktestError("load price panel: %v", err)
	}
	p = p.Restrict(e.cfg.StartDate, e.cfg.EndDate)
	if p.Empty() {
		e.state = Failed
		return nil, apperr.NewBacktestError("no price data found within the requested window")
	}
	if !p.HasField(e.cfg.PriceField) && !p.HasField(e.cfg.FallbackPriceField) {
		e.state = Failed
		return nil, apperr.NewBacktestError("neither price_field %q nor fallback_price_field %q present", e.cfg.PriceField, e.cfg.FallbackPriceField)
	}

	var fundamentalData map[string]map[string]float64
	if fundamentals != nil {
		fundamentalData, err = fundamentals.LoadFundamentals(ctx, resolvedUniverse)
		if err != nil {
			e.state = Failed
			return nil, apperr.NewBacktestError("load fundamentals: %v", err)
		}
	}

	schedule, err := rebalanceSchedule(p.Dates(), e.cfg.RebalanceFrequency)
	if err != nil {
		e.state = Failed
		return nil, err
	}
	rebalanceSet := make(map[string]bool, len(schedule))
	for _, d := range schedule {
		rebalanceSet[dateKey(d)] = true
	}

	sctx := &StrategyContext{
		Prices:       p,
		Fundamentals: fundamentalData,
		Config:       e.cfg,
		Universe:     resolvedUniverse,
	}
	if err := e.strategy.Initialize(sctx); err != nil {
		e.state = Failed
		return nil, apperr.NewStrategyError("initialize: %v", err)
	}
	e.state = Initialized
	e.state = Running

	portfolio := NewPortfolio(e.cfg)
	var equityCurve []EquityPoint
	var trades []TradeRecord
	var totalTurnover float64

	for _, date := range p.Dates() {
		if err := ctx.Err(); err != nil {
			e.state = Failed
			return nil, apperr.NewBacktestErrorAt(date.Format("2006-01-02"), "", "context cancelled: %v", err)
		}

		priceSnapshot := effectivePriceSnapshot(p, date, resolvedUniverse, e.cfg.PriceField, e.cfg.FallbackPriceField)
		portfolio.MarkToMarket(priceSnapshot)

		if rebalanceSet[dateKey(date)] {
			sctx.CurrentDate = date
			weights, err := e.strategy.OnRebalance(date, sctx, priceSnapshot, portfolio.Snapshot(date))
			if err != nil {
				e.state = Failed
				return nil, apperr.NewStrategyError("on_rebalance %s: %v", date.Format("2006-01-02"), err)
			}
			closed, turnover := portfolio.Rebalance(weights, priceSnapshot, date)
			trades = append(trades, closed...)
			totalTurnover += turnover
			portfolio.MarkToMarket(priceSnapshot)
		}

		equityCurve = append(equityCurve, EquityPoint{Date: date, Value: portfolio.TotalValue})
	}

	e.state = Done
	runID := uuid.NewString()
	e.log.Info().Str("run_id", runID).Int("dates", len(p.Dates())).Int("trades", len(trades)).Msg("backtest run complete")
	return assembleResult(runID, e.cfg, equityCurve, trades, totalTurnover, portfolio.Snapshot(p.Dates()[len(p.Dates())-1])), nil
}
