// Package ingest implements the Ingestion Orchestrator (spec 4.8):
// deterministic sharding, a bounded worker pool drawing from the sync
// planner's output, global rate limiting, per-symbol result capture,
// and the trading-day/sentinel gate on "today" fetches.
package ingest

import (
	"context"
	"crypto/md5"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/stockdata/internal/calendar"
	"github.com/aristath/stockdata/internal/providers"
	"github.com/aristath/stockdata/internal/quotes"
	"github.com/aristath/stockdata/internal/ratelimit"
	"github.com/aristath/stockdata/internal/syncplanner"
	"github.com/aristath/stockdata/internal/utils"
)

// errSampleCap bounds the orchestrator's captured-failure sample
// (spec 4.8: "bounded to 10 entries").
const errSampleCap = 10

// Shard reports whether symbol belongs to shardIndex out of
// shardTotal, using the full 128-bit md5(uppercase(strip(symbol)))
// digest mod shardTotal so the assignment is identical across runs,
// processes, and languages (spec 4.8). The digest is treated as one
// big-endian integer, matching int(md5(...).hexdigest(), 16) %
// shard_total in the Python reference rather than truncating to its
// high 64 bits.
func Shard(symbol string, shardTotal, shardIndex int) bool {
	if shardTotal <= 1 {
		return true
	}
	sum := md5.Sum([]byte(strings.ToUpper(strings.TrimSpace(symbol))))
	digest := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int).Mod(digest, big.NewInt(int64(shardTotal)))
	return int(mod.Int64()) == shardIndex
}

// SymbolResult captures one symbol's ingestion outcome.
type SymbolResult struct {
	Symbol    string
	RowsCount int
	Err       error
}

// Result is the aggregate orchestrator output: total rows upserted,
// succeeded and failed symbol counts, and a bounded sample of
// failures. It carries no companies-upserted count; this orchestrator
// writes quote rows only.
type Result struct {
	RunID        string
	TotalRows    int64
	Failed       int64
	Succeeded    int64
	ErrorsSample []SymbolResult
}

// Config bundles the orchestrator's tunables (spec §6).
type Config struct {
	ShardTotal     int
	ShardIndex     int
	MaxConcurrency int
	UpstreamRPS    float64
	Bounds         syncplanner.Bounds
}

// Orchestrator drives one ingestion run: shard -> plan -> fetch ->
// upsert, bounded by a worker pool and a shared rate-limit gate.
type Orchestrator struct {
	cfg    Config
	chain  *providers.Chain
	quoteS *quotes.Service
	cal    *calendar.Calendar
	gate   *ratelimit.Gate
	log    zerolog.Logger
}

// New builds an Orchestrator.
func New(cfg Config, chain *providers.Chain, quoteS *quotes.Service, cal *calendar.Calendar, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		chain:  chain,
		quoteS: quoteS,
		cal:    cal,
		gate:   ratelimit.New(cfg.UpstreamRPS),
		log:    log.With().Str("component", "ingest_orchestrator").Logger(),
	}
}

// errSample is a bounded, mutex-guarded capture buffer for per-symbol
// failures (spec §5 "Shared resources").
type errSample struct {
	mu   sync.Mutex
	rows []SymbolResult
}

func (b *errSample) add(r SymbolResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rows) < errSampleCap {
		b.rows = append(b.rows, r)
	}
}

func (b *errSample) snapshot() []SymbolResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SymbolResult, len(b.rows))
	copy(out, b.rows)
	return out
}

// Run shards symbols, builds the sync plan, and fetches+upserts
// through a bounded worker pool. market drives the trading-day and
// sentinel gate for "today"; latestOf supplies each symbol's most
// recent stored date to the planner.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, market string, today time.Time, latestOf syncplanner.LatestFunc) (Result, error) {
	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Logger()
	defer utils.OperationTimer("ingest_run", log)()

	shardSymbols := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if Shard(s, o.cfg.ShardTotal, o.cfg.ShardIndex) {
			shardSymbols = append(shardSymbols, s)
		}
	}

	lastTradingDay := o.cal.LastTradingDay(market, today)
	skipToday := !o.todayIsReady(ctx, market, today, lastTradingDay)

	plans := syncplanner.BuildPlans(shardSymbols, latestOf, lastTradingDay, today, o.cfg.Bounds)

	var succeeded, failed, totalRows int64
	samples := &errSample{}

	sem := make(chan struct{}, maxInt(o.cfg.MaxConcurrency, 1))
	var wg sync.WaitGroup
	for _, plan := range plans {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(plan syncplanner.Plan) {
			defer wg.Done()
			defer func() { <-sem }()

			end := today
			if skipToday {
				end = today.AddDate(0, 0, -1)
			}
			if plan.Start.After(end) {
				return
			}

			if err := o.gate.Wait(ctx); err != nil {
				atomic.AddInt64(&failed, 1)
				samples.add(SymbolResult{Symbol: plan.Symbol, Err: err})
				return
			}

			rows := o.chain.Load(ctx, plan.Symbol, plan.Start, end)
			n, err := o.quoteS.UpsertQuotes(ctx, rows)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				samples.add(SymbolResult{Symbol: plan.Symbol, Err: err})
				return
			}
			atomic.AddInt64(&succeeded, 1)
			atomic.AddInt64(&totalRows, int64(n))
		}(plan)
	}
	wg.Wait()

	log.Info().
		Int("planned", len(plans)).
		Int64("succeeded", succeeded).
		Int64("failed", failed).
		Bool("skip_today", skipToday).
		Msg("ingestion run complete")

	return Result{
		RunID:        runID,
		TotalRows:    totalRows,
		Failed:       failed,
		Succeeded:    succeeded,
		ErrorsSample: samples.snapshot(),
	}, nil
}

// todayIsReady reports whether fetching "today" is safe: the market
// must be open and the configured sentinel symbol must already have
// today's row upstream. When lastTradingDay is before today, today is
// simply not a trading day and is skipped without consulting the
// sentinel.
func (o *Orchestrator) todayIsReady(ctx context.Context, market string, today, lastTradingDay time.Time) bool {
	if lastTradingDay.Before(truncateDay(today)) {
		return false
	}
	sentinel := o.cal.Sentinel(market)
	if sentinel == "" {
		return true
	}
	rows := o.chain.Load(ctx, sentinel, today, today)
	for _, r := range rows {
		if truncateDay(r.Date).Equal(truncateDay(today)) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CatalogGating filters a candidate symbol list down to those whose
// inferred market matches the requested market, used by callers that
// need to run one orchestrator instance per market (spec 4.8's
// calendar is per-market).
func CatalogGating(symbols []string, market string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if m, ok := calendar.InferMarketFromSymbol(s); !ok || m == market {
			out = append(out, s)
		}
	}
	return out
}
