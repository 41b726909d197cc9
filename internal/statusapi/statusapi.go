// Package statusapi is the read-only operational HTTP surface: host
// health, the last ingestion run's outcome, and the last backtest's
// summary. Grounded on the teacher's internal/server/system_handlers.go
// and server.go (chi router, middleware stack, gopsutil cpu/mem
// sampling), trimmed to the handful of read-only endpoints this
// repository actually needs — no job-trigger or deployment routes.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// IngestSummary is the last ingestion run's outcome, as recorded by
// cmd/ingest after each Orchestrator.Run.
type IngestSummary struct {
	RunID       string    `json:"run_id"`
	Market      string    `json:"market"`
	CompletedAt time.Time `json:"completed_at"`
	TotalRows   int64     `json:"total_rows"`
	Succeeded   int64     `json:"succeeded"`
	Failed      int64     `json:"failed"`
}

// BacktestSummary is a backtest run's headline metrics, published via
// Recorder.RecordBacktest. cmd/backtest does not publish one, so
// last_backtest stays null unless another caller records it.
type BacktestSummary struct {
	RunID            string    `json:"run_id"`
	CompletedAt      time.Time `json:"completed_at"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	NumTrades        int       `json:"num_trades"`
}

// Recorder is the in-memory, concurrency-safe holder for the latest
// summaries each command publishes. The zero value is ready to use.
type Recorder struct {
	mu       sync.Mutex
	ingest   *IngestSummary
	backtest *BacktestSummary
}

// RecordIngest publishes the latest ingestion run summary.
func (r *Recorder) RecordIngest(s IngestSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingest = &s
}

// RecordBacktest publishes the latest backtest run summary.
func (r *Recorder) RecordBacktest(s BacktestSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backtest = &s
}

func (r *Recorder) snapshot() (*IngestSummary, *BacktestSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ingest, r.backtest
}

// handlers bundles everything the HTTP routes close over.
type handlers struct {
	log       zerolog.Logger
	recorder  *Recorder
	startedAt time.Time
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status       string  `json:"status"`
	UptimeSecond float64 `json:"uptime_seconds"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemPercent   float64 `json:"mem_percent"`
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	LastIngest   *IngestSummary   `json:"last_ingest"`
	LastBacktest *BacktestSummary `json:"last_backtest"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cpuPct, memPct := h.systemStats()
	h.writeJSON(w, healthResponse{
		Status:       "ok",
		UptimeSecond: time.Since(h.startedAt).Seconds(),
		CPUPercent:   cpuPct,
		MemPercent:   memPct,
	})
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	ingestSummary, backtestSummary := h.recorder.snapshot()
	h.writeJSON(w, statusResponse{LastIngest: ingestSummary, LastBacktest: backtestSummary})
}

// systemStats samples CPU and memory the way the teacher's
// getSystemStats does: a 100ms CPU sample (the call blocks for that
// window), an instant
// memory read, zero-valued on sampling failure rather than an error
// response (a status page degrading gracefully beats a 500).
func (h *handlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to sample cpu percent")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to sample memory stats")
		return valueOrZero(cpuPercent), 0
	}
	return valueOrZero(cpuPercent), memStat.UsedPercent
}

func valueOrZero(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func (h *handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// NewRouter builds the chi router serving /health and /api/status,
// sharing the middleware stack (request ID, real IP, timeout, CORS)
// the teacher's server.go applies.
func NewRouter(log zerolog.Logger, recorder *Recorder) *chi.Mux {
	h := &handlers{log: log.With().Str("component", "statusapi").Logger(), recorder: recorder, startedAt: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
	})
	return r
}
