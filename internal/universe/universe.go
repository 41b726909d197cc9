// Package universe implements the Universe Selector (spec 4.9):
// threshold filtering over catalog candidates' fundamentals, with a
// permissive/strict mode switch for missing metrics and a detailed
// per-candidate diagnostic trace.
package universe

import (
	"context"
	"sort"

	"github.com/aristath/stockdata/internal/catalog"
	"github.com/aristath/stockdata/internal/company"
	"github.com/aristath/stockdata/internal/records"
)

// Mode controls how a missing metric is treated (spec 4.9 / DESIGN.md
// Open Question: the source has two divergent versions; both are
// exposed as a configuration switch rather than guessed at).
type Mode int

const (
	// Permissive: a missing metric passes unless present and failing.
	Permissive Mode = iota
	// Strict: a missing metric fails the check outright.
	Strict
)

// Thresholds is the optional threshold bundle spec 4.9 lists. A zero
// value (nil pointer) means that check is not applied.
type Thresholds struct {
	MarketCapMin     *float64
	PEMax            *float64
	EPSGrowthMin     *float64
	ROEMin           *float64
	RevenueGrowthMin *float64
	BetaMin          *float64
	BetaMax          *float64
}

// MetricCheck records one threshold evaluation for diagnostics.
type MetricCheck struct {
	Metric  string
	Value   *float64 // nil when the metric (and any derivation) was unavailable
	Derived bool
	Passed  bool
}

// EvaluationTrace is the per-candidate diagnostic record spec 4.9
// calls for.
type EvaluationTrace struct {
	Symbol string
	Checks []MetricCheck
	Passed bool
}

// Selector evaluates catalog candidates against Thresholds.
type Selector struct {
	catalogS *catalog.Service
	companyS *company.Service
}

// New builds a Selector over the catalog and company services.
func New(catalogS *catalog.Service, companyS *company.Service) *Selector {
	return &Selector{catalogS: catalogS, companyS: companyS}
}

// SelectResult is Select's return value: the ordered candidate list
// (length <= limit) plus the full diagnostic trace for every
// candidate considered.
type SelectResult struct {
	Symbols []string
	Traces  []EvaluationTrace
}

// Select loads candidates from the catalog (scan fallback permitted
// when market/status filters leave no usable index), batch-fetches
// their fundamentals, and evaluates each against thresholds.
func (s *Selector) Select(ctx context.Context, market string, thresholds Thresholds, mode Mode, limit int) (SelectResult, error) {
	candidates, err := s.catalogS.QueryCatalog(ctx, "", market, records.StatusActive, 0)
	if err != nil {
		return SelectResult{}, err
	}
	if len(candidates) == 0 {
		candidates, err = s.catalogS.ScanCatalog(ctx, catalog.CatalogFilter{Market: market, Status: records.StatusActive}, 0)
		if err != nil {
			return SelectResult{}, err
		}
	}

	symbols := make([]string, 0, len(candidates))
	for _, c := range candidates {
		symbols = append(symbols, c.Symbol)
	}
	fundamentals, err := s.companyS.BatchGetCompanies(ctx, symbols)
	if err != nil {
		return SelectResult{}, err
	}

	traces := make([]EvaluationTrace, 0, len(symbols))
	passed := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		c, hasCompany := fundamentals[symbol]
		trace := evaluate(symbol, c, hasCompany, thresholds, mode)
		traces = append(traces, trace)
		if trace.Passed {
			passed = append(passed, symbol)
		}
	}

	sort.Strings(passed)
	if limit > 0 && len(passed) > limit {
		passed = passed[:limit]
	}
	return SelectResult{Symbols: passed, Traces: traces}, nil
}

func evaluate(symbol string, c records.Company, hasCompany bool, t Thresholds, mode Mode) EvaluationTrace {
	var checks []MetricCheck
	allPassed := true

	check := func(name string, value *float64, derived bool, cmp func(float64) bool) {
		if value == nil {
			passed := mode == Permissive
			checks = append(checks, MetricCheck{Metric: name, Value: nil, Derived: derived, Passed: passed})
			if !passed {
				allPassed = false
			}
			return
		}
		passed := cmp(*value)
		checks = append(checks, MetricCheck{Metric: name, Value: value, Derived: derived, Passed: passed})
		if !passed {
			allPassed = false
		}
	}

	metric := func(name string) *float64 {
		if !hasCompany {
			return nil
		}
		if v, ok := c.Metrics[name]; ok {
			return &v
		}
		return nil
	}

	price := metric("price")
	eps := metric("eps")
	netIncome := metric("net_income")
	equity := metric("equity")
	shares := metric("shares_outstanding")

	marketCap, marketCapDerived := withDerivation(metric("market_cap"), price, shares, func(p, sh float64) float64 { return p * sh })
	pe, peDerived := withDerivation(metric("pe"), price, eps, func(p, e float64) float64 {
		if e == 0 {
			return 0
		}
		return p / e
	})
	roe, roeDerived := withDerivation(metric("roe"), netIncome, equity, func(ni, eq float64) float64 {
		if eq == 0 {
			return 0
		}
		return ni / eq
	})

	if t.MarketCapMin != nil {
		check("market_cap", marketCap, marketCapDerived, func(v float64) bool { return v >= *t.MarketCapMin })
	}
	if t.PEMax != nil {
		check("pe", pe, peDerived, func(v float64) bool { return v <= *t.PEMax })
	}
	if t.EPSGrowthMin != nil {
		check("eps_growth", metric("eps_growth"), false, func(v float64) bool { return v >= *t.EPSGrowthMin })
	}
	if t.ROEMin != nil {
		check("roe", roe, roeDerived, func(v float64) bool { return v >= *t.ROEMin })
	}
	if t.RevenueGrowthMin != nil {
		check("revenue_growth", metric("revenue_growth"), false, func(v float64) bool { return v >= *t.RevenueGrowthMin })
	}
	if t.BetaMin != nil || t.BetaMax != nil {
		check("beta", metric("beta"), false, func(v float64) bool {
			if t.BetaMin != nil && v < *t.BetaMin {
				return false
			}
			if t.BetaMax != nil && v > *t.BetaMax {
				return false
			}
			return true
		})
	}

	return EvaluationTrace{Symbol: symbol, Checks: checks, Passed: allPassed}
}

// withDerivation returns reported if non-nil; otherwise attempts to
// derive it from a and b via fn, returning (derived, true) when both
// inputs are available.
func withDerivation(reported, a, b *float64, fn func(a, b float64) float64) (*float64, bool) {
	if reported != nil {
		return reported, false
	}
	if a == nil || b == nil {
		return nil, false
	}
	v := fn(*a, *b)
	return &v, true
}
