// Package syncplanner implements the Sync Planner (spec 4.7):
// deciding, per symbol, whether a backfill is needed and where it
// should start.
package syncplanner

import "time"

// Plan is one symbol's backfill instruction: fetch from Start through
// "today", inclusive.
type Plan struct {
	Symbol string
	Start  time.Time
}

// Bounds configures the planner's catch-up limits (spec 4.7, §6
// FULL_BACKFILL_YEARS/CATCH_UP_MAX_DAYS/CATCH_UP_MAX_YEARS).
type Bounds struct {
	FullBackfillYears int
	InitialOnly       bool
	CatchUpMaxDays    int
	CatchUpMaxYears   int
}

// LatestFunc returns the most recent stored quote date for a symbol,
// and ok=false if none exists.
type LatestFunc func(symbol string) (time.Time, bool)

// ComputeBackfillStart implements spec 4.7's compute_backfill_start:
// with no prior data, start `fullBackfillYears` back from today (or
// today itself when years is 0); otherwise resume the day after the
// latest stored quote.
func ComputeBackfillStart(today time.Time, latest time.Time, hasLatest bool, fullBackfillYears int) time.Time {
	if !hasLatest {
		if fullBackfillYears > 0 {
			return today.AddDate(-fullBackfillYears, 0, 0)
		}
		return today
	}
	return latest.AddDate(0, 0, 1)
}

// BuildPlans evaluates every symbol against lastTradingDay/today and
// the configured bounds, emitting a Plan only for symbols that are not
// already up to date and whose computed start is not beyond today.
func BuildPlans(symbols []string, latestOf LatestFunc, lastTradingDay, today time.Time, bounds Bounds) []Plan {
	plans := make([]Plan, 0, len(symbols))
	for _, symbol := range symbols {
		latest, hasLatest := latestOf(symbol)
		if bounds.InitialOnly && hasLatest {
			continue
		}
		if hasLatest && !latest.Before(lastTradingDay) {
			continue
		}

		start := ComputeBackfillStart(today, latest, hasLatest, bounds.FullBackfillYears)
		if bounds.CatchUpMaxDays > 0 {
			floor := today.AddDate(0, 0, -bounds.CatchUpMaxDays)
			if start.Before(floor) {
				start = floor
			}
		}
		if bounds.CatchUpMaxYears > 0 {
			floor := today.AddDate(-bounds.CatchUpMaxYears, 0, 0)
			if start.Before(floor) {
				start = floor
			}
		}
		if start.After(today) {
			continue
		}
		plans = append(plans, Plan{Symbol: symbol, Start: start})
	}
	return plans
}
