package backtest

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/stockdata/internal/apperr"
)

func dateKey(d time.Time) string { return d.UTC().Format("2006-01-02") }

// rebalanceSchedule computes the rebalance date set from the unique,
// ascending date index per spec 4.10 step 3: daily fires on every
// date, weekly/monthly map calendar anchors onto the latest
// on-or-before index date, "<N>d" fires every Nth index date, and an
// unrecognized frequency is fatal. Anchors resolving to the same
// index date are deduplicated, order preserved.
func rebalanceSchedule(dates []time.Time, frequency string) ([]time.Time, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	freq := strings.ToLower(strings.TrimSpace(frequency))
	switch {
	case freq == "daily":
		out := make([]time.Time, len(dates))
		copy(out, dates)
		return out, nil
	case freq == "weekly":
		return mapAnchorsToIndex(fridaysBetween(dates[0], dates[len(dates)-1]), dates), nil
	case freq == "monthly":
		return mapAnchorsToIndex(monthEndsBetween(dates[0], dates[len(dates)-1]), dates), nil
	case strings.HasSuffix(freq, "d"):
		n, err := strconv.Atoi(strings.TrimSuffix(freq, "d"))
		if err != nil || n < 1 {
			return nil, apperr.NewInvalidInput("unsupported rebalance frequency %q", frequency)
		}
		var out []time.Time
		for i := 0; i < len(dates); i += n {
			out = append(out, dates[i])
		}
		return out, nil
	default:
		return nil, apperr.NewInvalidInput("unsupported rebalance frequency %q", frequency)
	}
}

func fridaysBetween(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Friday {
			out = append(out, d)
		}
	}
	return out
}

func monthEndsBetween(start, end time.Time) []time.Time {
	var out []time.Time
	y, m, _ := start.Date()
	cur := time.Date(y, m, 1, 0, 0, 0, 0, start.Location())
	for !cur.After(end) {
		lastDay := cur.AddDate(0, 1, -1)
		out = append(out, lastDay)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// mapAnchorsToIndex maps each calendar anchor onto the latest index
// date at or before it, dropping anchors with no eligible index date
// and deduplicating the result while preserving first-seen order.
func mapAnchorsToIndex(anchors, dates []time.Time) []time.Time {
	var out []time.Time
	seen := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		i := latestOnOrBefore(dates, a)
		if i < 0 {
			continue
		}
		key := dateKey(dates[i])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, dates[i])
	}
	return out
}

func latestOnOrBefore(dates []time.Time, anchor time.Time) int {
	i := sort.Search(len(dates), func(i int) bool { return dates[i].After(anchor) })
	if i == 0 {
		return -1
	}
	return i - 1
}
