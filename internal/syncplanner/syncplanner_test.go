package syncplanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildPlans_ResumeAfterPartialHistory(t *testing.T) {
	today := date("2025-09-14")
	lastTradingDay := date("2025-09-12")
	latestOf := func(symbol string) (time.Time, bool) {
		if symbol == "X" {
			return date("2025-09-10"), true
		}
		return time.Time{}, false
	}

	plans := BuildPlans([]string{"X"}, latestOf, lastTradingDay, today, Bounds{FullBackfillYears: 0})

	require.Len(t, plans, 1)
	assert.Equal(t, "X", plans[0].Symbol)
	assert.True(t, plans[0].Start.Equal(date("2025-09-11")))
}

func TestBuildPlans_SkipsUpToDateSymbol(t *testing.T) {
	today := date("2025-09-14")
	lastTradingDay := date("2025-09-12")
	latestOf := func(symbol string) (time.Time, bool) { return lastTradingDay, true }

	plans := BuildPlans([]string{"X"}, latestOf, lastTradingDay, today, Bounds{})

	assert.Empty(t, plans)
}

func TestBuildPlans_InitialOnlySkipsExistingSymbols(t *testing.T) {
	today := date("2025-09-14")
	lastTradingDay := date("2025-09-12")
	latestOf := func(symbol string) (time.Time, bool) { return date("2020-01-01"), true }

	plans := BuildPlans([]string{"X"}, latestOf, lastTradingDay, today, Bounds{InitialOnly: true})

	assert.Empty(t, plans)
}

func TestBuildPlans_FullBackfillForNewSymbol(t *testing.T) {
	today := date("2025-09-14")
	lastTradingDay := date("2025-09-12")
	latestOf := func(symbol string) (time.Time, bool) { return time.Time{}, false }

	plans := BuildPlans([]string{"NEW"}, latestOf, lastTradingDay, today, Bounds{FullBackfillYears: 5})

	require.Len(t, plans, 1)
	assert.True(t, plans[0].Start.Equal(today.AddDate(-5, 0, 0)))
}

func TestBuildPlans_CatchUpBoundsClampStart(t *testing.T) {
	today := date("2025-09-14")
	lastTradingDay := date("2025-09-12")
	latestOf := func(symbol string) (time.Time, bool) { return time.Time{}, false }

	plans := BuildPlans([]string{"NEW"}, latestOf, lastTradingDay, today, Bounds{
		FullBackfillYears: 5,
		CatchUpMaxDays:    10,
	})

	require.Len(t, plans, 1)
	assert.True(t, plans[0].Start.Equal(today.AddDate(0, 0, -10)))
}

func TestComputeBackfillStart(t *testing.T) {
	today := date("2025-09-14")

	assert.True(t, ComputeBackfillStart(today, time.Time{}, false, 0).Equal(today))
	assert.True(t, ComputeBackfillStart(today, time.Time{}, false, 5).Equal(today.AddDate(-5, 0, 0)))
	assert.True(t, ComputeBackfillStart(today, date("2025-09-01"), true, 5).Equal(date("2025-09-02")))
}
