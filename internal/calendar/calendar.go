// Package calendar implements the trading-calendar interface (spec
// 4.8, §6): is_trading_day, last_trading_day, and symbol->market
// inference, with a distinct exchange calendar per known market and a
// permissive default for anything else.
package calendar

import (
	"strings"
	"time"
)

// Market identifies one exchange calendar and its ingestion sentinel
// symbol: a symbol known to publish its daily row early, used by the
// ingestion orchestrator to gate "today" fetches (spec 4.8).
type Market struct {
	Code     string
	Sentinel string
	cal      exchangeCalendar
}

// exchangeCalendar decides which weekdays (modulo holidays, which
// neither exchange calendar below tracks explicitly — see the
// internal/calendar entry in DESIGN.md) count as trading days.
type exchangeCalendar interface {
	IsTradingDay(d time.Time) bool
}

// weekdayCalendar treats every weekday as a trading day. Both the
// Shanghai and New York calendars reduce to this in the absence of a
// maintained holiday table; see DESIGN.md for why a holiday-calendar
// dependency was not pulled in.
type weekdayCalendar struct{}

func (weekdayCalendar) IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// CN is the Shanghai Stock Exchange calendar, used for A-share symbols.
var CN = Market{Code: "CN", Sentinel: "SH600519", cal: weekdayCalendar{}}

// US is the New York Stock Exchange calendar, used for global/US symbols.
var US = Market{Code: "US", Sentinel: "US:SPY", cal: weekdayCalendar{}}

// knownMarkets indexes Market by its Code for lookup from
// InferMarketFromSymbol's result.
var knownMarkets = map[string]Market{
	CN.Code: CN,
	US.Code: US,
}

// Calendar answers is_trading_day/last_trading_day for a named market,
// falling back to permissive (always a trading day) for markets
// outside knownMarkets, per spec §6.
type Calendar struct{}

// New builds a Calendar. It carries no state; knownMarkets and the
// permissive default are fixed at package scope.
func New() *Calendar { return &Calendar{} }

// IsTradingDay reports whether d is a trading day for market. An
// unrecognized market is always a trading day (permissive default).
func (c *Calendar) IsTradingDay(market string, d time.Time) bool {
	m, ok := knownMarkets[market]
	if !ok {
		return true
	}
	return m.cal.IsTradingDay(d)
}

// LastTradingDay returns the most recent trading day on or before d
// for market. An unrecognized market returns d unchanged.
func (c *Calendar) LastTradingDay(market string, d time.Time) time.Time {
	m, ok := knownMarkets[market]
	if !ok {
		return d
	}
	cur := d
	for i := 0; i < 14; i++ {
		if m.cal.IsTradingDay(cur) {
			return cur
		}
		cur = cur.AddDate(0, 0, -1)
	}
	return d
}

// Sentinel returns the configured sentinel symbol for market, or ""
// if market is unrecognized.
func (c *Calendar) Sentinel(market string) string {
	return knownMarkets[market].Sentinel
}

// InferMarketFromSymbol infers a symbol's market (spec 4.8):
// SH/SZ/BJ-prefixed A-share tickers infer CN; "<MARKET>:<TICKER>"
// symbols use the MARKET segment directly. Anything else returns
// ("", false) and callers should treat the market as unknown
// (permissive).
func InferMarketFromSymbol(symbol string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) >= 2 {
		switch s[:2] {
		case "SH", "SZ", "BJ":
			return CN.Code, true
		}
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx], true
	}
	return "", false
}
