// Package apperr defines the tagged error kinds shared across the
// ingestion core and the backtest core. Each kind is a distinct Go
// type so callers can discriminate with errors.As instead of string
// matching, mirroring the sum-type error model the system was
// designed around.
package apperr

import "fmt"

// InvalidInput marks a user-visible, fatal configuration or input
// error: a missing required column, an unparsable rebalance
// frequency, a bad configuration value, and the like. An empty
// backtest universe is reported as a BacktestError instead.
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string { return fmt.Sprintf("invalid input: %s", e.Reason) }

// NewInvalidInput builds an InvalidInput error with a formatted reason.
func NewInvalidInput(format string, args ...any) error {
	return &InvalidInput{Reason: fmt.Sprintf(format, args...)}
}

// StoreError wraps a fault from the keyed persistence layer
// (throttling, validation, or a transient transport failure). Batch
// writes retry unprocessed keys before this is ever surfaced.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Cause) }
func (e *StoreError) Unwrap() error { return e.Cause }

// NewStoreError wraps cause as a StoreError for operation op.
func NewStoreError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{Op: op, Cause: cause}
}

// ProviderError is a soft failure: a single upstream source could not
// be reached or returned unusable data. The orchestrator advances to
// the next source in the chain instead of failing the symbol.
type ProviderError struct {
	Source string
	Symbol string
	Cause  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: symbol %s: %v", e.Source, e.Symbol, e.Cause)
}
func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause as a ProviderError for the given source/symbol.
func NewProviderError(source, symbol string, cause error) error {
	return &ProviderError{Source: source, Symbol: symbol, Cause: cause}
}

// StrategyError is fatal for the run: the strategy cannot operate
// given the context it was handed (missing indicators, bad state).
type StrategyError struct {
	Reason string
}

func (e *StrategyError) Error() string { return fmt.Sprintf("strategy: %s", e.Reason) }

// NewStrategyError builds a StrategyError with a formatted reason.
func NewStrategyError(format string, args ...any) error {
	return &StrategyError{Reason: fmt.Sprintf(format, args...)}
}

// BacktestError is fatal for the run: a configuration, schedule, or
// data precondition was violated. Date/Symbol are populated when the
// failure can be pinned to one.
type BacktestError struct {
	Reason string
	Date   string
	Symbol string
}

func (e *BacktestError) Error() string {
	if e.Date == "" && e.Symbol == "" {
		return fmt.Sprintf("backtest: %s", e.Reason)
	}
	return fmt.Sprintf("backtest: %s (date=%s symbol=%s)", e.Reason, e.Date, e.Symbol)
}

// NewBacktestError builds a BacktestError with a formatted reason and no offending date/symbol.
func NewBacktestError(format string, args ...any) error {
	return &BacktestError{Reason: fmt.Sprintf(format, args...)}
}

// NewBacktestErrorAt builds a BacktestError pinned to a date/symbol.
func NewBacktestErrorAt(date, symbol, format string, args ...any) error {
	return &BacktestError{Reason: fmt.Sprintf(format, args...), Date: date, Symbol: symbol}
}
