// Package ratelimit implements the global rate-limit gate spec 4.8
// and §9 describe: a process-wide guarded monotonic timestamp
// enforcing a minimum gap between upstream fetches, not a token
// bucket — the goal is a floor on inter-request spacing, not burst
// capacity.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Gate enforces a minimum 1/RPS gap between any two Wait callers,
// regardless of caller count, with a small randomized jitter added per
// call so concurrent workers don't lock-step.
type Gate struct {
	mu       sync.Mutex
	minGap   time.Duration
	lastCall time.Time
}

// New builds a Gate enforcing a minimum gap of 1/rps seconds between
// calls. rps <= 0 disables the gate (every call proceeds immediately).
func New(rps float64) *Gate {
	var minGap time.Duration
	if rps > 0 {
		minGap = time.Duration(float64(time.Second) / rps)
	}
	return &Gate{minGap: minGap}
}

// Wait blocks until it is this caller's turn, or ctx is cancelled.
// The shared timestamp's mutex is held only long enough to compute the
// wait duration and reserve the next slot; the actual sleep happens
// outside the lock so other callers can compute their own wait
// concurrently, matching spec §5's "wait-time is computed, the mutex
// released during sleep, and then re-acquired to set the new
// timestamp" — here the reservation is made up front to avoid two
// callers both sleeping for the same freed slot.
func (g *Gate) Wait(ctx context.Context) error {
	if g.minGap <= 0 {
		return nil
	}

	g.mu.Lock()
	now := time.Now()
	earliest := g.lastCall.Add(g.minGap)
	var wait time.Duration
	if earliest.After(now) {
		wait = earliest.Sub(now)
	}
	jitter := time.Duration(rand.Int63n(int64(g.minGap) / 4 + 1))
	wait += jitter
	g.lastCall = now.Add(wait)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
