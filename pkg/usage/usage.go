// Package usage accumulates cost and token counts across the workers of one run.
package usage

import (
	"fmt"
	"math"
	"sync"
)

// nanosPerUSD is the fixed-point scale used for cost so that sums are exact
// and independent of the order deltas are recorded in.
const nanosPerUSD = 1e9

// Delta is the (cost, tokens) pair attributable to one worker invocation.
type Delta struct {
	CostUSD float64 `json:"cost_usd"`
	Tokens  int64   `json:"tokens"`
}

// Add returns d + o. Cost is summed in fixed point.
func (d Delta) Add(o Delta) Delta {
	return fromNanos(toNanos(d.CostUSD)+toNanos(o.CostUSD), d.Tokens+o.Tokens)
}

// IsZero reports whether d carries no usage.
func (d Delta) IsZero() bool {
	return d.CostUSD == 0 && d.Tokens == 0
}

func (d Delta) String() string {
	return fmt.Sprintf("$%.4f / %d tokens", d.CostUSD, d.Tokens)
}

func toNanos(usd float64) int64 {
	return int64(math.Round(usd * nanosPerUSD))
}

func fromNanos(nanos, tokens int64) Delta {
	return Delta{CostUSD: float64(nanos) / nanosPerUSD, Tokens: tokens}
}

// Accumulator is a running total of Deltas. The zero value is ready to use
// and safe for concurrent Record calls.
type Accumulator struct {
	mu        sync.Mutex
	costNanos int64
	tokens    int64
	records   int
}

// Record adds delta to the running total.
func (a *Accumulator) Record(delta Delta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.costNanos += toNanos(delta.CostUSD)
	a.tokens += delta.Tokens
	a.records++
}

// Totals returns the current sum. It never resets.
func (a *Accumulator) Totals() Delta {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fromNanos(a.costNanos, a.tokens)
}

// Count returns how many deltas have been recorded.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records
}

// Recorder is anything deltas can be recorded into.
type Recorder interface {
	Record(delta Delta)
}

// Tee records into every recorder, so a worker can feed both its own counter
// and the run-wide accumulator.
type Tee []Recorder

// Record implements Recorder.
func (t Tee) Record(delta Delta) {
	for _, r := range t {
		if r != nil {
			r.Record(delta)
		}
	}
}
