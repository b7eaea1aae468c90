// Package ledger holds the per-junction visit counters shared by every walker
// on the same graph. Walkers read counts to pick the least-visited neighbor and
// increment on arrival, so the counts spread foot traffic across the graph.
package ledger

import (
	"fmt"
	"sync"
)

// Ledger is a fixed-length array of visit counters, one per junction.
//
// The mutex keeps Visit atomic with respect to concurrent readers. Under the
// single-threaded stepping driver it is uncontended; ordering between walkers
// still decides which counts a selection sees.
type Ledger struct {
	mu     sync.RWMutex
	counts []int
}

// New returns a ledger with n zeroed counters.
func New(n int) *Ledger {
	return &Ledger{counts: make([]int, n)}
}

// Len returns the number of junctions the ledger was sized for.
func (l *Ledger) Len() int { return len(l.counts) }

// Visit records one arrival at junction i and returns the new count.
func (l *Ledger) Visit(i int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.counts) {
		return 0, fmt.Errorf("visit junction %d: ledger has %d junctions", i, len(l.counts))
	}
	l.counts[i]++
	return l.counts[i], nil
}

// Count returns the visits recorded for junction i, or 0 if out of range.
func (l *Ledger) Count(i int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.counts) {
		return 0
	}
	return l.counts[i]
}

// CountsOf returns the counts for idx in one read.
func (l *Ledger) CountsOf(idx []int) []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, len(idx))
	for k, i := range idx {
		if i >= 0 && i < len(l.counts) {
			out[k] = l.counts[i]
		}
	}
	return out
}

// Counts returns a copy of every counter.
func (l *Ledger) Counts() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]int(nil), l.counts...)
}

// Total returns the sum of all counters.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, c := range l.counts {
		n += c
	}
	return n
}
