// Package mobility moves a walker along a junction graph.
//
// A Walker starts at junction 0 and repeatedly heads for the neighbor that
// the whole population has visited least, breaking ties at random. It
// travels each segment in a straight line at constant speed. Visit counts are
// kept in a ledger shared by every walker on the same graph, so walkers
// spread out over the street network without a fixed schedule.
//
// The host drives a walker through the Mobility interface: Initialize once,
// then Advance at each simulated instant it wants a position for.
package mobility

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/cxd309/junction-walk/internal/geo"
	"github.com/cxd309/junction-walk/internal/graph"
	"github.com/cxd309/junction-walk/internal/ledger"
)

var (
	// ErrInconsistentTime means interpolation was asked to run at or past a
	// scheduled arrival without taking the arrival branch. It points at a
	// scheduling bug in the host and is not recoverable.
	ErrInconsistentTime = errors.New("mobility: interpolation at or past scheduled arrival")

	// ErrEmptyGraph is returned by Initialize when the trace has no junctions.
	ErrEmptyGraph = errors.New("mobility: trace has no junctions")

	// ErrNotInitialized is returned by Advance before Initialize succeeds.
	ErrNotInitialized = errors.New("mobility: walker not initialized")

	// ErrReferenceConflict is returned when a walker's projection settings
	// disagree with how the shared graph has already been projected.
	ErrReferenceConflict = errors.New("mobility: projection reference conflicts with shared graph")

	// ErrProjectAfterUse is returned when a walker would project a graph
	// that other walkers are already moving on in geodetic coordinates.
	ErrProjectAfterUse = errors.New("mobility: graph already in use unprojected")
)

// NoChange is the scheduled-arrival sentinel of a walker that will never
// arrive anywhere again.
const NoChange time.Duration = -1

// Mobility is what the host's scheduler calls.
type Mobility interface {
	// Initialize loads the graph, places the walker at junction 0 and
	// schedules its first segment. Any error is fatal for the run.
	Initialize(ctx context.Context, now time.Duration) error

	// Advance moves the walker to simulated time now and returns its
	// position. Times must not decrease between calls.
	Advance(now time.Duration) (orb.Point, error)

	// MaxSpeed returns the configured speed.
	MaxSpeed() float64
}

// Source provides shared graphs and their ledgers. *tracecache.Registry
// implements it.
type Source interface {
	GetFile(ctx context.Context, id string) (*graph.Graph, error)
	ConvertGeoToLocal(id string, refLat, refLon float64)
	Reference(id string) (geo.Reference, bool)
	Ledger(id string) (*ledger.Ledger, error)
}

// IntUniform draws uniformly from the inclusive range [a, b].
type IntUniform interface {
	IntUniform(a, b int) int
}

// Rand is a seeded IntUniform backed by a PCG stream.
type Rand struct {
	r *rand.Rand
}

// NewRand returns a generator for (seed, stream). Walkers in one run share
// the seed and take distinct streams.
func NewRand(seed, stream uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, stream))}
}

func (r *Rand) IntUniform(a, b int) int {
	if b <= a {
		return a
	}
	return a + r.r.IntN(b-a+1)
}

// SelectNext picks the next junction among neighbors: one of those with the
// fewest recorded visits, chosen uniformly by rng. It reports false when
// there are no neighbors.
func SelectNext(neighbors []int, l *ledger.Ledger, rng IntUniform) (int, bool) {
	if len(neighbors) == 0 {
		return -1, false
	}
	counts := l.CountsOf(neighbors)
	fewest := lo.Min(counts)
	candidates := lo.Filter(neighbors, func(_ int, k int) bool {
		return counts[k] == fewest
	})
	if len(candidates) == 0 {
		return neighbors[0], true
	}
	return candidates[rng.IntUniform(0, len(candidates)-1)], true
}
