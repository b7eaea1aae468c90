// Package tracecache is the run-wide registry of parsed trace files.
//
// A Registry maps a trace identifier (normally a file path) to one parsed
// junction graph and the visit ledger shared by every walker on that graph.
// Each identifier is parsed at most once while it stays cached. The registry
// is created once per run, handed to every walker, and closed at the end of
// the run.
package tracecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/cxd309/junction-walk/internal/geo"
	"github.com/cxd309/junction-walk/internal/graph"
	"github.com/cxd309/junction-walk/internal/ledger"
)

// ErrClosed is returned by lookups after Close.
var ErrClosed = errors.New("tracecache: registry closed")

// ErrNotLoaded is returned when an operation needs a trace that was never
// loaded or has been invalidated.
var ErrNotLoaded = errors.New("tracecache: trace not loaded")

// Opener opens the trace named by id.
type Opener func(id string) (io.ReadCloser, error)

// OpenFile is the default Opener; it treats id as a filesystem path.
func OpenFile(id string) (io.ReadCloser, error) { return os.Open(id) }

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithOpener replaces the file opener, for traces that do not live on disk.
func WithOpener(o Opener) Option {
	return func(r *Registry) { r.opener = o }
}

// WithWatch invalidates a cached trace when its file changes on disk. Only
// meaningful when identifiers are paths.
func WithWatch() Option {
	return func(r *Registry) { r.watch = true }
}

// Stats is a point-in-time snapshot of registry counters.
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Parses        int64 `json:"parses"`
	Invalidations int64 `json:"invalidations"`
}

type entry struct {
	graph     *graph.Graph
	ledger    *ledger.Ledger
	parse     graph.ParseStats
	reference *geo.Reference
}

// Registry caches parsed trace files. It is safe for concurrent use, but
// projection must finish before walkers start reading a graph.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
	flight  singleflight.Group

	opener  Opener
	logger  *slog.Logger
	watch   bool
	watcher *watcher

	hits          atomic.Int64
	misses        atomic.Int64
	parses        atomic.Int64
	invalidations atomic.Int64
}

// New creates a Registry. It fails only when WithWatch is set and the file
// watcher cannot be started.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]*entry),
		opener:  OpenFile,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.watch {
		w, err := newWatcher(r.logger, func(id string) { r.invalidate(id, "file changed") })
		if err != nil {
			return nil, fmt.Errorf("starting trace watcher: %w", err)
		}
		r.watcher = w
	}
	return r, nil
}

// GetFile returns the graph for id, parsing the trace on first use.
// Concurrent first lookups of the same id share one parse. A failed parse is
// not cached, so the next lookup retries.
func (r *Registry) GetFile(ctx context.Context, id string) (*graph.Graph, error) {
	e, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.graph, nil
}

func (r *Registry) get(ctx context.Context, id string) (*entry, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		r.hits.Add(1)
		recordHit(ctx)
		return e, nil
	}

	r.misses.Add(1)
	recordMiss(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err, _ := r.flight.Do(id, func() (any, error) {
		return r.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*entry), nil
}

// load parses id and inserts it. A trace cached by a racing load wins.
func (r *Registry) load(ctx context.Context, id string) (*entry, error) {
	r.mu.RLock()
	if e, ok := r.entries[id]; ok {
		r.mu.RUnlock()
		return e, nil
	}
	r.mu.RUnlock()

	rc, err := r.opener(id)
	if err != nil {
		recordParse(ctx, false)
		return nil, fmt.Errorf("opening trace %q: %w", id, err)
	}
	defer rc.Close()

	g, stats, err := graph.Parse(rc)
	r.parses.Add(1)
	recordParse(ctx, err == nil)
	if err != nil {
		return nil, fmt.Errorf("parsing trace %q: %w", id, err)
	}

	e := &entry{graph: g, ledger: ledger.New(g.Len()), parse: stats}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if cur, ok := r.entries[id]; ok {
		return cur, nil
	}
	r.entries[id] = e

	r.logger.Info("trace loaded",
		"trace_file", id,
		"junctions", g.Len(),
		"edges", g.Edges(),
		"dropped_edges", g.DroppedEdges(),
		"skipped_lines", stats.SkippedLines,
		"dropped_tokens", stats.DroppedTokens,
	)
	if g.DroppedEdges() > 0 {
		r.logger.Warn("trace has unresolved neighbor references", "trace_file", id, "dropped_edges", g.DroppedEdges())
	}
	if r.watcher != nil {
		r.watcher.track(id)
	}
	return e, nil
}

// ConvertGeoToLocal projects the cached graph for id around (refLat, refLon)
// and rebuilds its index on the local coordinates. It does nothing when id is
// not cached. Calling it again re-projects from the geodetic source.
func (r *Registry) ConvertGeoToLocal(id string, refLat, refLon float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	ref := geo.Reference{Lat: refLat, Lon: refLon}
	e.graph.Project(ref)
	e.reference = &ref
	r.logger.Info("trace projected",
		"trace_file", id,
		"reference_lat", refLat,
		"reference_lon", refLon,
		"dropped_edges", e.graph.DroppedEdges(),
	)
}

// Reference returns the projection reference of id, if it was projected.
func (r *Registry) Reference(id string) (geo.Reference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.reference == nil {
		return geo.Reference{}, false
	}
	return *e.reference, true
}

// Ledger returns the visit ledger created alongside the graph for id.
func (r *Registry) Ledger(id string) (*ledger.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("ledger for %q: %w", id, ErrNotLoaded)
	}
	return e.ledger, nil
}

// ParseStats returns what the parser accepted and discarded for id.
func (r *Registry) ParseStats(id string) (graph.ParseStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return graph.ParseStats{}, false
	}
	return e.parse, true
}

// Invalidate drops the cached graph and ledger for id. Walkers holding the
// old graph keep it; the next GetFile parses again. Reports whether id was
// cached.
func (r *Registry) Invalidate(id string) bool {
	return r.invalidate(id, "explicit")
}

func (r *Registry) invalidate(id, reason string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.invalidations.Add(1)
	recordInvalidation(context.Background(), reason)
	r.logger.Info("trace invalidated", "trace_file", id, "reason", reason)
	return true
}

// Stats returns the current counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	n := len(r.entries)
	r.mu.RUnlock()
	return Stats{
		Entries:       n,
		Hits:          r.hits.Load(),
		Misses:        r.misses.Load(),
		Parses:        r.parses.Load(),
		Invalidations: r.invalidations.Load(),
	}
}

// Close releases every cached graph and stops the watcher. Later lookups
// return ErrClosed. Close is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	n := len(r.entries)
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	r.logger.Debug("trace registry closed", "released", n)
	if r.watcher != nil {
		return r.watcher.close()
	}
	return nil
}
