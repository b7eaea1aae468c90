// Package graph provides the junction graph parsed from a trace file and the
// coordinate index used to resolve neighbor references.
package graph

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/cxd309/junction-walk/internal/geo"
)

// KeyScheme says which coordinates the index map is keyed on.
type KeyScheme int

const (
	KeyGeodetic KeyScheme = iota
	KeyLocal
)

func (k KeyScheme) String() string {
	switch k {
	case KeyGeodetic:
		return "geodetic"
	case KeyLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Junction is a node of the street graph.
//
// Geo and GeoNeighbors come from the trace file and are stored as
// orb.Point{lon, lat}. Local and LocalNeighbors are metres in the projected
// frame; they are NaN and nil until the graph is projected.
type Junction struct {
	Geo            orb.Point   `json:"geo"`
	Local          orb.Point   `json:"local"`
	GeoNeighbors   []orb.Point `json:"geo_neighbors,omitempty"`
	LocalNeighbors []orb.Point `json:"local_neighbors,omitempty"`
}

// Lat returns the junction latitude in degrees.
func (j Junction) Lat() float64 { return j.Geo.Lat() }

// Lon returns the junction longitude in degrees.
func (j Junction) Lon() float64 { return j.Geo.Lon() }

// Graph is an index-addressed junction graph. The junction index is the
// stable identity used by ledgers and walkers.
//
// Neighbor references in the trace file are coordinates. They are resolved
// into index adjacency lists when the graph is built and again when it is
// projected; references that match no junction are dropped.
//
// A Graph is read-only once handed out by the registry. Project is the only
// mutator and must run before any walker reads the graph.
type Graph struct {
	junctions []Junction
	index     map[orb.Point]int
	scheme    KeyScheme
	adjacency [][]int
	dropped   int
}

var unprojected = orb.Point{math.NaN(), math.NaN()}

// New builds a Graph from junctions with a geodetic index. Later junctions
// with duplicate coordinates shadow earlier ones in the index.
func New(junctions []Junction) *Graph {
	g := &Graph{junctions: junctions}
	for i := range g.junctions {
		g.junctions[i].Local = unprojected
		g.junctions[i].LocalNeighbors = nil
	}
	g.reindex(KeyGeodetic)
	return g
}

// Len returns the number of junctions.
func (g *Graph) Len() int { return len(g.junctions) }

// Scheme returns the coordinates the index is currently keyed on.
func (g *Graph) Scheme() KeyScheme { return g.scheme }

// Junction returns the junction at index i.
func (g *Graph) Junction(i int) (Junction, error) {
	if i < 0 || i >= len(g.junctions) {
		return Junction{}, fmt.Errorf("junction %d not found (graph has %d)", i, len(g.junctions))
	}
	return g.junctions[i], nil
}

// Junctions returns every junction in index order. The slice is shared and
// must not be modified.
func (g *Graph) Junctions() []Junction { return g.junctions }

// Lookup resolves a coordinate against the current key scheme.
func (g *Graph) Lookup(p orb.Point) (int, bool) {
	i, ok := g.index[p]
	return i, ok
}

// Neighbors returns the resolved neighbor indices of junction i, in file
// order. The slice is shared and must not be modified.
func (g *Graph) Neighbors(i int) []int {
	if i < 0 || i >= len(g.adjacency) {
		return nil
	}
	return g.adjacency[i]
}

// Position returns the coordinates of junction i in the motion plane: local
// metres once projected, otherwise the raw (lon, lat) pair.
func (g *Graph) Position(i int) orb.Point {
	j := g.junctions[i]
	if g.scheme == KeyLocal {
		return j.Local
	}
	return j.Geo
}

// DroppedEdges returns how many neighbor references did not resolve.
func (g *Graph) DroppedEdges() int { return g.dropped }

// Edges returns the number of resolved directed edges.
func (g *Graph) Edges() int {
	n := 0
	for _, nbrs := range g.adjacency {
		n += len(nbrs)
	}
	return n
}

// Project computes local coordinates for every junction and neighbor
// reference, then rebuilds the index on local coordinates. Projecting again
// recomputes from the geodetic source, so the last reference wins.
func (g *Graph) Project(ref geo.Reference) {
	for i := range g.junctions {
		j := &g.junctions[i]
		j.Local = ref.ProjectPoint(j.Geo)
		j.LocalNeighbors = make([]orb.Point, 0, len(j.GeoNeighbors))
		for _, n := range j.GeoNeighbors {
			j.LocalNeighbors = append(j.LocalNeighbors, ref.ProjectPoint(n))
		}
	}
	g.reindex(KeyLocal)
}

// reindex rebuilds the coordinate index for scheme and re-resolves adjacency.
func (g *Graph) reindex(scheme KeyScheme) {
	g.scheme = scheme
	g.index = make(map[orb.Point]int, len(g.junctions))
	for i, j := range g.junctions {
		g.index[g.keyOf(j)] = i
	}

	g.adjacency = make([][]int, len(g.junctions))
	g.dropped = 0
	for i, j := range g.junctions {
		refs := j.GeoNeighbors
		if scheme == KeyLocal {
			refs = j.LocalNeighbors
		}
		nbrs := make([]int, 0, len(refs))
		for _, p := range refs {
			if k, ok := g.index[p]; ok {
				nbrs = append(nbrs, k)
			} else {
				g.dropped++
			}
		}
		g.adjacency[i] = nbrs
	}
}

func (g *Graph) keyOf(j Junction) orb.Point {
	if g.scheme == KeyLocal {
		return j.Local
	}
	return j.Geo
}
