package graph

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/junction-walk/internal/geo"
)

// triangle is three junctions 0-1-2 where junction 2 also references a
// junction that does not exist.
const triangle = `35.690,139.690,35.691,139.690,35.690,139.691
35.691,139.690,35.690,139.690,35.690,139.691
35.690,139.691,35.690,139.690,35.999,139.999
`

func mustParse(t *testing.T, src string) *Graph {
	t.Helper()
	g, _, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	return g
}

func TestParse_NoNeighbors(t *testing.T) {
	g, stats, err := Parse(strings.NewReader("1,2\n3,4\n5,6\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 3, stats.Junctions)
	for i := 0; i < g.Len(); i++ {
		j, err := g.Junction(i)
		require.NoError(t, err)
		assert.Empty(t, j.GeoNeighbors)
		assert.Empty(t, g.Neighbors(i))
	}
}

func TestParse_SkipsBlankAndShortLines(t *testing.T) {
	src := "1,2\n\n   \n7\nabc,def\n3,4\n"
	g, stats, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 6, stats.Lines)
	assert.Equal(t, 2, stats.SkippedLines, "the single-value and non-numeric lines")
	assert.Equal(t, 2, stats.DroppedTokens)
}

func TestParse_DropsBadTokensKeepsRest(t *testing.T) {
	g, stats, err := Parse(strings.NewReader("1, x ,2,NaN,3,4\n3,4\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.DroppedTokens)
	j, err := g.Junction(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, j.Lat())
	assert.Equal(t, 2.0, j.Lon())
	require.Len(t, j.GeoNeighbors, 1)
	assert.Equal(t, geo.LatLon(3, 4), j.GeoNeighbors[0])
	assert.Equal(t, []int{1}, g.Neighbors(0))
}

func TestParse_IgnoresUnpairedTrailingValue(t *testing.T) {
	g := mustParse(t, "1,2,3,4,5\n3,4\n")
	j, err := g.Junction(0)
	require.NoError(t, err)
	assert.Len(t, j.GeoNeighbors, 1)
}

func TestParse_HandlesCRLF(t *testing.T) {
	g := mustParse(t, "1,2,3,4\r\n3,4,1,2\r\n")
	assert.Equal(t, []int{1}, g.Neighbors(0))
	assert.Equal(t, []int{0}, g.Neighbors(1))
}

func TestNew_ResolvesAdjacencyAndDropsUnknown(t *testing.T) {
	g := mustParse(t, triangle)

	assert.Equal(t, KeyGeodetic, g.Scheme())
	assert.Equal(t, []int{1, 2}, g.Neighbors(0))
	assert.Equal(t, []int{0, 2}, g.Neighbors(1))
	assert.Equal(t, []int{0}, g.Neighbors(2), "the unknown reference is dropped")
	assert.Equal(t, 1, g.DroppedEdges())
	assert.Equal(t, 5, g.Edges())
}

func TestNew_LocalIsUnsetBeforeProjection(t *testing.T) {
	g := mustParse(t, triangle)
	j, err := g.Junction(0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(j.Local.X()))
	assert.True(t, math.IsNaN(j.Local.Y()))
	assert.Nil(t, j.LocalNeighbors)
	assert.Equal(t, j.Geo, g.Position(0), "unprojected graphs move in the raw (lon, lat) plane")
}

func TestNew_DuplicateCoordinatesLaterWins(t *testing.T) {
	g := mustParse(t, "1,2\n1,2\n")
	idx, ok := g.Lookup(geo.LatLon(1, 2))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestJunction_OutOfRange(t *testing.T) {
	g := mustParse(t, "1,2\n")
	_, err := g.Junction(1)
	assert.Error(t, err)
	_, err = g.Junction(-1)
	assert.Error(t, err)
	assert.Nil(t, g.Neighbors(5))
}

func TestProject_RebuildsIndexOnLocalCoordinates(t *testing.T) {
	g := mustParse(t, triangle)
	ref := geo.Reference{Lat: 35.690, Lon: 139.690}
	g.Project(ref)

	assert.Equal(t, KeyLocal, g.Scheme())
	for i, j := range g.Junctions() {
		idx, ok := g.Lookup(j.Local)
		require.True(t, ok, "junction %d by local coordinates", i)
		assert.Equal(t, i, idx)

		_, ok = g.Lookup(j.Geo)
		assert.False(t, ok, "junction %d must not resolve by geodetic coordinates", i)
	}

	j0, err := g.Junction(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, j0.Local.X(), 1e-9)
	assert.InDelta(t, 0, j0.Local.Y(), 1e-9)
	assert.Equal(t, j0.Local, g.Position(0))
}

func TestProject_KeepsAdjacency(t *testing.T) {
	g := mustParse(t, triangle)
	g.Project(geo.Reference{Lat: 35.69, Lon: 139.69})

	assert.Equal(t, []int{1, 2}, g.Neighbors(0))
	assert.Equal(t, []int{0, 2}, g.Neighbors(1))
	assert.Equal(t, []int{0}, g.Neighbors(2))
	assert.Equal(t, 1, g.DroppedEdges())

	j2, err := g.Junction(2)
	require.NoError(t, err)
	assert.Len(t, j2.LocalNeighbors, 2, "unresolved references are still projected")
}

func TestProject_TwiceLastReferenceWins(t *testing.T) {
	g := mustParse(t, triangle)
	g.Project(geo.Reference{Lat: 0, Lon: 0})
	first := g.Position(1)

	ref := geo.Reference{Lat: 35.691, Lon: 139.690}
	g.Project(ref)

	assert.NotEqual(t, first, g.Position(1))
	assert.InDelta(t, 0, g.Position(1).X(), 1e-9)
	assert.InDelta(t, 0, g.Position(1).Y(), 1e-9)
	idx, ok := g.Lookup(g.Position(1))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestWrite_RoundTripsResolvedEdges(t *testing.T) {
	g := mustParse(t, triangle)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g))

	again, stats, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, g.Len(), again.Len())
	assert.Zero(t, again.DroppedEdges())
	assert.Zero(t, stats.DroppedTokens)
	for i := 0; i < g.Len(); i++ {
		assert.Equal(t, g.Neighbors(i), again.Neighbors(i))
	}
}

func TestWrite_Format(t *testing.T) {
	g := mustParse(t, "35.5,139.25,1,2\n1,2\n")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g))
	assert.Equal(t, "35.5,139.25,1,2\n1,2\n", buf.String())
}

func TestAnalyze(t *testing.T) {
	// 0 -> 1 -> 2 (dead end), 3 is isolated.
	g := mustParse(t, "0,0,0,1\n0,1,0,2\n0,2\n5,5\n")
	r := Analyze(g, 0)

	assert.Equal(t, 4, r.Junctions)
	assert.Equal(t, 2, r.Edges)
	assert.Equal(t, []int{2, 3}, r.DeadEnds)
	assert.Equal(t, 3, r.Reachable)
	assert.Equal(t, 2, r.MaxHops)
	assert.Equal(t, "geodetic", r.Scheme)
}

func TestHopDistances_OutOfRange(t *testing.T) {
	g := mustParse(t, "0,0\n")
	assert.Nil(t, HopDistances(g, 3))
	assert.Equal(t, map[int]int{0: 0}, HopDistances(g, 0))
}
