package graph

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/cxd309/junction-walk/internal/geo"
)

// ParseStats counts what Parse accepted and discarded.
type ParseStats struct {
	Lines         int `json:"lines"`
	Junctions     int `json:"junctions"`
	SkippedLines  int `json:"skipped_lines"`
	DroppedTokens int `json:"dropped_tokens"`
}

// maxLineBytes bounds a single trace line; junctions rarely have more than a
// handful of neighbors.
const maxLineBytes = 1 << 20

// Parse reads a trace file.
//
// Each non-blank line is "lat,lon[,nlat,nlon...]". Tokens that are not finite
// numbers are dropped and the rest of the line is kept. A line left with fewer
// than two numbers is skipped. A trailing unpaired neighbor value is ignored.
// Only read errors are returned.
func Parse(r io.Reader) (*Graph, ParseStats, error) {
	var (
		stats     ParseStats
		junctions []Junction
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		stats.Lines++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		values, dropped := parseValues(line)
		stats.DroppedTokens += dropped
		if len(values) < 2 {
			stats.SkippedLines++
			continue
		}

		j := Junction{Geo: geo.LatLon(values[0], values[1])}
		for i := 2; i+1 < len(values); i += 2 {
			j.GeoNeighbors = append(j.GeoNeighbors, geo.LatLon(values[i], values[i+1]))
		}
		junctions = append(junctions, j)
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("reading trace line %d: %w", stats.Lines+1, err)
	}

	stats.Junctions = len(junctions)
	return New(junctions), stats, nil
}

func parseValues(line string) ([]float64, int) {
	tokens := strings.Split(line, ",")
	values := make([]float64, 0, len(tokens))
	dropped := 0
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			dropped++
			continue
		}
		values = append(values, v)
	}
	return values, dropped
}

// Write serialises g in trace format. Only neighbors that resolved are
// written, so the output re-parses with no dropped edges.
func Write(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	for i, j := range g.junctions {
		writeLatLon(bw, j.Geo)
		for _, k := range g.Neighbors(i) {
			bw.WriteByte(',')
			writeLatLon(bw, g.junctions[k].Geo)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing junction %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func writeLatLon(bw *bufio.Writer, p orb.Point) {
	bw.WriteString(strconv.FormatFloat(p.Lat(), 'f', -1, 64))
	bw.WriteByte(',')
	bw.WriteString(strconv.FormatFloat(p.Lon(), 'f', -1, 64))
}
