package graph

import "github.com/samber/lo"

// Report summarises a graph's connectivity.
type Report struct {
	Junctions    int    `json:"junctions"`
	Edges        int    `json:"edges"`
	DroppedEdges int    `json:"dropped_edges"`
	Scheme       string `json:"scheme"`
	DeadEnds     []int  `json:"dead_ends"`
	// Reachable counts junctions reachable from the start junction,
	// including itself. MaxHops is the largest hop distance among them.
	Reachable int `json:"reachable"`
	MaxHops   int `json:"max_hops"`
}

// Analyze reports edge counts, dead ends and reachability from junction
// start. Walkers always start at junction 0.
func Analyze(g *Graph, start int) Report {
	r := Report{
		Junctions:    g.Len(),
		Edges:        g.Edges(),
		DroppedEdges: g.DroppedEdges(),
		Scheme:       g.Scheme().String(),
		DeadEnds: lo.Filter(lo.Range(g.Len()), func(i, _ int) bool {
			return len(g.Neighbors(i)) == 0
		}),
	}
	hops := HopDistances(g, start)
	r.Reachable = len(hops)
	for _, h := range hops {
		r.MaxHops = max(r.MaxHops, h)
	}
	return r
}

// HopDistances runs a breadth-first search from start and returns the hop
// count to every reachable junction. An out-of-range start yields nil.
func HopDistances(g *Graph, start int) map[int]int {
	if start < 0 || start >= g.Len() {
		return nil
	}
	dist := map[int]int{start: 0}
	queue := []int{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.Neighbors(u) {
			if _, seen := dist[v]; seen {
				continue
			}
			dist[v] = dist[u] + 1
			queue = append(queue, v)
		}
	}
	return dist
}
