// Package routeengine implements weighted A* pathfinding over a Graph,
// per §4.4. The priority-queue shape (a container/heap.Interface
// implementation over path-cost-ordered nodes) generalises a plain
// Dijkstra search into A* with an admissible haversine heuristic, over
// an undirected graph.Graph with surface/population cost shaping.
package routeengine

import (
	"container/heap"
	"math"

	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/routeengine/spatial"
	"trailrouter/internal/routeerr"
)

// Weights are the per-request cost-model knobs from §4.4's cost model;
// the zero value (0, 0) disables both multipliers, so callers should
// start from DefaultWeights() and override rather than use the zero
// value directly.
type Weights struct {
	// Paved is w_paved: surface multiplier contribution for Paved edges.
	Paved float64
	// Population is w_pop: population-density multiplier contribution.
	Population float64
}

// DefaultWeights returns the default per-request weights (1.0 for both
// the paved-surface and population-density multipliers).
func DefaultWeights() Weights {
	return Weights{Paved: 1.0, Population: 1.0}
}

// Validate rejects NaN, infinite or negative weights, per §7's "NaN
// weights" invalid-input rule and §4.4's w_paved, w_pop ≥ 0 constraint.
func (w Weights) Validate() error {
	if math.IsNaN(w.Paved) || math.IsInf(w.Paved, 0) {
		return routeerr.InvalidInput("paved weight must not be NaN or infinite")
	}

	if w.Paved < 0 {
		return routeerr.InvalidInput("paved weight must be non-negative")
	}

	if math.IsNaN(w.Population) || math.IsInf(w.Population, 0) {
		return routeerr.InvalidInput("population weight must not be NaN or infinite")
	}

	if w.Population < 0 {
		return routeerr.InvalidInput("population weight must be non-negative")
	}

	return nil
}

// populationSaturationDensity is the density (people/km²) above which
// f(p) in the population multiplier saturates to 1; chosen so dense
// urban cores (~10,000/km²) reach the ceiling while rural densities
// stay well below it.
const populationSaturationDensity = 10000.0

// densityFactor normalises a population density sample to [0, 1] with
// a saturating transform, per §4.4's f(p).
func densityFactor(p float64) float64 {
	if p <= 0 {
		return 0
	}

	f := p / populationSaturationDensity
	if f > 1 {
		return 1
	}

	return f
}

// edgeWeight computes the A* edge cost per §4.4: base length scaled by
// a surface multiplier and a population multiplier averaged over the
// edge's two endpoints (see DESIGN.md for why the average was chosen
// over a single-endpoint sample).
func edgeWeight(e graph.Edge, fromDensity, toDensity float64, w Weights) float64 {
	surfaceMultiplier := 1.0
	if e.Surface == graph.Paved {
		surfaceMultiplier = 1 + w.Paved
	}

	avgDensity := (fromDensity + toDensity) / 2
	populationMultiplier := 1 + w.Population*densityFactor(avgDensity)

	return e.LengthM * surfaceMultiplier * populationMultiplier
}

// Engine is a read-only pathfinder constructed around one Graph. It
// borrows or shares the Graph for the duration of the requests that use
// it and is then discarded, per §3's ownership rules.
type Engine struct {
	g     *graph.Graph
	index spatial.Index
}

// New builds an Engine over g, constructing its spatial index once.
func New(g *graph.Graph) *Engine {
	return &Engine{g: g, index: spatial.Build(g)}
}

// ClosestNode returns the node nearest coord, or false if the graph is
// empty.
func (e *Engine) ClosestNode(coord geo.Coordinate) (graph.NodeID, bool) {
	return e.index.Nearest(coord.Lon, coord.Lat)
}

// Request describes a single point-to-point search.
type Request struct {
	Start   geo.Coordinate
	End     geo.Coordinate
	Weights Weights
}

// astarItem is one entry in the open set's priority queue.
type astarItem struct {
	node     graph.NodeID
	priority float64 // g-score + heuristic
	gScore   float64
	index    int
}

type astarQueue []*astarItem

func (q astarQueue) Len() int            { return len(q) }
func (q astarQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q astarQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *astarQueue) Push(x any) {
	item := x.(*astarItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *astarQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]

	return item
}

// FindPath runs weighted A* from the node nearest req.Start to the node
// nearest req.End, returning a single-point path if both resolve to the
// same node. Returns nil if no path exists (disjoint components) or the
// graph is empty.
func (e *Engine) FindPath(req Request) []geo.Coordinate {
	path, _ := e.FindPathEdges(req, nil)

	return path
}

// FindPathExcluding is FindPath but treats every edge index in excluded
// as absent, per §4.4's find_path_with_excluded_edges (used by loop
// diversification to avoid repeating a previous candidate's route).
func (e *Engine) FindPathExcluding(req Request, excluded map[int]struct{}) []geo.Coordinate {
	path, _ := e.FindPathEdges(req, excluded)

	return path
}

// FindPathEdges is FindPathExcluding, additionally returning the set of
// edge indices the resolved path traverses. RoutePipeline's loop
// generation uses the edge set to grow excluded across candidates
// within one request, per §4.4's find_path_with_excluded_edges.
func (e *Engine) FindPathEdges(req Request, excluded map[int]struct{}) ([]geo.Coordinate, []int) {
	start, ok := e.ClosestNode(req.Start)
	if !ok {
		return nil, nil
	}

	goal, ok := e.ClosestNode(req.End)
	if !ok {
		return nil, nil
	}

	if start == goal {
		if n, ok := e.g.Node(start); ok {
			return []geo.Coordinate{{Lat: n.Lat, Lon: n.Lon}}, nil
		}

		return nil, nil
	}

	goalNode, _ := e.g.Node(goal)
	goalCoord := geo.Coordinate{Lat: goalNode.Lat, Lon: goalNode.Lon}

	gScore := map[graph.NodeID]float64{start: 0}
	cameFrom := map[graph.NodeID]graph.NodeID{}
	cameFromEdge := map[graph.NodeID]int{}
	visited := map[graph.NodeID]bool{}

	open := &astarQueue{}
	heap.Init(open)
	heap.Push(open, &astarItem{node: start, priority: heuristic(e.g, start, goalCoord), gScore: 0})

	for open.Len() > 0 {
		current := heap.Pop(open).(*astarItem)

		if visited[current.node] {
			continue
		}

		visited[current.node] = true

		if current.node == goal {
			return e.reconstructPath(cameFrom, cameFromEdge, goal)
		}

		currentNode, _ := e.g.Node(current.node)

		for _, edgeIdx := range e.g.Neighbors(current.node) {
			if excluded != nil {
				if _, skip := excluded[edgeIdx]; skip {
					continue
				}
			}

			edge, _ := e.g.EdgeAt(edgeIdx)
			neighbor := edge.Other(current.node)

			if visited[neighbor] {
				continue
			}

			neighborNode, _ := e.g.Node(neighbor)
			cost := edgeWeight(edge, currentNode.PopulationDensity, neighborNode.PopulationDensity, req.Weights)
			tentativeG := current.gScore + cost

			if existing, ok := gScore[neighbor]; ok && tentativeG >= existing {
				continue
			}

			gScore[neighbor] = tentativeG
			cameFrom[neighbor] = current.node
			cameFromEdge[neighbor] = edgeIdx

			h := heuristic(e.g, neighbor, goalCoord)
			heap.Push(open, &astarItem{node: neighbor, priority: tentativeG + h, gScore: tentativeG})
		}
	}

	return nil, nil
}

func heuristic(g *graph.Graph, node graph.NodeID, goal geo.Coordinate) float64 {
	n, ok := g.Node(node)
	if !ok {
		return math.Inf(1)
	}

	return geo.HaversineM(geo.Coordinate{Lat: n.Lat, Lon: n.Lon}, goal)
}

func (e *Engine) reconstructPath(
	cameFrom map[graph.NodeID]graph.NodeID,
	cameFromEdge map[graph.NodeID]int,
	goal graph.NodeID,
) ([]geo.Coordinate, []int) {
	var nodeIDs []graph.NodeID
	var edgeIdxs []int

	for n := goal; ; {
		nodeIDs = append(nodeIDs, n)

		prev, ok := cameFrom[n]
		if !ok {
			break
		}

		edgeIdxs = append(edgeIdxs, cameFromEdge[n])
		n = prev
	}

	path := make([]geo.Coordinate, len(nodeIDs))

	for i, id := range nodeIDs {
		n, _ := e.g.Node(id)
		path[len(nodeIDs)-1-i] = geo.Coordinate{Lat: n.Lat, Lon: n.Lon}
	}

	edges := make([]int, len(edgeIdxs))

	for i, idx := range edgeIdxs {
		edges[len(edgeIdxs)-1-i] = idx
	}

	return path, edges
}
