// Package graph holds the in-memory road-network model: nodes, edges,
// surface/population tags, and the adjacency structure RouteEngine
// searches over. Nodes are addressed by a dense, zero-allocation index
// rather than a string-keyed point map, and a Graph is immutable once
// Builder.Build publishes it.
package graph

import (
	"bytes"
	"encoding/gob"

	"trailrouter/internal/routeerr"
)

// SurfaceType classifies an Edge's ground material.
type SurfaceType uint8

const (
	// Paved covers sealed roads and anything without a recognised
	// surface tag on a road-class highway.
	Paved SurfaceType = iota
	// Trail covers gravel, fine-gravel, compacted and unpaved surfaces,
	// plus path/footway/track highways without an explicit surface tag.
	Trail
	// Dirt covers dirt, earth, ground and grass surfaces.
	Dirt
)

// String renders the SurfaceType for logging and error messages.
func (s SurfaceType) String() string {
	switch s {
	case Paved:
		return "paved"
	case Trail:
		return "trail"
	case Dirt:
		return "dirt"
	default:
		return "unknown"
	}
}

// NodeID is a dense, 1-based graph-local node index.
type NodeID uint32

// Node is a graph vertex: a coordinate plus a population-density sample
// used by RouteEngine's cost model.
type Node struct {
	ID                NodeID
	Lat               float64
	Lon               float64
	PopulationDensity float64
}

// Edge is an undirected connection between two nodes. Multi-edges
// between the same pair are permitted, so Edge is stored by value in a
// slice rather than deduplicated in a map.
type Edge struct {
	From    NodeID
	To      NodeID
	Surface SurfaceType
	LengthM float64
}

// Other returns the endpoint of e that is not from, or 0 if from is
// neither endpoint.
func (e Edge) Other(from NodeID) NodeID {
	switch from {
	case e.From:
		return e.To
	case e.To:
		return e.From
	default:
		return 0
	}
}

// Graph is an immutable-after-publication road network: a dense node
// table plus an adjacency list of edge indices per node, so a
// traversal never needs to scan the full edge slice. Construct one only
// through Builder; the zero value is not usable.
type Graph struct {
	nodes     []Node // index 0 unused; node i lives at nodes[i]
	edges     []Edge
	adjacency [][]int // adjacency[nodeID] = indices into edges
}

// NodeCount returns the number of nodes, excluding the unused zero slot.
func (g *Graph) NodeCount() int {
	if g == nil || len(g.nodes) == 0 {
		return 0
	}

	return len(g.nodes) - 1
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	if g == nil {
		return 0
	}

	return len(g.edges)
}

// Node returns the node at id, and whether it exists.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if g == nil || int(id) <= 0 || int(id) >= len(g.nodes) {
		return Node{}, false
	}

	return g.nodes[id], true
}

// Nodes returns every node in dense-index order (excluding the unused
// zero slot). The returned slice must not be mutated by callers; it is
// shared with the Graph's internal storage.
func (g *Graph) Nodes() []Node {
	if g == nil || len(g.nodes) == 0 {
		return nil
	}

	return g.nodes[1:]
}

// Edges returns every edge. The returned slice must not be mutated.
func (g *Graph) Edges() []Edge {
	if g == nil {
		return nil
	}

	return g.edges
}

// EdgeAt returns the edge at the given index within Edges(), used by
// callers (loop diversification) that need a stable edge identity for
// an exclusion set.
func (g *Graph) EdgeAt(idx int) (Edge, bool) {
	if g == nil || idx < 0 || idx >= len(g.edges) {
		return Edge{}, false
	}

	return g.edges[idx], true
}

// Neighbors returns the edge indices incident to id.
func (g *Graph) Neighbors(id NodeID) []int {
	if g == nil || int(id) <= 0 || int(id) >= len(g.adjacency) {
		return nil
	}

	return g.adjacency[id]
}

// Builder accumulates nodes and edges before publishing an immutable
// Graph. All mutation happens here; once Build returns, the Graph is
// built once and read-only thereafter.
type Builder struct {
	nodes []Node
	edges []Edge
}

// NewBuilder returns an empty Builder with room for nodeHint nodes and
// edgeHint edges pre-reserved.
func NewBuilder(nodeHint, edgeHint int) *Builder {
	b := &Builder{
		nodes: make([]Node, 1, nodeHint+1), // slot 0 unused
		edges: make([]Edge, 0, edgeHint),
	}

	return b
}

// AddNode appends a node and returns its freshly assigned dense ID.
func (b *Builder) AddNode(lat, lon, populationDensity float64) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, Node{ID: id, Lat: lat, Lon: lon, PopulationDensity: populationDensity})

	return id
}

// AddEdge appends an undirected edge between two previously added nodes.
func (b *Builder) AddEdge(from, to NodeID, surface SurfaceType, lengthM float64) {
	b.edges = append(b.edges, Edge{From: from, To: to, Surface: surface, LengthM: lengthM})
}

// Build validates the accumulated nodes/edges and publishes an
// immutable Graph. An empty graph (zero nodes) is a valid result per
// §4.2's failure-mode note; callers decide what to do with it.
func (b *Builder) Build() (*Graph, error) {
	adjacency := make([][]int, len(b.nodes))

	for i, e := range b.edges {
		if int(e.From) <= 0 || int(e.From) >= len(b.nodes) {
			return nil, routeerr.Internal(nil, "edge references unknown from-node")
		}

		if int(e.To) <= 0 || int(e.To) >= len(b.nodes) {
			return nil, routeerr.Internal(nil, "edge references unknown to-node")
		}

		adjacency[e.From] = append(adjacency[e.From], i)
		adjacency[e.To] = append(adjacency[e.To], i)
	}

	return &Graph{nodes: b.nodes, edges: b.edges, adjacency: adjacency}, nil
}

// gobGraph is the serialisable shadow of Graph used by tier-2 disk
// caching; Graph itself is kept unexported-field so callers cannot
// mutate a published instance, so encoding/gob (which requires
// exported fields) operates on this shadow instead.
type gobGraph struct {
	Nodes []Node
	Edges []Edge
}

// Encode serialises g with encoding/gob. gob is the standard-library
// choice here: the pack contains no third-party graph-serialisation
// library, and gob's self-describing format avoids hand-rolling a
// schema for a type this shallow (see DESIGN.md).
func (g *Graph) Encode() ([]byte, error) {
	var buf bytes.Buffer

	shadow := gobGraph{Nodes: g.Nodes(), Edges: g.Edges()}
	if err := gob.NewEncoder(&buf).Encode(shadow); err != nil {
		return nil, routeerr.Internal(err, "encode graph")
	}

	return buf.Bytes(), nil
}

// Decode deserialises a Graph previously produced by Encode, rebuilding
// the adjacency list the same way Builder.Build does.
func Decode(data []byte) (*Graph, error) {
	var shadow gobGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&shadow); err != nil {
		return nil, routeerr.Internal(err, "decode graph")
	}

	b := NewBuilder(len(shadow.Nodes), len(shadow.Edges))
	b.nodes = append(b.nodes, shadow.Nodes...)
	b.edges = shadow.Edges

	return b.Build()
}

// Clone returns a deep copy of g, used where a cache tier must hand out
// a copy rather than share the published instance.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}

	nodes := make([]Node, len(g.nodes))
	copy(nodes, g.nodes)

	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)

	adjacency := make([][]int, len(g.adjacency))
	for i, a := range g.adjacency {
		adjacency[i] = append([]int(nil), a...)
	}

	return &Graph{nodes: nodes, edges: edges, adjacency: adjacency}
}
