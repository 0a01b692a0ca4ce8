package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailrouter/internal/graph"
)

func buildTriangle(t *testing.T) *graph.Graph {
	t.Helper()

	b := graph.NewBuilder(3, 3)
	n1 := b.AddNode(45.93, 4.58, 0.2)
	n2 := b.AddNode(45.94, 4.59, 0.4)
	n3 := b.AddNode(45.93, 4.60, 0.1)

	b.AddEdge(n1, n2, graph.Paved, 120)
	b.AddEdge(n2, n3, graph.Trail, 80)
	b.AddEdge(n3, n1, graph.Dirt, 200)

	g, err := b.Build()
	require.NoError(t, err)

	return g
}

func TestBuilder_BuildProducesDenseIndices(t *testing.T) {
	g := buildTriangle(t)

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	for i := 1; i <= g.NodeCount(); i++ {
		n, ok := g.Node(graph.NodeID(i))
		require.True(t, ok)
		assert.Equal(t, graph.NodeID(i), n.ID)
	}
}

func TestBuilder_EveryEdgeEndpointExists(t *testing.T) {
	g := buildTriangle(t)

	for _, e := range g.Edges() {
		_, fromOK := g.Node(e.From)
		_, toOK := g.Node(e.To)
		assert.True(t, fromOK)
		assert.True(t, toOK)
	}
}

func TestBuilder_RejectsDanglingEdge(t *testing.T) {
	b := graph.NewBuilder(1, 1)
	n1 := b.AddNode(45.93, 4.58, 0)
	b.AddEdge(n1, graph.NodeID(99), graph.Paved, 10)

	_, err := b.Build()
	require.Error(t, err)
}

func TestGraph_NeighborsReturnsIncidentEdges(t *testing.T) {
	g := buildTriangle(t)

	neighbors := g.Neighbors(1)
	assert.Len(t, neighbors, 2)
}

func TestGraph_EncodeDecodeRoundTrip(t *testing.T) {
	g := buildTriangle(t)

	data, err := g.Encode()
	require.NoError(t, err)

	decoded, err := graph.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, g.NodeCount(), decoded.NodeCount())
	assert.Equal(t, g.EdgeCount(), decoded.EdgeCount())

	for i := 1; i <= g.NodeCount(); i++ {
		want, _ := g.Node(graph.NodeID(i))
		got, _ := decoded.Node(graph.NodeID(i))
		assert.Equal(t, want, got)
	}
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	g := buildTriangle(t)
	clone := g.Clone()

	assert.Equal(t, g.NodeCount(), clone.NodeCount())
	assert.Equal(t, g.EdgeCount(), clone.EdgeCount())
	assert.NotSame(t, g, clone)
}

func TestEdge_Other(t *testing.T) {
	e := graph.Edge{From: 1, To: 2}
	assert.Equal(t, graph.NodeID(2), e.Other(1))
	assert.Equal(t, graph.NodeID(1), e.Other(2))
	assert.Equal(t, graph.NodeID(0), e.Other(3))
}
