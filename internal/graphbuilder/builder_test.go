package graphbuilder

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailrouter/internal/graph"
)

func tags(pairs ...string) osm.Tags {
	var t osm.Tags
	for i := 0; i+1 < len(pairs); i += 2 {
		t = append(t, osm.Tag{Key: pairs[i], Value: pairs[i+1]})
	}

	return t
}

func TestClassifyWay_RejectsNonAllowedHighway(t *testing.T) {
	_, ok := classifyWay(tags("highway", "motorway"))
	assert.False(t, ok)
}

func TestClassifyWay_ExplicitSurfaceTagWins(t *testing.T) {
	surface, ok := classifyWay(tags("highway", "residential", "surface", "gravel"))
	assert.True(t, ok)
	assert.Equal(t, "trail", surface.String())

	surface, ok = classifyWay(tags("highway", "path", "surface", "grass"))
	assert.True(t, ok)
	assert.Equal(t, "dirt", surface.String())

	surface, ok = classifyWay(tags("highway", "track", "surface", "asphalt"))
	assert.True(t, ok)
	assert.Equal(t, "paved", surface.String())
}

func TestClassifyWay_DefaultsByHighwayClass(t *testing.T) {
	surface, ok := classifyWay(tags("highway", "footway"))
	assert.True(t, ok)
	assert.Equal(t, "trail", surface.String())

	surface, ok = classifyWay(tags("highway", "residential"))
	assert.True(t, ok)
	assert.Equal(t, "paved", surface.String())

	surface, ok = classifyWay(tags("highway", "living_street"))
	assert.True(t, ok)
	assert.Equal(t, "trail", surface.String())
}

func TestNew_DefaultsOptions(t *testing.T) {
	b := New(Options{})
	assert.Equal(t, DefaultMarginM, b.opts.MarginM)
	assert.Equal(t, 1, b.opts.Workers)
	assert.NotNil(t, b.opts.Logger)
}

// TestAssembleGraph_BuildsNodesAndEdgesFromScannedWays exercises the
// scanner-independent half of Build — the part the two osmpbf passes
// feed into — against an in-memory fixture standing in for a tiny PBF
// extract: two ways sharing a node, one dangling node reference that
// never resolved to a coordinate, and a city place node shaping the
// retained nodes' density.
func TestAssembleGraph_BuildsNodesAndEdgesFromScannedWays(t *testing.T) {
	n1, n2, n3, n4 := osm.NodeID(1), osm.NodeID(2), osm.NodeID(3), osm.NodeID(4)

	ways := []wayInfo{
		{nodeIDs: []osm.NodeID{n1, n2}, surface: graph.Paved},
		{nodeIDs: []osm.NodeID{n2, n3, n4}, surface: graph.Trail},
	}

	coords := map[osm.NodeID]nodeCoord{
		n1: {lat: 45.930, lon: 4.580},
		n2: {lat: 45.931, lon: 4.580},
		n3: {lat: 45.932, lon: 4.580},
		// n4 deliberately missing: simulates a node outside the
		// expanded bbox that pass 2 dropped.
	}

	places := []placeNode{
		{lat: 45.930, lon: 4.580, density: 6000},
	}

	g, retainedEdges, err := assembleGraph(ways, coords, places)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, retainedEdges)

	var foundN1 bool
	for _, n := range g.Nodes() {
		if n.Lat == 45.930 && n.Lon == 4.580 {
			foundN1 = true
			assert.Greater(t, n.PopulationDensity, 0.0)
		}
	}
	assert.True(t, foundN1)
}
