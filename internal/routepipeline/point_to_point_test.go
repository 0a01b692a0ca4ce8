package routepipeline_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailrouter/internal/elevation"
	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/graphcache"
	"trailrouter/internal/routeengine"
	"trailrouter/internal/routepipeline"
)

// fakeGraphCache always returns the same pre-built Graph, regardless of
// the requested key, standing in for graphcache.Cache in these tests.
type fakeGraphCache struct {
	g   *graph.Graph
	err error
}

func (f *fakeGraphCache) Get(ctx context.Context, key graphcache.Key) (*graph.Graph, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.g, nil
}

// fakeElevationSource returns a fixed Profile for every path, so tests
// can assert elevation attachment without a real DEM fixture.
type fakeElevationSource struct {
	profile elevation.Profile
	calls   int
}

func (f *fakeElevationSource) Profile(ctx context.Context, path []geo.Coordinate) elevation.Profile {
	f.calls++

	return f.profile
}

func buildChainGraph(t *testing.T) *graph.Graph {
	t.Helper()

	b := graph.NewBuilder(4, 3)
	n1 := b.AddNode(45.930, 4.580, 0)
	n2 := b.AddNode(45.931, 4.580, 0)
	n3 := b.AddNode(45.932, 4.580, 0)
	n4 := b.AddNode(45.933, 4.580, 0)

	b.AddEdge(n1, n2, graph.Paved, 111)
	b.AddEdge(n2, n3, graph.Trail, 111)
	b.AddEdge(n3, n4, graph.Dirt, 111)

	g, err := b.Build()
	require.NoError(t, err)

	return g
}

func newTestPipeline(t *testing.T, g *graph.Graph, elev routepipeline.ElevationSource) *routepipeline.Pipeline {
	t.Helper()

	return routepipeline.New(routepipeline.Params{
		Cache:     &fakeGraphCache{g: g},
		Elevation: elev,
	})
}

func TestPipeline_PointToPointFindsChainPath(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	start := geo.Coordinate{Lat: 45.930, Lon: 4.580}
	end := geo.Coordinate{Lat: 45.933, Lon: 4.580}

	resp, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   start,
		End:     end,
		Weights: routeengine.DefaultWeights(),
	})

	require.NoError(t, err)
	assert.Len(t, resp.Path, 4)
	assert.Greater(t, resp.DistanceKM, 0.0)
	assert.Equal(t, 4, resp.Metadata.PointCount)
}

func TestPipeline_PointToPointSamePointIsSinglePointPath(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	same := geo.Coordinate{Lat: 45.930, Lon: 4.580}

	resp, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   same,
		End:     same,
		Weights: routeengine.DefaultWeights(),
	})

	require.NoError(t, err)
	require.Len(t, resp.Path, 1)
	assert.Equal(t, 0.0, resp.DistanceKM)
}

func TestPipeline_PointToPointRejectsInvalidCoordinate(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 999, Lon: 4.580},
		End:     geo.Coordinate{Lat: 45.933, Lon: 4.580},
		Weights: routeengine.DefaultWeights(),
	})

	assert.Error(t, err)
}

func TestPipeline_PointToPointAttachesElevationWhenConfigured(t *testing.T) {
	g := buildChainGraph(t)
	ascent := 12.5
	elev := &fakeElevationSource{profile: elevation.Profile{TotalAscent: ascent}}
	p := newTestPipeline(t, g, elev)

	resp, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:     geo.Coordinate{Lat: 45.933, Lon: 4.580},
		Weights: routeengine.DefaultWeights(),
	})

	require.NoError(t, err)
	require.NotNil(t, resp.ElevationProfile)
	assert.Equal(t, ascent, resp.ElevationProfile.TotalAscent)
	assert.Equal(t, 1, elev.calls)
}

func TestPipeline_PointToPointReturnsNotFoundForDisjointComponents(t *testing.T) {
	b := graph.NewBuilder(2, 0)
	n1 := b.AddNode(45.930, 4.580, 0)
	n2 := b.AddNode(46.500, 5.500, 0)
	_ = n1
	_ = n2

	g, err := b.Build()
	require.NoError(t, err)

	p := newTestPipeline(t, g, nil)

	_, err = p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:     geo.Coordinate{Lat: 46.500, Lon: 5.500},
		Weights: routeengine.DefaultWeights(),
	})

	assert.Error(t, err)
}

func TestPipeline_PointToPointAppliesDefaultWeightsWhenUnset(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	resp, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start: geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:   geo.Coordinate{Lat: 45.933, Lon: 4.580},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.Path)
}

func TestPipeline_PointToPointRejectsNaNWeights(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:     geo.Coordinate{Lat: 45.933, Lon: 4.580},
		Weights: routeengine.Weights{Paved: math.NaN(), Population: 1},
	})

	assert.Error(t, err)
}

func TestPipeline_PointToPointRejectsNegativeWeights(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:     geo.Coordinate{Lat: 45.933, Lon: 4.580},
		Weights: routeengine.Weights{Paved: -1, Population: 1},
	})

	assert.Error(t, err)
}

func TestPipeline_PointToPointPropagatesCacheError(t *testing.T) {
	p := routepipeline.New(routepipeline.Params{
		Cache: &fakeGraphCache{err: assert.AnError},
	})

	_, err := p.PointToPoint(context.Background(), routepipeline.PointToPointRequest{
		Start:   geo.Coordinate{Lat: 45.930, Lon: 4.580},
		End:     geo.Coordinate{Lat: 45.933, Lon: 4.580},
		Weights: routeengine.DefaultWeights(),
	})

	assert.Error(t, err)
}
