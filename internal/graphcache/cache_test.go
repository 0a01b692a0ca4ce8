package graphcache_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/fileblob"

	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/graphcache"
)

type countingBuilder struct {
	calls int
}

func (b *countingBuilder) Build(_ context.Context, _ io.ReadSeeker, _ geo.BoundingBox) (*graph.Graph, error) {
	b.calls++

	gb := graph.NewBuilder(2, 1)
	n1 := gb.AddNode(45.93, 4.58, 0)
	n2 := gb.AddNode(45.94, 4.59, 0)
	gb.AddEdge(n1, n2, graph.Paved, 100)

	return gb.Build()
}

func newTestCache(t *testing.T) (*graphcache.Cache, *countingBuilder) {
	t.Helper()

	dir := t.TempDir()
	bucket, err := fileblob.OpenBucket(dir, nil)
	require.NoError(t, err)

	pbfFile := dir + "/extract.pbf"
	require.NoError(t, os.WriteFile(pbfFile, []byte{}, 0o644))

	builder := &countingBuilder{}

	cache, err := graphcache.New(graphcache.Params{
		PBFPath: pbfFile,
		Builder: builder,
		Bucket:  bucket,
	}, dir)
	require.NoError(t, err)

	return cache, builder
}

func TestCache_GetBuildsOnTotalMiss(t *testing.T) {
	cache, builder := newTestCache(t)

	key := graphcache.Key{Bbox: geo.BoundingBox{MinLat: 45, MaxLat: 46, MinLon: 4, MaxLon: 5}, MarginM: 1000}

	g, err := cache.Get(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, builder.calls)
}

func TestCache_GetIsCoherentAcrossCalls(t *testing.T) {
	cache, builder := newTestCache(t)

	key := graphcache.Key{Bbox: geo.BoundingBox{MinLat: 45, MaxLat: 46, MinLon: 4, MaxLon: 5}, MarginM: 1000}

	first, err := cache.Get(t.Context(), key)
	require.NoError(t, err)

	second, err := cache.Get(t.Context(), key)
	require.NoError(t, err)

	assert.Equal(t, first.NodeCount(), second.NodeCount())
	assert.Equal(t, first.EdgeCount(), second.EdgeCount())
	// Tier-1 hit on the second call: no additional build invoked.
	assert.Equal(t, 1, builder.calls)
}

func TestKey_StringRoundsToGrid(t *testing.T) {
	a := graphcache.Key{Bbox: geo.BoundingBox{MinLat: 45.00001, MaxLat: 46, MinLon: 4, MaxLon: 5}, MarginM: 1000}
	b := graphcache.Key{Bbox: geo.BoundingBox{MinLat: 45.00049, MaxLat: 46, MinLon: 4, MaxLon: 5}, MarginM: 1000}

	assert.Equal(t, a.String(), b.String())
}
