// Package graphcache implements a three-tier Graph lookup: a
// process-local LRU, a compressed on-disk blob store, and a
// build-from-source fallback, generalising the single in-memory
// per-tile cache an earlier routing service kept behind an RWMutex
// (building on miss) into three explicit tiers backed by
// github.com/hashicorp/golang-lru/v2, github.com/klauspost/compress
// (zstd) over a gocloud.dev/blob bucket, and
// golang.org/x/sync/singleflight to coalesce concurrent tier-3 builds
// for the same key.
package graphcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/fx"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"golang.org/x/sync/singleflight"

	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/routeerr"
	"trailrouter/internal/util"
)

// keyGridDegrees is the grid the bbox is rounded to before keying:
// coarse enough that nearby-but-not-identical requests share a cache
// entry.
const keyGridDegrees = 0.001

// Builder produces a Graph for a bbox from the backing OSM extract. The
// *graphbuilder.Builder type satisfies this directly.
type Builder interface {
	Build(ctx context.Context, source io.ReadSeeker, bbox geo.BoundingBox) (*graph.Graph, error)
}

// Key identifies a cache entry by a bbox rounded to the grid, plus the
// margin it was (or will be) expanded by.
type Key struct {
	Bbox    geo.BoundingBox
	MarginM float64
}

// String renders a deterministic cache key, used both as the tier-1 LRU
// key and the tier-2 file name stem.
func (k Key) String() string {
	round := func(v float64) float64 {
		return math.Round(v/keyGridDegrees) * keyGridDegrees
	}

	return fmt.Sprintf("%.3f_%.3f_%.3f_%.3f_m%.0f",
		round(k.Bbox.MinLat), round(k.Bbox.MaxLat), round(k.Bbox.MinLon), round(k.Bbox.MaxLon), k.MarginM)
}

// Params is the fx.In-compatible constructor bundle for Cache.
type Params struct {
	fx.In

	PBFPath    string
	Builder    Builder
	Bucket     *blob.Bucket `optional:"true"`
	Capacity   int          `optional:"true"`
	Logger     *slog.Logger `optional:"true"`
}

// Cache is the production GraphCache: an LRU tier backed by a
// compressed blob-store tier, backed by GraphBuilder. It satisfies the
// spec's dependency-inversion requirement ("the cache is a capability")
// by being constructed behind no exported struct fields — callers only
// ever see the Get method.
type Cache struct {
	pbfPath     string
	pbfChecksum string
	builder     Builder
	bucket      *blob.Bucket
	logger      *slog.Logger

	tier1 *lru.Cache[string, *graph.Graph]
	group singleflight.Group
}

// DefaultCapacity is the tier-1 LRU's default entry count (§4.3: "≈ 20").
const DefaultCapacity = 20

// New constructs a Cache. If bucket is nil, a fileblob bucket rooted at
// cacheDir is opened, matching the default deployment described in
// SPEC_FULL §11; cacheDir is created if absent.
func New(params Params, cacheDir string) (*Cache, error) {
	capacity := params.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bucket := params.Bucket
	if bucket == nil {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, routeerr.Unavailable(err, "create cache directory")
		}

		b, err := fileblob.OpenBucket(cacheDir, nil)
		if err != nil {
			return nil, routeerr.Unavailable(err, "open disk cache bucket")
		}

		bucket = b
	}

	tier1, err := lru.New[string, *graph.Graph](capacity)
	if err != nil {
		return nil, routeerr.Internal(err, "construct tier-1 LRU")
	}

	// Fold the extract's checksum into every tier-2 key so swapping in a
	// newer OSM extract at the same path invalidates stale cache entries
	// rather than silently serving a graph built from the old one.
	checksum, err := util.CalculateFileChecksum(params.PBFPath)
	if err != nil {
		return nil, routeerr.Unavailable(err, "checksum OSM extract")
	}

	return &Cache{
		pbfPath:     params.PBFPath,
		pbfChecksum: checksum,
		builder:     params.Builder,
		bucket:      bucket,
		logger:      logger,
		tier1:       tier1,
	}, nil
}

// Get returns a Graph for key, consulting tier 1, then tier 2, then
// invoking the Builder (tier 3) on a total miss. Concurrent Get calls
// for the same key are coalesced via singleflight so at most one tier-3
// build for a given key runs at a time, matching §4.3's "opportunistic"
// deduplication requirement without making duplicate builds illegal.
func (c *Cache) Get(ctx context.Context, key Key) (*graph.Graph, error) {
	keyStr := key.String()

	if g, ok := c.tier1.Peek(keyStr); ok {
		c.logger.Debug("graphcache tier-1 hit", "key", keyStr)

		return g.Clone(), nil
	}

	result, err, _ := c.group.Do(keyStr, func() (any, error) {
		return c.getMissingTier1(ctx, key, keyStr)
	})
	if err != nil {
		return nil, err
	}

	return result.(*graph.Graph).Clone(), nil
}

func (c *Cache) getMissingTier1(ctx context.Context, key Key, keyStr string) (*graph.Graph, error) {
	// Re-check tier 1: another goroutine may have populated it while we
	// waited to enter the singleflight group.
	if g, ok := c.tier1.Peek(keyStr); ok {
		return g, nil
	}

	if g, err := c.getTier2(ctx, keyStr); err == nil {
		c.tier1.Add(keyStr, g)
		c.logger.Debug("graphcache tier-2 hit", "key", keyStr)

		return g, nil
	}

	g, err := c.buildTier3(ctx, key)
	if err != nil {
		return nil, err
	}

	c.tier1.Add(keyStr, g)

	if err := c.putTier2(ctx, keyStr, g); err != nil {
		c.logger.Warn("graphcache tier-2 write failed", "key", keyStr, "error", err)
	}

	return g, nil
}

func (c *Cache) getTier2(ctx context.Context, keyStr string) (*graph.Graph, error) {
	blobKey := c.tier2BlobKey(keyStr)

	exists, err := c.bucket.Exists(ctx, blobKey)
	if err != nil || !exists {
		return nil, routeerr.NotFound("tier-2 cache miss")
	}

	compressed, err := c.bucket.ReadAll(ctx, blobKey)
	if err != nil {
		return nil, routeerr.Transient(err, "read tier-2 cache entry")
	}

	decoder, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, routeerr.Transient(err, "open zstd decoder")
	}
	defer decoder.Close()

	decompressed, err := io.ReadAll(decoder)
	if err != nil {
		return nil, routeerr.Transient(err, "decompress tier-2 cache entry")
	}

	g, err := graph.Decode(decompressed)
	if err != nil {
		return nil, routeerr.Transient(err, "decode tier-2 cache entry")
	}

	return g, nil
}

func (c *Cache) putTier2(ctx context.Context, keyStr string, g *graph.Graph) error {
	encoded, err := g.Encode()
	if err != nil {
		return err
	}

	var compressed bytes.Buffer

	encoder, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return routeerr.Internal(err, "open zstd encoder")
	}

	if _, err := encoder.Write(encoded); err != nil {
		encoder.Close()

		return routeerr.Internal(err, "compress graph")
	}

	if err := encoder.Close(); err != nil {
		return routeerr.Internal(err, "finalize zstd stream")
	}

	// gocloud.dev/blob.Bucket.WriteAll already writes to a temp object
	// and commits atomically on Close, giving a lock-free disk cache
	// without an explicit write-to-temp-then-rename dance here.
	c.logger.Debug("graphcache tier-2 write", "key", keyStr, "bytes", util.FormatBytes(int64(compressed.Len())))

	return c.bucket.WriteAll(ctx, c.tier2BlobKey(keyStr), compressed.Bytes(), nil)
}

func (c *Cache) buildTier3(ctx context.Context, key Key) (*graph.Graph, error) {
	file, err := os.Open(c.pbfPath)
	if err != nil {
		return nil, routeerr.Unavailable(err, "open OSM extract")
	}
	defer file.Close()

	c.logger.Info("graphcache building from source", "key", key.String(), "pbf_path", c.pbfPath)

	start := time.Now()

	g, err := c.builder.Build(ctx, file, key.Bbox)
	if err != nil {
		return nil, routeerr.Internal(err, "build graph from source")
	}

	c.logger.Info("graphcache build finished", "key", key.String(), "elapsed", util.FormatDuration(time.Since(start)))

	return g, nil
}

// tier2BlobKey namespaces keyStr under the current extract's checksum so
// a replaced PBF file never serves a graph built from its predecessor.
func (c *Cache) tier2BlobKey(keyStr string) string {
	return c.pbfChecksum[:8] + "_" + keyStr + ".bin.zst"
}
