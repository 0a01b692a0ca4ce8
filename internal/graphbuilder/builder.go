// Package graphbuilder extracts a partial road-network Graph from a
// region-scale OpenStreetMap PBF extract for a given bounding box. It is
// grounded on other_examples' azybler/map_router pkg/osm-parser.go,
// which streams the same two-pass node/way scan with
// github.com/paulmach/osm and github.com/paulmach/osm/osmpbf; this
// package keeps that pipeline shape (collect referenced nodes from ways,
// seek back, collect only those nodes' coordinates) but reclassifies
// ways by the walking/cycling highway allow-list and Paved/Trail/Dirt
// surface tags instead of car-routing direction flags.
package graphbuilder

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/routeerr"
)

// allowedHighways is the highway-tag allow-list from §4.2: ways whose
// highway tag is not in this set are not part of the graph.
var allowedHighways = map[string]bool{
	"path":          true,
	"footway":       true,
	"living_street": true,
	"secondary":     true,
	"tertiary":      true,
	"residential":   true,
	"track":         true,
	"service":       true,
	"unclassified":  true,
	"primary":       true,
}

// trailSurfaceTags map a way's surface tag onto graph.Trail.
var trailSurfaceTags = map[string]bool{
	"gravel":       true,
	"fine_gravel":  true,
	"compacted":    true,
	"unpaved":      true,
}

// dirtSurfaceTags map a way's surface tag onto graph.Dirt.
var dirtSurfaceTags = map[string]bool{
	"dirt":  true,
	"earth": true,
	"ground": true,
	"grass": true,
}

// trailHighways default to graph.Trail when the way carries no surface tag.
var trailHighways = map[string]bool{
	"path":    true,
	"footway": true,
	"track":   true,
}

// pavedHighways default to graph.Paved when the way carries no surface tag.
var pavedHighways = map[string]bool{
	"service":      true,
	"residential":  true,
	"primary":      true,
	"secondary":    true,
	"tertiary":     true,
}

// DefaultMarginM is the default bbox expansion applied before
// extraction, avoiding connectivity holes near the edge of the
// requested area.
const DefaultMarginM = 1000.0

// placeReferenceAreaKM2 gives each OSM place classification a rough
// settlement footprint, used to turn an explicit population tag into a
// density when one is present.
var placeReferenceAreaKM2 = map[string]float64{
	"city":              50,
	"town":              10,
	"suburb":            5,
	"village":           2,
	"hamlet":            0.5,
	"isolated_dwelling": 0.1,
}

// placeDefaultDensity is the density (people/km²) assumed for a place
// node that carries no population tag, per settlement class; these are
// the proxy §4.4's w_pop multiplier runs against when no direct density
// raster is available (see DESIGN.md).
var placeDefaultDensity = map[string]float64{
	"city":              6000,
	"town":              2000,
	"suburb":            1500,
	"village":           400,
	"hamlet":            80,
	"isolated_dwelling": 10,
}

// densityFalloffKM sets how quickly a place node's influence decays
// with distance in nodeDensity's inverse-square falloff.
const densityFalloffKM = 1.0

// placeNode is one OSM place=* node retained during pass 2, carrying
// its resolved density rather than its raw tags.
type placeNode struct {
	lat, lon, density float64
}

// classifyPlace reports the population density a place=* node
// contributes: population/area when a population tag parses, otherwise
// placeDefaultDensity's class default. Returns false for nodes that
// carry no recognised place tag.
func classifyPlace(tags osm.Tags) (float64, bool) {
	place := tags.Find("place")

	areaKM2, ok := placeReferenceAreaKM2[place]
	if !ok {
		return 0, false
	}

	if pop := tags.Find("population"); pop != "" {
		if n, err := strconv.ParseFloat(pop, 64); err == nil && n > 0 {
			return n / areaKM2, true
		}
	}

	return placeDefaultDensity[place], true
}

// nodeDensity estimates a graph node's population density as the sum of
// every nearby place node's density, attenuated by an inverse-square
// falloff in distance — a gravity-model proxy for the direct density
// raster §4.4 assumes, since OSM extracts carry settlement points, not
// a continuous population grid.
func nodeDensity(coord geo.Coordinate, places []placeNode) float64 {
	var total float64

	for _, pl := range places {
		distKM := geo.HaversineM(coord, geo.Coordinate{Lat: pl.lat, Lon: pl.lon}) / 1000.0
		falloff := distKM / densityFalloffKM
		total += pl.density / (1 + falloff*falloff)
	}

	return total
}

// Options configures a single Build invocation.
type Options struct {
	// MarginM expands BBox by this many metres on each side before
	// filtering nodes. Zero means DefaultMarginM.
	MarginM float64
	// Workers sizes the osmpbf scanner's internal decode parallelism.
	// Zero means 1 (sequential, matching the grounding source).
	Workers int
	// Logger receives pipeline-stage progress; nil uses slog.Default().
	Logger *slog.Logger
}

// Builder extracts Graphs from an OSM PBF extract.
type Builder struct {
	opts Options
}

// New returns a Builder with the given options. A Builder is stateless
// and safe for concurrent use across distinct Build calls, since each
// call opens its own scanners over the caller-supplied reader.
func New(opts Options) *Builder {
	if opts.MarginM <= 0 {
		opts.MarginM = DefaultMarginM
	}

	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Builder{opts: opts}
}

// wayInfo holds a way's retained node IDs and classification, collected
// during pass 1 and consumed once pass 2 has resolved coordinates.
type wayInfo struct {
	nodeIDs []osm.NodeID
	surface graph.SurfaceType
}

// nodeCoord is a pass-2-resolved node's coordinate, keyed by osm.NodeID
// in the coords map the assembly step consumes.
type nodeCoord struct {
	lat, lon float64
}

// Build streams source twice: once to collect ways and the node IDs
// they reference, seeking back to collect only the coordinates of those
// referenced nodes. source must implement io.ReadSeeker because pass 2
// reopens pass 1's scan in the same stream, matching the grounding
// source. Returns an empty (zero-node) Graph as success, not an error,
// when nothing in bbox matches — callers decide what to do with that.
func (b *Builder) Build(ctx context.Context, source io.ReadSeeker, bbox geo.BoundingBox) (*graph.Graph, error) {
	expanded := bbox.Expand(b.opts.MarginM)

	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, source, b.opts.Workers)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		way, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}

		surface, ok := classifyWay(way.Tags)
		if !ok {
			continue
		}

		if len(way.Nodes) < 2 {
			continue
		}

		ids := make([]osm.NodeID, len(way.Nodes))
		for i, wn := range way.Nodes {
			ids[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		ways = append(ways, wayInfo{nodeIDs: ids, surface: surface})
	}

	if err := scanner.Err(); err != nil {
		scanner.Close()

		return nil, routeerr.Unavailable(err, "scan OSM ways")
	}

	scanner.Close()

	b.opts.Logger.Debug("graphbuilder pass 1 complete", "ways", len(ways), "referenced_nodes", len(referencedNodes))

	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return nil, routeerr.Unavailable(err, "seek OSM extract for pass 2")
	}

	coords := make(map[osm.NodeID]nodeCoord, len(referencedNodes))
	var places []placeNode

	scanner = osmpbf.New(ctx, source, b.opts.Workers)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}

		c := geo.Coordinate{Lat: node.Lat, Lon: node.Lon}
		if !expanded.Contains(c) {
			continue
		}

		if density, ok := classifyPlace(node.Tags); ok {
			places = append(places, placeNode{lat: node.Lat, lon: node.Lon, density: density})
		}

		if _, needed := referencedNodes[node.ID]; !needed {
			continue
		}

		coords[node.ID] = nodeCoord{lat: node.Lat, lon: node.Lon}
	}

	if err := scanner.Err(); err != nil {
		scanner.Close()

		return nil, routeerr.Unavailable(err, "scan OSM nodes")
	}

	scanner.Close()

	b.opts.Logger.Debug("graphbuilder pass 2 complete", "node_coords", len(coords), "place_nodes", len(places))

	g, retainedEdges, err := assembleGraph(ways, coords, places)
	if err != nil {
		return nil, routeerr.Internal(err, "assemble graph")
	}

	b.opts.Logger.Info("graphbuilder finished", "nodes", g.NodeCount(), "edges", retainedEdges)

	return g, nil
}

// assembleGraph turns the two scan passes' results — retained ways,
// resolved node coordinates and nearby place nodes — into a Graph. It
// holds no scanner state, so it is the part of Build worth testing
// directly against an in-memory fixture rather than a real PBF stream.
func assembleGraph(
	ways []wayInfo,
	coords map[osm.NodeID]nodeCoord,
	places []placeNode,
) (*graph.Graph, int, error) {
	builder := graph.NewBuilder(len(coords), len(ways)*2)
	nodeIndex := make(map[osm.NodeID]graph.NodeID, len(coords))

	for id, c := range coords {
		density := nodeDensity(geo.Coordinate{Lat: c.lat, Lon: c.lon}, places)
		nodeIndex[id] = builder.AddNode(c.lat, c.lon, density)
	}

	var retainedEdges int

	for _, w := range ways {
		for i := 0; i < len(w.nodeIDs)-1; i++ {
			fromIdx, fromOK := nodeIndex[w.nodeIDs[i]]
			toIdx, toOK := nodeIndex[w.nodeIDs[i+1]]

			if !fromOK || !toOK {
				continue
			}

			fromCoord := coords[w.nodeIDs[i]]
			toCoord := coords[w.nodeIDs[i+1]]

			length := geo.HaversineM(
				geo.Coordinate{Lat: fromCoord.lat, Lon: fromCoord.lon},
				geo.Coordinate{Lat: toCoord.lat, Lon: toCoord.lon},
			)

			builder.AddEdge(fromIdx, toIdx, w.surface, length)
			retainedEdges++
		}
	}

	g, err := builder.Build()
	if err != nil {
		return nil, 0, err
	}

	return g, retainedEdges, nil
}

// classifyWay reports whether way's highway tag is on the allow-list
// and, if so, the surface it is assigned per §4.2's precedence rules:
// an explicit surface tag wins; otherwise the highway class decides;
// any other allow-listed class defaults to Trail.
func classifyWay(tags osm.Tags) (graph.SurfaceType, bool) {
	highway := tags.Find("highway")
	if !allowedHighways[highway] {
		return 0, false
	}

	if surface := tags.Find("surface"); surface != "" {
		switch {
		case trailSurfaceTags[surface]:
			return graph.Trail, true
		case dirtSurfaceTags[surface]:
			return graph.Dirt, true
		default:
			return graph.Paved, true
		}
	}

	switch {
	case trailHighways[highway]:
		return graph.Trail, true
	case pavedHighways[highway]:
		return graph.Paved, true
	default:
		return graph.Trail, true
	}
}
