// Package routepipeline implements the three request-level operations
// of §4.5 — point-to-point, multi-point and loop generation — each
// building on a RouteEngine constructed from a GraphCache lookup.
// Request validation uses go-playground/validator/v10 struct tags; the
// per-request correlation ID threaded through log lines is a
// github.com/google/uuid value standing in for the request ID an
// embedding HTTP layer would otherwise mint, since this package has no
// HTTP surface of its own.
package routepipeline

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"trailrouter/internal/elevation"
	"trailrouter/internal/geo"
	"trailrouter/internal/graph"
	"trailrouter/internal/graphcache"
	"trailrouter/internal/routeengine"
	"trailrouter/internal/routeerr"
)

// GraphCache is the capability routepipeline depends on to resolve a
// Graph for a bbox; *graphcache.Cache satisfies it. Declaring it as an
// interface here, rather than depending on the concrete type directly,
// lets tests substitute a fake without touching the pipeline.
type GraphCache interface {
	Get(ctx context.Context, key graphcache.Key) (*graph.Graph, error)
}

// ElevationSource is the capability routepipeline depends on to attach
// an elevation profile to a finished path; *elevation.Source satisfies
// it.
type ElevationSource interface {
	Profile(ctx context.Context, path []geo.Coordinate) elevation.Profile
}

// PathEngine is the capability a constructed RouteEngine exposes to the
// pipeline; *routeengine.Engine satisfies it. Substitutable the same
// way GraphCache is.
type PathEngine interface {
	FindPath(req routeengine.Request) []geo.Coordinate
	FindPathExcluding(req routeengine.Request, excluded map[int]struct{}) []geo.Coordinate
	FindPathEdges(req routeengine.Request, excluded map[int]struct{}) ([]geo.Coordinate, []int)
	ClosestNode(coord geo.Coordinate) (graph.NodeID, bool)
}

// DefaultMarginM is the bbox margin applied before every cache lookup,
// matching graphbuilder.DefaultMarginM.
const DefaultMarginM = 1000.0

// MaxBBoxAreaKM2 is the default DoS guard from §6; overridable via
// Params.MaxBBoxAreaKM2.
const MaxBBoxAreaKM2 = 10000.0

// Params is the fx.In constructor bundle for Pipeline.
type Params struct {
	fx.In

	Cache          GraphCache
	Elevation      ElevationSource `optional:"true"`
	MaxBBoxAreaKM2 float64         `optional:"true"`
	Logger         *slog.Logger    `optional:"true"`
}

// Pipeline orchestrates RouteEngine construction and search for the
// three top-level operations.
type Pipeline struct {
	cache          GraphCache
	elevationSrc   ElevationSource
	maxBBoxAreaKM2 float64
	logger         *slog.Logger
	validate       *validator.Validate
}

// New constructs a Pipeline.
func New(params Params) *Pipeline {
	maxArea := params.MaxBBoxAreaKM2
	if maxArea <= 0 {
		maxArea = MaxBBoxAreaKM2
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cache:          params.Cache,
		elevationSrc:   params.Elevation,
		maxBBoxAreaKM2: maxArea,
		logger:         logger,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

// requestLogger returns a logger stamped with a fresh correlation ID
// for one pipeline invocation.
func (p *Pipeline) requestLogger() (*slog.Logger, string) {
	id := uuid.NewString()

	return p.logger.With("request_id", id), id
}

// engineForBBox fetches (building on miss) the Graph covering bbox and
// constructs a RouteEngine around it.
func (p *Pipeline) engineForBBox(ctx context.Context, bbox geo.BoundingBox) (PathEngine, error) {
	if err := bbox.Validate(p.maxBBoxAreaKM2); err != nil {
		return nil, err
	}

	g, err := p.cache.Get(ctx, graphcache.Key{Bbox: bbox, MarginM: DefaultMarginM})
	if err != nil {
		return nil, err
	}

	return routeengine.New(g), nil
}

// attachElevation runs the configured ElevationSource over path and
// returns the finished RouteResponse; elevation attachment is always
// the last step on any finalised path, per §4.5.
func (p *Pipeline) attachElevation(ctx context.Context, path []geo.Coordinate) RouteResponse {
	var profile *elevation.Profile

	if p.elevationSrc != nil && len(path) > 0 {
		prof := p.elevationSrc.Profile(ctx, path)
		profile = &prof
	}

	return buildResponse(path, profile)
}

// jitterBearing adds a small random offset to a bearing for loop
// diversification across repeat calls, per the "Loop diversification"
// design note.
func jitterBearing(base float64, rng *rand.Rand) float64 {
	return geo.NormalizeBearing(base + (rng.Float64()*10 - 5))
}

// validateRequest runs struct-tag validation (waypoint counts, positive
// distances) and classifies any failure as invalid input, per §7.
func (p *Pipeline) validateRequest(req any) error {
	if err := p.validate.Struct(req); err != nil {
		return routeerr.InvalidInput(err.Error())
	}

	return nil
}

// resolveAndValidateWeights substitutes routeengine.DefaultWeights()
// whenever w is the Go zero value and rejects NaN, infinite or negative
// weights before they reach edgeWeight, per §7. An explicit
// {Paved: 0, Population: 0} is indistinguishable from an unset Weights
// and is replaced by the defaults too.
func (p *Pipeline) resolveAndValidateWeights(w routeengine.Weights) (routeengine.Weights, error) {
	resolved := w
	if resolved == (routeengine.Weights{}) {
		resolved = routeengine.DefaultWeights()
	}

	if err := resolved.Validate(); err != nil {
		return routeengine.Weights{}, err
	}

	return resolved, nil
}
