package routepipeline

import (
	"context"

	"trailrouter/internal/geo"
	"trailrouter/internal/routeengine"
	"trailrouter/internal/routeerr"
)

// PointToPoint widens [req.Start, req.End] to a bbox, fetches a Graph,
// searches, and attaches elevation, per §4.5. If start and end resolve
// to the same nearest node, the result is a zero-length single-point
// path rather than an error (§9's first open question).
func (p *Pipeline) PointToPoint(ctx context.Context, req PointToPointRequest) (RouteResponse, error) {
	logger, _ := p.requestLogger()

	if err := req.Start.Validate(); err != nil {
		return RouteResponse{}, err
	}

	if err := req.End.Validate(); err != nil {
		return RouteResponse{}, err
	}

	weights, err := p.resolveAndValidateWeights(req.Weights)
	if err != nil {
		return RouteResponse{}, err
	}

	bbox := geo.BoundingBoxFromCoordinates(req.Start, req.End)

	engine, err := p.engineForBBox(ctx, bbox)
	if err != nil {
		logger.Warn("point-to-point graph fetch failed", "error", err)

		return RouteResponse{}, err
	}

	path := engine.FindPath(routeengine.Request{Start: req.Start, End: req.End, Weights: weights})
	if path == nil {
		logger.Info("point-to-point search found no path")

		return RouteResponse{}, routeerr.NotFound("no path between start and end")
	}

	return p.attachElevation(ctx, path), nil
}
