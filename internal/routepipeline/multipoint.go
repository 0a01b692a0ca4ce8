package routepipeline

import (
	"context"

	"trailrouter/internal/geo"
	"trailrouter/internal/routeengine"
	"trailrouter/internal/routeerr"
)

// MultiPoint chains N-1 (or N, with CloseLoop) independent
// point-to-point segments and concatenates them, deduplicating the
// shared joint between consecutive segments, per §4.5. The bbox
// submitted to the cache is the union of every segment's bbox.
func (p *Pipeline) MultiPoint(ctx context.Context, req MultiPointRequest) (RouteResponse, error) {
	weights, err := p.resolveAndValidateWeights(req.Weights)
	if err != nil {
		return RouteResponse{}, err
	}

	resp, _, err := p.multiPointWithExclusions(ctx, req, weights, nil)

	return resp, err
}

// multiPointWithExclusions is MultiPoint's implementation, additionally
// accepting a pre-resolved Weights and an excluded edge set and
// returning the edges the accepted path traversed. Loop generation
// drives this directly so it can grow excluded across candidates within
// one request, per §4.4's find_path_with_excluded_edges.
func (p *Pipeline) multiPointWithExclusions(
	ctx context.Context,
	req MultiPointRequest,
	weights routeengine.Weights,
	excluded map[int]struct{},
) (RouteResponse, map[int]struct{}, error) {
	logger, _ := p.requestLogger()

	if err := p.validateRequest(req); err != nil {
		return RouteResponse{}, nil, err
	}

	for _, wp := range req.Waypoints {
		if err := wp.Validate(); err != nil {
			return RouteResponse{}, nil, err
		}
	}

	segments := segmentPairs(req.Waypoints, req.CloseLoop)

	unionBBox := geo.BoundingBoxFromCoordinates(req.Waypoints...)
	for _, seg := range segments {
		unionBBox = unionBBox.Union(geo.BoundingBoxFromCoordinates(seg[0], seg[1]))
	}

	engine, err := p.engineForBBox(ctx, unionBBox)
	if err != nil {
		logger.Warn("multi-point graph fetch failed", "error", err)

		return RouteResponse{}, nil, err
	}

	path, traversed, err := searchSegments(ctx, engine, segments, weights, excluded)
	if err != nil {
		logger.Info("multi-point search found no path", "error", err)

		return RouteResponse{}, nil, err
	}

	return p.attachElevation(ctx, path), traversed, nil
}

// segmentPairs returns the consecutive (and, if closeLoop, closing)
// waypoint pairs a multi-point request must search independently.
func segmentPairs(waypoints []geo.Coordinate, closeLoop bool) [][2]geo.Coordinate {
	segments := make([][2]geo.Coordinate, 0, len(waypoints))

	for i := 0; i+1 < len(waypoints); i++ {
		segments = append(segments, [2]geo.Coordinate{waypoints[i], waypoints[i+1]})
	}

	if closeLoop {
		segments = append(segments, [2]geo.Coordinate{waypoints[len(waypoints)-1], waypoints[0]})
	}

	return segments
}

// searchSegments runs one A* search per segment against a shared
// engine and concatenates the results, dropping each segment's leading
// point after the first so the shared joint appears exactly once. ctx
// is checked at each segment boundary so a cancelled request releases
// its share of the CPU pool there rather than running every remaining
// segment, per §5. The edge indices traversed by every segment are
// returned so a caller can exclude them from a later search.
func searchSegments(
	ctx context.Context,
	engine PathEngine,
	segments [][2]geo.Coordinate,
	weights routeengine.Weights,
	excluded map[int]struct{},
) ([]geo.Coordinate, map[int]struct{}, error) {
	var full []geo.Coordinate

	traversed := make(map[int]struct{})

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		segPath, segEdges := engine.FindPathEdges(routeengine.Request{Start: seg[0], End: seg[1], Weights: weights}, excluded)
		if segPath == nil {
			return nil, nil, routeerr.NotFound("no path for one or more segments")
		}

		for _, idx := range segEdges {
			traversed[idx] = struct{}{}
		}

		if i > 0 {
			segPath = segPath[1:]
		}

		full = append(full, segPath...)
	}

	return full, traversed, nil
}
