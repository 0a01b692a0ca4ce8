package routepipeline

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"trailrouter/internal/geo"
	"trailrouter/internal/routeerr"
)

// loopTriangleSpreadDeg is the angular offset between the three
// waypoints generated for a single bearing, chosen so destination_point
// traces a rough triangle around the start rather than three collinear
// points on the same bearing.
const loopTriangleSpreadDeg = 40.0

// Loop generates up to req.CandidateCount closed-loop RouteResponses
// near req.TargetDistanceKM, per §4.5. If fewer candidates satisfy the
// constraints than requested, returns what was found; if none, returns
// a not-found error so the caller can report "no loop meeting
// constraints."
func (p *Pipeline) Loop(ctx context.Context, req LoopRequest) ([]LoopCandidate, error) {
	logger, _ := p.requestLogger()

	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	if err := req.Start.Validate(); err != nil {
		return nil, err
	}

	weights, err := p.resolveAndValidateWeights(req.Weights)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(loopSeed(req)))

	excluded := map[int]struct{}{}

	var candidates []LoopCandidate

	for i := 0; i < req.CandidateCount; i++ {
		if err := ctx.Err(); err != nil {
			logger.Debug("loop candidate generation cancelled", "error", err)

			return nil, err
		}

		baseBearing := float64(i) * (360.0 / float64(req.CandidateCount))
		bearing := jitterBearing(baseBearing, rng)

		waypoints := triangleWaypoints(req.Start, req.TargetDistanceKM, bearing)

		resp, traversed, err := p.multiPointWithExclusions(ctx, MultiPointRequest{
			Waypoints: waypoints,
			CloseLoop: true,
			Weights:   weights,
		}, weights, excluded)
		if err != nil {
			logger.Debug("loop candidate search failed", "bearing", bearing, "error", err)

			continue
		}

		// Excluding every successfully found candidate's edges, not just
		// accepted ones, steers later bearings away from routes already
		// explored this request even when the candidate itself missed
		// the distance or ascent bounds.
		for idx := range traversed {
			excluded[idx] = struct{}{}
		}

		distanceError := resp.DistanceKM - req.TargetDistanceKM
		if absFloat(distanceError) > req.ToleranceKM {
			continue
		}

		if !ascentWithinBounds(resp, req) {
			continue
		}

		candidates = append(candidates, LoopCandidate{
			Route:           resp,
			DistanceErrorKM: distanceError,
			BearingDeg:      bearing,
		})
	}

	if len(candidates) == 0 {
		return nil, routeerr.NotFound("no loop candidate satisfies the requested constraints")
	}

	sort.Slice(candidates, func(i, j int) bool {
		return absFloat(candidates[i].DistanceErrorKM) < absFloat(candidates[j].DistanceErrorKM)
	})

	if len(candidates) > req.CandidateCount {
		candidates = candidates[:req.CandidateCount]
	}

	return candidates, nil
}

// triangleWaypoints builds the start -> wp1 -> wp2 -> wp3 waypoint set
// for one bearing, per §4.5 step 2.
func triangleWaypoints(start geo.Coordinate, targetDistanceKM, bearing float64) []geo.Coordinate {
	halfTargetM := targetDistanceKM * 1000 / 2

	wp1 := geo.DestinationPoint(start, 0.375*halfTargetM, bearing)
	wp2 := geo.DestinationPoint(start, 0.5*halfTargetM, bearing+loopTriangleSpreadDeg)
	wp3 := geo.DestinationPoint(start, 0.375*halfTargetM, bearing+2*loopTriangleSpreadDeg)

	return []geo.Coordinate{start, wp1, wp2, wp3}
}

func ascentWithinBounds(resp RouteResponse, req LoopRequest) bool {
	if resp.ElevationProfile == nil {
		return req.MinAscentM == nil && req.MaxAscentM == nil
	}

	ascent := resp.ElevationProfile.TotalAscent

	if req.MinAscentM != nil && ascent < *req.MinAscentM {
		return false
	}

	if req.MaxAscentM != nil && ascent > *req.MaxAscentM {
		return false
	}

	return true
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

// loopSeed seeds the jitter RNG from the request's start and target
// distance mixed with the current time, so repeat identical requests
// draw different bearing jitter.
func loopSeed(req LoopRequest) int64 {
	seed := int64(req.Start.Lat*1e6) ^ int64(req.Start.Lon*1e6) ^ int64(req.TargetDistanceKM*1000) ^ time.Now().UnixNano()

	return seed
}
