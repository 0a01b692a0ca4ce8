package routepipeline

import (
	"trailrouter/internal/elevation"
	"trailrouter/internal/geo"
	"trailrouter/internal/routeengine"
)

// PointToPointRequest carries the coordinates and weight overrides one
// point-to-point search needs. Start/End validity (NaN, out-of-range
// lat/lon) is checked explicitly by PointToPoint rather than via a
// struct tag, since a struct-typed field can't express "not Null
// Island" through validator alone.
type PointToPointRequest struct {
	Start   geo.Coordinate
	End     geo.Coordinate
	Weights routeengine.Weights
}

// MultiPointRequest chains N-1 (or N, if CloseLoop) independent
// point-to-point segments, per §4.5.
type MultiPointRequest struct {
	Waypoints []geo.Coordinate `validate:"min=2"`
	CloseLoop bool
	Weights   routeengine.Weights
}

// LoopRequest parameterises the loop-generation pipeline of §4.5.
type LoopRequest struct {
	Start            geo.Coordinate
	TargetDistanceKM float64 `validate:"gt=0"`
	ToleranceKM      float64 `validate:"gte=0"`
	CandidateCount   int     `validate:"gt=0"`
	MinAscentM       *float64
	MaxAscentM       *float64
	Weights          routeengine.Weights
}

// RouteMetadata carries the descriptive fields of a RouteResponse.
type RouteMetadata struct {
	PointCount int
	Bounds     geo.BoundingBox
	Start      geo.Coordinate
	End        geo.Coordinate
}

// RouteResponse is a finished path with
// distance, metadata, and an attached elevation profile.
type RouteResponse struct {
	Path             []geo.Coordinate
	DistanceKM       float64
	Metadata         RouteMetadata
	ElevationProfile *elevation.Profile
}

// LoopCandidate is one accepted or scored loop proposal from the
// loop-generation pipeline.
type LoopCandidate struct {
	Route           RouteResponse
	DistanceErrorKM float64
	BearingDeg      float64
}

func pathLengthKM(path []geo.Coordinate) float64 {
	var totalM float64

	for i := 1; i < len(path); i++ {
		totalM += geo.HaversineM(path[i-1], path[i])
	}

	return totalM / 1000.0
}

func buildResponse(path []geo.Coordinate, profile *elevation.Profile) RouteResponse {
	resp := RouteResponse{
		Path:             path,
		DistanceKM:       pathLengthKM(path),
		ElevationProfile: profile,
	}

	if len(path) > 0 {
		resp.Metadata = RouteMetadata{
			PointCount: len(path),
			Bounds:     geo.BoundingBoxFromCoordinates(path...),
			Start:      path[0],
			End:        path[len(path)-1],
		}
	}

	return resp
}
