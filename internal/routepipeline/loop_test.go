package routepipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailrouter/internal/elevation"
	"trailrouter/internal/geo"
	"trailrouter/internal/routepipeline"
)

func TestPipeline_LoopReturnsCandidatesWithinTolerance(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	req := routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 1.0,
		ToleranceKM:      1000.0,
		CandidateCount:   4,
	}

	candidates, err := p.Loop(context.Background(), req)

	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), req.CandidateCount)

	for i := 1; i < len(candidates); i++ {
		prevErr := candidates[i-1].DistanceErrorKM
		if prevErr < 0 {
			prevErr = -prevErr
		}

		curErr := candidates[i].DistanceErrorKM
		if curErr < 0 {
			curErr = -curErr
		}

		assert.LessOrEqual(t, prevErr, curErr)
	}
}

func TestPipeline_LoopStopsAtCandidateBoundaryWhenCancelled(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Loop(ctx, routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 1.0,
		ToleranceKM:      1000.0,
		CandidateCount:   4,
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_LoopRejectsNonPositiveTargetDistance(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.Loop(context.Background(), routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 0,
		ToleranceKM:      1.0,
		CandidateCount:   3,
	})

	assert.Error(t, err)
}

func TestPipeline_LoopRejectsZeroCandidateCount(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.Loop(context.Background(), routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 1.0,
		ToleranceKM:      1.0,
		CandidateCount:   0,
	})

	assert.Error(t, err)
}

func TestPipeline_LoopReturnsNotFoundWhenNoCandidateFitsTolerance(t *testing.T) {
	g := buildChainGraph(t)
	p := newTestPipeline(t, g, nil)

	_, err := p.Loop(context.Background(), routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 1.0,
		ToleranceKM:      0.0000001,
		CandidateCount:   3,
	})

	assert.Error(t, err)
}

func TestPipeline_LoopRespectsAscentBounds(t *testing.T) {
	g := buildChainGraph(t)
	// Every candidate's profile climbs 50 m, above the 0 m ceiling.
	p := newTestPipeline(t, g, &fakeElevationSource{profile: elevation.Profile{TotalAscent: 50}})

	tooHigh := 0.0

	_, err := p.Loop(context.Background(), routepipeline.LoopRequest{
		Start:            geo.Coordinate{Lat: 45.930, Lon: 4.580},
		TargetDistanceKM: 1.0,
		ToleranceKM:      1000.0,
		CandidateCount:   3,
		MaxAscentM:       &tooHigh,
	})

	assert.Error(t, err)
}
