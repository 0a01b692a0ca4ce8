package elevation

import (
	"context"
	"log/slog"
	"sort"

	"trailrouter/internal/geo"
)

// smoothingWindow is the sliding-window median filter width from §4.6.
const smoothingWindow = 5

// Profile is an ElevationProfile: one optional elevation per path
// point, plus totals computed over the smoothed sequence.
type Profile struct {
	Elevations   []*float64
	MinElevation *float64
	MaxElevation *float64
	TotalAscent  float64
	TotalDescent float64
}

// Source resolves a path's elevation profile, preferring a local DEM
// and falling back to a remote service for points outside its coverage
// or when no DEM is configured.
type Source struct {
	dem    *DEM
	remote *RemoteClient
	logger *slog.Logger
}

// NewSource builds a Source. Either dem or remote may be nil (but not
// both, or every point resolves to None); a nil logger defaults to
// slog.Default().
func NewSource(dem *DEM, remote *RemoteClient, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{dem: dem, remote: remote, logger: logger}
}

// Profile produces a smoothed ElevationProfile for path.
func (s *Source) Profile(ctx context.Context, path []geo.Coordinate) Profile {
	raw := make([]*float64, len(path))
	var remoteNeeded []int

	for i, c := range path {
		if s.dem != nil {
			if v, ok := s.dem.Sample(c); ok {
				raw[i] = floatPtr(v)
				continue
			}
		}

		remoteNeeded = append(remoteNeeded, i)
	}

	if len(remoteNeeded) > 0 && s.remote != nil {
		points := make([]geo.Coordinate, len(remoteNeeded))
		for j, idx := range remoteNeeded {
			points[j] = path[idx]
		}

		resolved := s.remote.Fetch(ctx, points)
		for j, idx := range remoteNeeded {
			raw[idx] = resolved[j]
		}

		s.logger.Debug("elevation remote fallback", "points", len(remoteNeeded))
	}

	return BuildProfile(raw)
}

// BuildProfile smooths raw (honouring None holes) and computes totals,
// independent of how the samples were obtained — exported so callers
// holding pre-fetched elevations (tests, cache replays) can skip Source
// entirely.
func BuildProfile(raw []*float64) Profile {
	smoothed := medianSmooth(raw, smoothingWindow)

	p := Profile{Elevations: smoothed}

	var prev *float64

	for _, e := range smoothed {
		if e == nil {
			prev = nil
			continue
		}

		if p.MinElevation == nil || *e < *p.MinElevation {
			p.MinElevation = floatPtr(*e)
		}

		if p.MaxElevation == nil || *e > *p.MaxElevation {
			p.MaxElevation = floatPtr(*e)
		}

		if prev != nil {
			if delta := *e - *prev; delta > 0 {
				p.TotalAscent += delta
			} else {
				p.TotalDescent += -delta
			}
		}

		prev = e
	}

	return p
}

// medianSmooth applies a sliding-window median filter of the given odd
// width, excluding None samples from the window rather than treating
// them as zero, and leaving None holes in place in the output.
func medianSmooth(raw []*float64, window int) []*float64 {
	out := make([]*float64, len(raw))
	half := window / 2

	for i := range raw {
		if raw[i] == nil {
			out[i] = nil
			continue
		}

		lo := i - half
		if lo < 0 {
			lo = 0
		}

		hi := i + half
		if hi >= len(raw) {
			hi = len(raw) - 1
		}

		var samples []float64

		for j := lo; j <= hi; j++ {
			if raw[j] != nil {
				samples = append(samples, *raw[j])
			}
		}

		out[i] = floatPtr(median(samples))
	}

	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func floatPtr(v float64) *float64 {
	return &v
}
