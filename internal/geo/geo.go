// Package geo provides the pure geometric primitives the rest of the
// engine is built on: coordinates, bounding boxes, great-circle distance
// and bearing math. Everything here is a value type and every function
// is side-effect free. Coordinate converts to and from
// github.com/paulmach/orb's Point (Point, FromPoint); the distance and
// bearing math itself uses the standard library's math package.
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"trailrouter/internal/routeerr"
)

// earthRadiusM is the mean Earth radius used for haversine distance and
// destination-point projection.
const earthRadiusM = 6371000.0

// maxBBoxAreaKM2 is the default DoS guard on request bounding boxes; it
// is overridable via config but the zero value here is never used
// directly — see BoundingBox.Validate.
const maxBBoxAreaKM2 = 10000.0

// Coordinate is an immutable (lat, lon) pair in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Point converts a Coordinate to an orb.Point, which is ordered (lon, lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint builds a Coordinate from an orb.Point.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p[1], Lon: p[0]}
}

// Validate reports whether c satisfies the lat/lon range invariants.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return routeerr.InvalidInput("coordinate contains NaN or infinite value")
	}

	if c.Lat < -90 || c.Lat > 90 {
		return routeerr.InvalidInput("latitude out of range [-90, 90]")
	}

	if c.Lon < -180 || c.Lon > 180 {
		return routeerr.InvalidInput("longitude out of range [-180, 180]")
	}

	return nil
}

// BoundingBox is a closed rectangle in latitude/longitude.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether c lies within the closed box.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Expand returns a new BoundingBox widened by marginM metres on each side.
func (b BoundingBox) Expand(marginM float64) BoundingBox {
	latDelta := marginM / 111320.0
	midLat := (b.MinLat + b.MaxLat) / 2
	lonDenom := 111320.0 * math.Cos(midLat*math.Pi/180)
	lonDelta := marginM / math.Max(lonDenom, 1.0)

	return BoundingBox{
		MinLat: clampLat(b.MinLat - latDelta),
		MaxLat: clampLat(b.MaxLat + latDelta),
		MinLon: NormalizeLongitude(b.MinLon - lonDelta),
		MaxLon: NormalizeLongitude(b.MaxLon + lonDelta),
	}
}

// Union returns the smallest BoundingBox containing both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		MinLat: math.Min(b.MinLat, other.MinLat),
		MaxLat: math.Max(b.MaxLat, other.MaxLat),
		MinLon: math.Min(b.MinLon, other.MinLon),
		MaxLon: math.Max(b.MaxLon, other.MaxLon),
	}
}

// AreaKM2 approximates the box's surface area in square kilometres,
// treating it as a flat rectangle at its mean latitude. That
// approximation is sufficient for the 10,000 km² guard; it is not a
// geodesic area computation.
func (b BoundingBox) AreaKM2() float64 {
	midLat := (b.MinLat + b.MaxLat) / 2
	heightKM := (b.MaxLat - b.MinLat) * 111.32
	widthKM := (b.MaxLon - b.MinLon) * 111.32 * math.Cos(midLat*math.Pi/180)

	return math.Abs(heightKM * widthKM)
}

// Validate rejects malformed boxes and boxes exceeding maxAreaKM2 (the
// DoS guard from §3); pass 0 to use the default 10,000 km² threshold.
func (b BoundingBox) Validate(maxAreaKM2 float64) error {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return routeerr.InvalidInput("bounding box min exceeds max on some axis")
	}

	if maxAreaKM2 <= 0 {
		maxAreaKM2 = maxBBoxAreaKM2
	}

	if area := b.AreaKM2(); area > maxAreaKM2 {
		return routeerr.InvalidInput("bounding box area exceeds guard")
	}

	return nil
}

// BoundingBoxFromCoordinates returns the smallest box containing every
// coordinate in pts. Panics if pts is empty; callers must validate
// waypoint counts before calling this.
func BoundingBoxFromCoordinates(pts ...Coordinate) BoundingBox {
	box := BoundingBox{MinLat: pts[0].Lat, MaxLat: pts[0].Lat, MinLon: pts[0].Lon, MaxLon: pts[0].Lon}

	for _, p := range pts[1:] {
		box.MinLat = math.Min(box.MinLat, p.Lat)
		box.MaxLat = math.Max(box.MaxLat, p.Lat)
		box.MinLon = math.Min(box.MinLon, p.Lon)
		box.MaxLon = math.Max(box.MaxLon, p.Lon)
	}

	return box
}

// HaversineM returns the great-circle distance between a and b in
// metres, using the mean Earth radius. Identical inputs short-circuit
// to exactly 0 rather than relying on floating-point trig to land on
// zero.
func HaversineM(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// NormalizeLongitude reduces x onto (-180, 180].
func NormalizeLongitude(x float64) float64 {
	x = math.Mod(x+180, 360)
	if x <= 0 {
		x += 360
	}

	return x - 180
}

// NormalizeBearing reduces theta (degrees) onto [0, 360).
func NormalizeBearing(theta float64) float64 {
	theta = math.Mod(theta, 360)
	if theta < 0 {
		theta += 360
	}

	return theta
}

// DestinationPoint returns the Coordinate reached from start after
// travelling distanceM metres along initial bearing bearingDeg degrees.
func DestinationPoint(start Coordinate, distanceM, bearingDeg float64) Coordinate {
	bearingRad := bearingDeg * math.Pi / 180
	angularDist := distanceM / earthRadiusM

	lat1 := start.Lat * math.Pi / 180
	lon1 := start.Lon * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angularDist) +
		math.Cos(lat1)*math.Sin(angularDist)*math.Cos(bearingRad))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angularDist)*math.Cos(lat1),
		math.Cos(angularDist)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Coordinate{
		Lat: clampLat(lat2 * 180 / math.Pi),
		Lon: NormalizeLongitude(lon2 * 180 / math.Pi),
	}
}

// PerpendicularUnit returns a unit vector, expressed as a (dLat, dLon)
// pair in a local planar approximation, perpendicular to the segment
// end-start. It is a UI-preview helper only: not suitable for distances
// where the flat-earth approximation breaks down.
func PerpendicularUnit(start, end Coordinate) (dLat, dLon float64) {
	midLat := (start.Lat + end.Lat) / 2
	lonScale := math.Cos(midLat * math.Pi / 180)

	vx := (end.Lon - start.Lon) * lonScale
	vy := end.Lat - start.Lat

	length := math.Hypot(vx, vy)
	if length == 0 {
		return 0, 0
	}

	px, py := -vy/length, vx/length

	return py, px / lonScale
}

func clampLat(lat float64) float64 {
	if lat > 90 {
		return 90
	}

	if lat < -90 {
		return -90
	}

	return lat
}
