// Package elevation samples per-point elevation from a local Arc/Info
// ASCII Grid DEM with a remote-service fallback, and derives smoothed
// ElevationProfiles for a finished path. The local-DEM bilinear sampler
// is hand-written against the standard library because no pure-Go
// Arc/Info ASCII Grid parser exists anywhere in the retrieval pack (the
// only DEM importer found, jcom-dev-zmanim's GLO-90 importer, is a cgo
// binding to GDAL) — see DESIGN.md. The remote fallback and smoothing
// logic instead lean on the pack's real dependencies: the batching and
// cache shape mirrors NERVsystems-osmmcp's pkg/core/osrm.go (LRU route
// cache, RetryOptions), backed by github.com/cenkalti/backoff/v5, which
// both osmmcp and AleutianFOSS pull in for exactly this kind of
// transient-failure retry.
package elevation

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"trailrouter/internal/geo"
	"trailrouter/internal/routeerr"
)

// noDataSentinel is the conventional Arc/Info ASCII Grid "missing data"
// value when the header does not specify one explicitly.
const noDataSentinel = -9999.0

// DEM is a parsed Arc/Info ASCII Grid: a dense row-major elevation
// matrix plus the georeferencing header needed to map a (lat, lon) onto
// a fractional cell coordinate. It is parsed once at process startup
// and retained for the process lifetime, per §4.6.
type DEM struct {
	ncols, nrows   int
	xllcorner      float64
	yllcorner      float64
	cellsize       float64
	noData         float64
	values         []float64 // row-major, row 0 is the northernmost row
}

// ParseDEM reads an Arc/Info ASCII Grid (header lines followed by a
// dense nrows*ncols matrix of elevation values) from r.
func ParseDEM(r io.Reader) (*DEM, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)

	d := &DEM{noData: noDataSentinel}

	headerFields := map[string]*float64{
		"xllcorner": &d.xllcorner,
		"yllcorner": &d.yllcorner,
		"cellsize":  &d.cellsize,
	}

	var gotNcols, gotNrows bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, routeerr.Unavailable(nil, "DEM header line malformed: "+line)
		}

		key := strings.ToLower(fields[0])

		switch key {
		case "ncols":
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, routeerr.Unavailable(err, "parse DEM ncols")
			}

			d.ncols = n
			gotNcols = true
		case "nrows":
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, routeerr.Unavailable(err, "parse DEM nrows")
			}

			d.nrows = n
			gotNrows = true
		case "nodata_value":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, routeerr.Unavailable(err, "parse DEM NODATA_value")
			}

			d.noData = v
		default:
			if target, ok := headerFields[key]; ok {
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, routeerr.Unavailable(err, fmt.Sprintf("parse DEM header field %q", key))
				}

				*target = v
			} else {
				// Header complete; this line begins the elevation matrix.
				if err := parseMatrixRow(d, line); err != nil {
					return nil, err
				}

				goto matrix
			}
		}
	}

matrix:
	if !gotNcols || !gotNrows || d.cellsize <= 0 {
		return nil, routeerr.Unavailable(nil, "DEM header missing ncols/nrows/cellsize")
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := parseMatrixRow(d, line); err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, routeerr.Unavailable(err, "read DEM matrix")
	}

	if len(d.values) != d.nrows*d.ncols {
		return nil, routeerr.Unavailable(nil, "DEM matrix size does not match ncols*nrows")
	}

	return d, nil
}

func parseMatrixRow(d *DEM, line string) error {
	for _, tok := range strings.Fields(line) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return routeerr.Unavailable(err, "parse DEM matrix value")
		}

		d.values = append(d.values, v)
	}

	return nil
}

// Sample returns the bilinearly interpolated elevation at c, and false
// if c falls outside the grid's coverage or lands on no-data cells.
func (d *DEM) Sample(c geo.Coordinate) (float64, bool) {
	col := (c.Lon - d.xllcorner) / d.cellsize
	rowFromSouth := (c.Lat - d.yllcorner) / d.cellsize
	row := float64(d.nrows-1) - rowFromSouth

	if col < 0 || row < 0 || col > float64(d.ncols-1) || row > float64(d.nrows-1) {
		return 0, false
	}

	col0 := int(math.Floor(col))
	row0 := int(math.Floor(row))
	col1 := minInt(col0+1, d.ncols-1)
	row1 := minInt(row0+1, d.nrows-1)

	fracCol := col - float64(col0)
	fracRow := row - float64(row0)

	v00, ok00 := d.at(row0, col0)
	v01, ok01 := d.at(row0, col1)
	v10, ok10 := d.at(row1, col0)
	v11, ok11 := d.at(row1, col1)

	if !ok00 || !ok01 || !ok10 || !ok11 {
		return 0, false
	}

	top := v00*(1-fracCol) + v01*fracCol
	bottom := v10*(1-fracCol) + v11*fracCol

	return top*(1-fracRow) + bottom*fracRow, true
}

func (d *DEM) at(row, col int) (float64, bool) {
	if row < 0 || row >= d.nrows || col < 0 || col >= d.ncols {
		return 0, false
	}

	v := d.values[row*d.ncols+col]
	if v == d.noData {
		return 0, false
	}

	return v, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
