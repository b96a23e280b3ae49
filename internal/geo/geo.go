package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/OCAP2/framereplay/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Points are persisted as EPSG:3857 WKB so SQLite and Postgres store the same
// value; the unprojected lon/lat is kept on the row alongside.

// ErrInvalidCoordinates is returned when a coordinate cell is not a finite number
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParseCoordinate parses a single coordinate cell. Surrounding whitespace is
// ignored; empty, non-numeric, NaN and infinite values are rejected.
func ParseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, ErrInvalidCoordinates
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidCoordinates
	}
	return v, nil
}

// Project4326To3857 converts lon/lat to Web Mercator x/y.
func Project4326To3857(longitude, latitude float64) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	return x, y
}

// Coords3857From4326 creates a Web Mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if math.IsNaN(longitude) || math.IsNaN(latitude) ||
		math.IsInf(longitude, 0) || math.IsInf(latitude, 0) {
		return geom.NewEmptyPoint(geom.DimXYZ), ErrInvalidCoordinates
	}
	x, y := Project4326To3857(longitude, latitude)
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    0,
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
	return point, nil
}

// PointFromRecord projects a record's position for storage.
func PointFromRecord(r core.Record) (geom.Point, error) {
	return Coords3857From4326(r.Longitude, r.Latitude)
}

// BoundsOf returns the lon/lat box enclosing all records. ok is false for an
// empty slice.
func BoundsOf(records []core.Record) (b core.Bounds, ok bool) {
	if len(records) == 0 {
		return core.Bounds{}, false
	}
	b = core.Bounds{
		MinLongitude: records[0].Longitude,
		MaxLongitude: records[0].Longitude,
		MinLatitude:  records[0].Latitude,
		MaxLatitude:  records[0].Latitude,
	}
	for _, r := range records[1:] {
		b.MinLongitude = math.Min(b.MinLongitude, r.Longitude)
		b.MaxLongitude = math.Max(b.MaxLongitude, r.Longitude)
		b.MinLatitude = math.Min(b.MinLatitude, r.Latitude)
		b.MaxLatitude = math.Max(b.MaxLatitude, r.Latitude)
	}
	return b, true
}
