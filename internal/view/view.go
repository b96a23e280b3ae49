package view

import (
	"errors"

	"github.com/OCAP2/framereplay/internal/geo"
	"github.com/OCAP2/framereplay/pkg/core"
)

// ErrEmpty is returned when there is nothing to center on.
var ErrEmpty = errors.New("view: no records")

const (
	DefaultZoom  = 12
	DefaultPitch = 0
)

// Options holds the fixed camera parameters.
type Options struct {
	Zoom  float64
	Pitch float64
}

func DefaultOptions() Options {
	return Options{Zoom: DefaultZoom, Pitch: DefaultPitch}
}

// Compute centers the camera on the mean position of all records. The result
// depends only on the full set, never on a single frame.
func Compute(records []core.Record, opts Options) (core.ViewState, error) {
	bounds, ok := geo.BoundsOf(records)
	if !ok {
		return core.ViewState{}, ErrEmpty
	}

	var sumLat, sumLon float64
	for _, r := range records {
		sumLat += r.Latitude
		sumLon += r.Longitude
	}
	n := float64(len(records))

	v := core.ViewState{
		Latitude:  sumLat / n,
		Longitude: sumLon / n,
		Zoom:      opts.Zoom,
		Pitch:     opts.Pitch,
		Bounds:    bounds,
	}
	v.MercatorX, v.MercatorY = geo.Project4326To3857(v.Longitude, v.Latitude)
	return v, nil
}
