// pkg/core/frame.go
package core

import "time"

// Frame is a maximal run of records sharing one timestamp.
type Frame struct {
	Timestamp time.Time
	Records   []Record

	// Position is 1-based; Total is the number of frames in the run.
	Position int
	Total    int
}

// Progress returns the fraction of frames completed once this frame is shown.
func (f Frame) Progress() float64 {
	if f.Total == 0 {
		return 0
	}
	return float64(f.Position) / float64(f.Total)
}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLongitude float64 `json:"minLongitude"`
	MinLatitude  float64 `json:"minLatitude"`
	MaxLongitude float64 `json:"maxLongitude"`
	MaxLatitude  float64 `json:"maxLatitude"`
}

// ViewState is the fixed camera used for every frame of a dataset.
type ViewState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	Bounds    Bounds  `json:"bounds"`

	// Web Mercator (EPSG:3857) projection of the center.
	MercatorX float64 `json:"mercatorX"`
	MercatorY float64 `json:"mercatorY"`
}

// PlaybackState is the player lifecycle.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateRunning
	StateFinished
	// StateHalted marks a run stopped by cancellation or a render failure.
	StateHalted
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}
