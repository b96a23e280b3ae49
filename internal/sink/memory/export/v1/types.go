// Package v1 contains the v1 export format for replay data.
// Frames are stored in playback order with their full point sets.
package v1

import "time"

const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version   int       `json:"version"`
	SessionID string    `json:"sessionId"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"startedAt"`
	Status    string    `json:"status"`
	Delay     float64   `json:"delaySeconds"`
	Records   int       `json:"records"`
	Dropped   int       `json:"dropped"`
	Tags      string    `json:"tags,omitempty"`
	View      View      `json:"view"`
	Legend    []Legend  `json:"legend"`
	Frames    []Frame   `json:"frames"`
}

// View is the fixed camera.
type View struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	MapStyle  string  `json:"mapStyle,omitempty"`
}

// Legend lists the points per indicator over the whole replay.
type Legend struct {
	Indicator string   `json:"indicator"`
	Color     [4]uint8 `json:"color"`
	Count     int      `json:"count"`
}

// Frame is one playback step.
// Points format: [id, indicator, [lon, lat], [r, g, b, a]]
type Frame struct {
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Points    [][]any   `json:"points"`
}
