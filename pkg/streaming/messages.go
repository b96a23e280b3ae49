package streaming

import (
	"encoding/json"
	"time"

	"github.com/OCAP2/framereplay/pkg/core"
)

// Message type constants for the playback protocol.
const (
	TypeStartPlayback = "start_playback"
	TypeFrame         = "frame"
	TypeEndPlayback   = "end_playback"
)

// End status values.
const (
	StatusFinished = "finished"
	StatusHalted   = "halted"
)

// FinishedNotice is shown once the last frame has been rendered.
const FinishedNotice = "Playback finished."

// Envelope wraps all messages sent to a remote renderer.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the renderer's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartPlaybackPayload announces a run before its first frame.
type StartPlaybackPayload struct {
	SessionID string         `json:"sessionId"`
	Source    string         `json:"source"`
	StartedAt time.Time      `json:"startedAt"`
	Frames    int            `json:"frames"`
	Records   int            `json:"records"`
	Dropped   int            `json:"dropped"`
	Delay     time.Duration  `json:"delay"`
	View      core.ViewState `json:"view"`
}

// EndPlaybackPayload closes a run.
type EndPlaybackPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Rendered  int    `json:"rendered"`
	Frames    int    `json:"frames"`
	Notice    string `json:"notice,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FramePayload is the complete content of one frame. Each payload
// replaces the previous one entirely.
type FramePayload struct {
	SessionID string         `json:"sessionId"`
	Timestamp time.Time      `json:"timestamp"`
	Position  int            `json:"position"`
	Total     int            `json:"total"`
	Progress  float64        `json:"progress"`
	Status    Status         `json:"status"`
	View      core.ViewState `json:"view"`
	MapStyle  string         `json:"mapStyle,omitempty"`
	MapToken  string         `json:"mapToken,omitempty"`
	Layer     Layer          `json:"layer"`
	Tooltip   Tooltip        `json:"tooltip"`
}

// Status is the human-readable clock of the current frame.
type Status struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Layer is a scatterplot of the frame's points.
type Layer struct {
	Type            string  `json:"type"`
	Points          []Point `json:"points"`
	Radius          float64 `json:"radius"`
	RadiusMinPixels float64 `json:"radiusMinPixels"`
	RadiusMaxPixels float64 `json:"radiusMaxPixels"`
	Opacity         float64 `json:"opacity"`
	Stroked         bool    `json:"stroked"`
	Filled          bool    `json:"filled"`
	Pickable        bool    `json:"pickable"`
}

// Point is one rendered record. Position is [lon, lat].
type Point struct {
	ID        string     `json:"id"`
	Indicator string     `json:"indicator"`
	Position  [2]float64 `json:"position"`
	FillColor core.RGBA  `json:"fillColor"`
}

// Tooltip is the hover template; {id} and {indicator} are substituted by the renderer.
type Tooltip struct {
	HTML  string            `json:"html"`
	Style map[string]string `json:"style"`
}
