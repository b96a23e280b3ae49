// Package influxsink writes every rendered record to InfluxDB as one point,
// so a run can be charted over the source timeline.
package influxsink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OCAP2/framereplay/internal/influx"
	"github.com/OCAP2/framereplay/pkg/streaming"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPoints   = "frame_points"
	MeasurementSessions = "playback_sessions"
)

// Writer is the subset of influx.Manager used by the sink.
type Writer interface {
	Connect(ctx context.Context) error
	WritePoint(bucket string, point *write.Point) error
	Flush() error
	Close() error
}

var _ Writer = (*influx.Manager)(nil)

// Backend implements sink.Sink on top of an influx writer.
type Backend struct {
	w      Writer
	bucket string

	mu      sync.Mutex
	session string
}

// New creates an InfluxDB sink writing to bucket.
func New(w Writer, bucket string) *Backend {
	return &Backend{w: w, bucket: bucket}
}

func (b *Backend) Init() error {
	return b.w.Connect(context.Background())
}

func (b *Backend) Close() error {
	return b.w.Close()
}

// Begin writes a session marker point at the run start.
func (b *Backend) Begin(_ context.Context, start streaming.StartPlaybackPayload) error {
	b.mu.Lock()
	b.session = start.SessionID
	b.mu.Unlock()

	p := influxdb2.NewPoint(MeasurementSessions,
		map[string]string{"session": start.SessionID, "status": "running"},
		map[string]interface{}{
			"frames":  start.Frames,
			"records": start.Records,
			"dropped": start.Dropped,
			"source":  start.Source,
		},
		start.StartedAt)
	return b.w.WritePoint(b.bucket, p)
}

// Render writes one point per record, timed at the frame timestamp.
func (b *Backend) Render(_ context.Context, frame streaming.FramePayload) error {
	session := b.sessionOf(frame.SessionID)
	for _, p := range FramePoints(session, frame) {
		if err := b.w.WritePoint(b.bucket, p); err != nil {
			return fmt.Errorf("write frame %d: %w", frame.Position, err)
		}
	}
	return nil
}

// End records the outcome and flushes.
func (b *Backend) End(_ context.Context, end streaming.EndPlaybackPayload) error {
	session := b.sessionOf(end.SessionID)
	p := influxdb2.NewPointWithMeasurement(MeasurementSessions).
		AddTag("session", session).
		AddTag("status", end.Status).
		AddField("rendered", end.Rendered).
		AddField("frames", end.Frames)
	if end.Error != "" {
		p.AddField("error", end.Error)
	}
	err := b.w.WritePoint(b.bucket, p)
	return errors.Join(err, b.w.Flush())
}

func (b *Backend) sessionOf(id string) string {
	if id != "" {
		return id
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// FramePoints converts a frame into influx points.
func FramePoints(session string, frame streaming.FramePayload) []*write.Point {
	points := make([]*write.Point, 0, len(frame.Layer.Points))
	for _, p := range frame.Layer.Points {
		c := p.FillColor
		points = append(points, influxdb2.NewPoint(MeasurementPoints,
			map[string]string{
				"id":        p.ID,
				"indicator": p.Indicator,
				"session":   session,
			},
			map[string]interface{}{
				"lat": p.Position[1],
				"lon": p.Position[0],
				"r":   int(c[0]),
				"g":   int(c[1]),
				"b":   int(c[2]),
				"a":   int(c[3]),
			},
			frame.Timestamp))
	}
	return points
}
