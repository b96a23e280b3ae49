package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/OCAP2/framereplay/internal/colorize"
	"github.com/OCAP2/framereplay/internal/sink"
	"github.com/OCAP2/framereplay/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sink.Sink = (*Backend)(nil)

func points(indicators ...string) []streaming.Point {
	out := make([]streaming.Point, len(indicators))
	for i, ind := range indicators {
		out[i] = streaming.Point{Indicator: ind}
	}
	return out
}

func TestBar(t *testing.T) {
	tests := []struct {
		progress float64
		width    int
		expected string
	}{
		{0, 4, "[----]"},
		{0.5, 4, "[##--]"},
		{1, 4, "[####]"},
		{1.7, 4, "[####]"},
		{-1, 4, "[----]"},
		{0.5, 0, "[]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Bar(tt.progress, tt.width))
	}
}

func TestCountIndicators(t *testing.T) {
	counts := CountIndicators(points("red", "green", "red", "blue", "green", "red"))
	assert.Equal(t, []IndicatorCount{
		{"red", 3},
		{"green", 2},
		{"blue", 1},
	}, counts)

	assert.Empty(t, CountIndicators(nil))
}

func TestStatusLine(t *testing.T) {
	frame := streaming.FramePayload{
		Position: 1,
		Total:    2,
		Progress: 0.5,
		Status:   streaming.Status{Date: "2024-05-01", Time: "12:00:00"},
	}
	line := StatusLine(frame, CountIndicators(points("red", "")), 4)
	assert.Equal(t, "2024-05-01 12:00:00 [##--]  50.0% (1/2) -=1 red=1", line)
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	b := New(&out, nil)
	ctx := context.Background()

	require.NoError(t, b.Init())
	require.NoError(t, b.Begin(ctx, streaming.StartPlaybackPayload{Source: "points.csv", Frames: 1, Records: 2, Dropped: 1}))
	require.NoError(t, b.Render(ctx, streaming.FramePayload{
		Position: 1,
		Total:    1,
		Progress: 1,
		Status:   streaming.Status{Date: "2024-05-01", Time: "12:00:00"},
		Layer:    streaming.Layer{Points: points("red", "red")},
	}))
	require.NoError(t, b.End(ctx, streaming.EndPlaybackPayload{Status: streaming.StatusFinished, Notice: streaming.FinishedNotice}))
	require.NoError(t, b.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Playing points.csv: 1 frames, 2 records (1 dropped)", lines[0])
	assert.Equal(t, Legend(colorize.Standard), lines[1])
	assert.Contains(t, lines[2], "100.0% (1/1) red=2")
	assert.Equal(t, streaming.FinishedNotice, lines[3])
}

func TestLegend(t *testing.T) {
	assert.Equal(t,
		"Legend: red=rgb(255,0,0) green=rgb(0,255,0) red_wine=rgb(114,47,55) other=rgb(128,128,128)",
		Legend(colorize.Standard))
}

func TestEnd_Halted(t *testing.T) {
	var out bytes.Buffer
	b := New(&out, nil)

	require.NoError(t, b.End(context.Background(), streaming.EndPlaybackPayload{
		Status:   streaming.StatusHalted,
		Rendered: 1,
		Frames:   3,
		Error:    "context canceled",
	}))
	assert.Equal(t, "Playback halted after 1/3 frames: context canceled\n", out.String())
}
