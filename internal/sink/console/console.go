// Package console prints a status line per frame, for terminals without a
// map renderer.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/OCAP2/framereplay/internal/colorize"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

// DefaultBarWidth is the progress bar length in characters.
const DefaultBarWidth = 20

// Backend writes one status line per frame to w and logs it at DEBUG.
type Backend struct {
	w        io.Writer
	logger   *slog.Logger
	barWidth int

	mu sync.Mutex
}

// New creates a console sink. A nil logger discards log output.
func New(w io.Writer, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{w: w, logger: logger, barWidth: DefaultBarWidth}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

func (b *Backend) Begin(_ context.Context, start streaming.StartPlaybackPayload) error {
	b.logger.Info("Playback started",
		"session", start.SessionID,
		"source", start.Source,
		"frames", start.Frames,
		"records", start.Records,
		"dropped", start.Dropped)
	return b.printf("Playing %s: %d frames, %d records (%d dropped)\n%s\n",
		start.Source, start.Frames, start.Records, start.Dropped, Legend(colorize.Standard))
}

func (b *Backend) Render(_ context.Context, frame streaming.FramePayload) error {
	counts := CountIndicators(frame.Layer.Points)
	b.logger.Debug("Frame rendered",
		"position", frame.Position,
		"total", frame.Total,
		"points", len(frame.Layer.Points))
	return b.printf("%s\n", StatusLine(frame, counts, b.barWidth))
}

func (b *Backend) End(_ context.Context, end streaming.EndPlaybackPayload) error {
	if end.Status == streaming.StatusFinished {
		return b.printf("%s\n", end.Notice)
	}
	msg := fmt.Sprintf("Playback halted after %d/%d frames", end.Rendered, end.Frames)
	if end.Error != "" {
		msg += ": " + end.Error
	}
	return b.printf("%s\n", msg)
}

func (b *Backend) printf(format string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.w, format, args...)
	return err
}

// IndicatorCount is the number of points showing one indicator.
type IndicatorCount struct {
	Indicator string
	Count     int
}

// CountIndicators counts points per indicator, most frequent first and
// ties by name.
func CountIndicators(points []streaming.Point) []IndicatorCount {
	byName := make(map[string]int)
	for _, p := range points {
		byName[p.Indicator]++
	}
	counts := make([]IndicatorCount, 0, len(byName))
	for name, n := range byName {
		counts = append(counts, IndicatorCount{Indicator: name, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Indicator < counts[j].Indicator
	})
	return counts
}

// StatusLine formats "date time [bar] pct (pos/total) name=count ...".
func StatusLine(frame streaming.FramePayload, counts []IndicatorCount, width int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s %5.1f%% (%d/%d)",
		frame.Status.Date, frame.Status.Time,
		Bar(frame.Progress, width), frame.Progress*100,
		frame.Position, frame.Total)
	for _, c := range counts {
		name := c.Indicator
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&sb, " %s=%d", name, c.Count)
	}
	return sb.String()
}

// Legend lists the palette colors, dedicated indicators first and the
// fallback as "other".
func Legend(p colorize.Palette) string {
	var sb strings.Builder
	sb.WriteString("Legend:")
	for _, name := range p.Names() {
		c, _ := p.Lookup(name)
		fmt.Fprintf(&sb, " %s=%s", name, rgb(c))
	}
	fmt.Fprintf(&sb, " other=%s", rgb(p.Default()))
	return sb.String()
}

func rgb(c core.RGBA) string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c[0], c[1], c[2])
}

// Bar renders progress in [0,1] as a fixed-width bar.
func Bar(progress float64, width int) string {
	if width <= 0 {
		return "[]"
	}
	progress = min(max(progress, 0), 1)
	filled := int(progress*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
