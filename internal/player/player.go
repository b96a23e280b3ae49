package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

// DefaultDelay is the pause between two consecutive frames.
const DefaultDelay = time.Second

var (
	ErrAlreadyRunning = errors.New("playback already running")
	ErrNoFrames       = errors.New("nothing to play")
)

// Renderer receives one complete payload per frame.
type Renderer interface {
	Render(ctx context.Context, p streaming.FramePayload) error
}

// Lifecycle is implemented by renderers that want to know when a run
// starts and ends.
type Lifecycle interface {
	Begin(ctx context.Context, start streaming.StartPlaybackPayload) error
	End(ctx context.Context, end streaming.EndPlaybackPayload) error
}

// PayloadBuilder turns a frame into its render payload.
type PayloadBuilder interface {
	Build(f core.Frame) streaming.FramePayload
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Progress is reported after every rendered frame.
type Progress struct {
	Position  int
	Total     int
	Progress  float64
	Timestamp time.Time
}

// Snapshot is a point-in-time copy of the player state.
type Snapshot struct {
	State      core.PlaybackState
	Position   int
	Total      int
	Progress   float64
	LastRender time.Time
	Err        error
}

// Option configures a Player.
type Option func(*Player)

// WithDelay sets the pause between frames. Negative values are treated as zero.
func WithDelay(d time.Duration) Option {
	return func(p *Player) {
		if d < 0 {
			d = 0
		}
		p.delay = d
	}
}

// WithObserver registers fn to be called after each rendered frame.
func WithObserver(fn func(Progress)) Option {
	return func(p *Player) { p.observer = fn }
}

// WithSession sets the start message handed to Lifecycle renderers.
func WithSession(start streaming.StartPlaybackPayload) Option {
	return func(p *Player) { p.start = start }
}

// WithClock replaces time.After, mainly for tests.
func WithClock(after func(time.Duration) <-chan time.Time) Option {
	return func(p *Player) { p.after = after }
}

// Player replays a fixed frame sequence in order. It is the only writer of
// its state; readers use State and Snapshot.
type Player struct {
	frames   []core.Frame
	renderer Renderer
	builder  PayloadBuilder
	logger   Logger

	delay    time.Duration
	observer func(Progress)
	start    streaming.StartPlaybackPayload
	after    func(time.Duration) <-chan time.Time

	mu         sync.RWMutex
	state      core.PlaybackState
	position   int
	lastRender time.Time
	err        error

	rendered     metric.Int64Counter
	renderErrors metric.Int64Counter
	renderTime   metric.Float64Histogram
}

func New(frames []core.Frame, r Renderer, b PayloadBuilder, logger Logger, opts ...Option) (*Player, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if r == nil || b == nil {
		return nil, errors.New("player requires a renderer and a payload builder")
	}

	if logger == nil {
		logger = nopLogger{}
	}

	p := &Player{
		frames:   frames,
		renderer: r,
		builder:  b,
		logger:   logger,
		delay:    DefaultDelay,
		after:    time.After,
		state:    core.StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}

	m := meter()
	var err error

	p.rendered, err = m.Int64Counter(
		"player.frames.rendered",
		metric.WithDescription("Total frames rendered"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rendered counter: %w", err)
	}

	p.renderErrors, err = m.Int64Counter(
		"player.render.errors",
		metric.WithDescription("Total frames whose render failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating render error counter: %w", err)
	}

	p.renderTime, err = m.Float64Histogram(
		"player.render.duration",
		metric.WithDescription("Time spent rendering one frame"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating render duration histogram: %w", err)
	}

	return p, nil
}

// Play renders every frame in order, pausing between frames. It returns nil
// once the last frame is rendered, ctx.Err() if cancelled between frames,
// or the first render error. A finished or halted player can be played again
// and produces the same payloads.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.state == core.StateRunning {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.state = core.StateRunning
	p.position = 0
	p.err = nil
	p.mu.Unlock()

	total := len(p.frames)
	p.logger.Info("Playback started", "frames", total, "delay", p.delay.String())

	lc, hasLifecycle := p.renderer.(Lifecycle)
	if hasLifecycle {
		start := p.start
		start.StartedAt = time.Now().UTC()
		start.Frames = total
		start.Delay = p.delay
		if err := lc.Begin(ctx, start); err != nil {
			return p.halt(ctx, lc, fmt.Errorf("begin playback: %w", err))
		}
	}

	for i, f := range p.frames {
		if i > 0 && p.delay > 0 {
			select {
			case <-ctx.Done():
				return p.halt(ctx, lc, ctx.Err())
			case <-p.after(p.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return p.halt(ctx, lc, err)
		}

		payload := p.builder.Build(f)

		began := time.Now()
		err := p.renderer.Render(ctx, payload)
		p.renderTime.Record(ctx, float64(time.Since(began).Microseconds())/1000)
		if err != nil {
			p.renderErrors.Add(ctx, 1)
			return p.halt(ctx, lc, fmt.Errorf("render frame %d/%d: %w", f.Position, total, err))
		}
		p.rendered.Add(ctx, 1)

		p.mu.Lock()
		p.position = f.Position
		p.lastRender = time.Now()
		p.mu.Unlock()

		p.logger.Debug("Frame rendered", "position", f.Position, "total", total,
			"timestamp", f.Timestamp, "records", len(f.Records))

		if p.observer != nil {
			p.observer(Progress{
				Position:  f.Position,
				Total:     total,
				Progress:  f.Progress(),
				Timestamp: f.Timestamp,
			})
		}
	}

	p.mu.Lock()
	p.state = core.StateFinished
	p.mu.Unlock()
	p.logger.Info(streaming.FinishedNotice, "frames", total)

	if hasLifecycle {
		end := streaming.EndPlaybackPayload{
			SessionID: p.start.SessionID,
			Status:    streaming.StatusFinished,
			Rendered:  total,
			Frames:    total,
			Notice:    streaming.FinishedNotice,
		}
		if err := lc.End(context.WithoutCancel(ctx), end); err != nil {
			p.logger.Error("End of playback not delivered", "error", err)
			return fmt.Errorf("end playback: %w", err)
		}
	}
	return nil
}

func (p *Player) halt(ctx context.Context, lc Lifecycle, cause error) error {
	p.mu.Lock()
	p.state = core.StateHalted
	p.err = cause
	rendered := p.position
	p.mu.Unlock()

	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		p.logger.Info("Playback stopped", "rendered", rendered, "frames", len(p.frames))
	} else {
		p.logger.Error("Playback halted", "rendered", rendered, "frames", len(p.frames), "error", cause)
	}

	if lc != nil {
		end := streaming.EndPlaybackPayload{
			SessionID: p.start.SessionID,
			Status:    streaming.StatusHalted,
			Rendered:  rendered,
			Frames:    len(p.frames),
			Error:     cause.Error(),
		}
		if err := lc.End(context.WithoutCancel(ctx), end); err != nil {
			p.logger.Error("End of playback not delivered", "error", err)
		}
	}
	return cause
}

func (p *Player) State() core.PlaybackState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := len(p.frames)
	return Snapshot{
		State:      p.state,
		Position:   p.position,
		Total:      total,
		Progress:   float64(p.position) / float64(total),
		LastRender: p.lastRender,
		Err:        p.err,
	}
}
