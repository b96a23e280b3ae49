package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/framereplay/internal/colorize"
	"github.com/OCAP2/framereplay/internal/dispatcher"
	"github.com/OCAP2/framereplay/internal/loader"
	"github.com/OCAP2/framereplay/internal/logging"
	"github.com/OCAP2/framereplay/internal/player"
	"github.com/OCAP2/framereplay/internal/render"
	"github.com/OCAP2/framereplay/internal/sequence"
	"github.com/OCAP2/framereplay/internal/session"
	"github.com/OCAP2/framereplay/internal/view"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"

	"github.com/google/uuid"
)

var (
	ErrNoPath     = errors.New("no source path given")
	ErrNotLoaded  = errors.New("no dataset loaded")
	ErrNotPlaying = errors.New("nothing is playing")
	ErrPlaying    = errors.New("playback in progress")
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Loader     *loader.Loader
	Renderer   player.Renderer
	LogManager *logging.SlogManager

	// DefaultPath is loaded when :LOAD: has no argument.
	DefaultPath string
	Delay       time.Duration
	View        view.Options
	Render      render.Options

	// Observer is called after each rendered frame; may be nil.
	Observer func(player.Progress)
	// NewSessionID defaults to uuid.NewString.
	NewSessionID func() string
}

// Service loads datasets and drives playback for the CLI and the command
// dispatcher.
type Service struct {
	deps         Dependencies
	ctx          *session.Context
	writeLogFunc func(functionName, data, level string)
}

// NewService creates a new handler service
func NewService(deps Dependencies, ctx *session.Context) *Service {
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	if ctx == nil {
		ctx = session.NewContext()
	}
	s := &Service{
		deps: deps,
		ctx:  ctx,
	}
	// Default writeLog function uses the logging manager
	s.writeLogFunc = func(functionName, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(functionName, data, level)
		}
	}
	return s
}

// Session returns the session context
func (s *Service) Session() *session.Context {
	return s.ctx
}

func (s *Service) writeLog(functionName, data, level string) {
	s.writeLogFunc(functionName, data, level)
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.deps.LogManager.Logger()
}

// Load reads path, colors the records, computes the view and partitions
// the frames. The result replaces the previously loaded dataset.
func (s *Service) Load(path string) (session.Loaded, error) {
	functionName := ":LOAD:"

	if path == "" {
		path = s.deps.DefaultPath
	}
	if path == "" {
		return session.Loaded{}, ErrNoPath
	}
	if p, _ := s.ctx.Player(); p != nil && p.State() == core.StateRunning {
		return session.Loaded{}, ErrPlaying
	}

	ds, err := s.deps.Loader.Load(path)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf("Failed to load %s: %v", path, err), "ERROR")
		return session.Loaded{}, err
	}

	records := colorize.Apply(ds.Records)
	vs, err := view.Compute(records, s.deps.View)
	if err != nil {
		return session.Loaded{}, fmt.Errorf("compute view: %w", err)
	}

	loaded := session.Loaded{
		Dataset: ds,
		Records: records,
		View:    vs,
		Frames:  sequence.Frames(records),
	}
	s.ctx.Set(loaded)

	s.writeLog(functionName, fmt.Sprintf("Loaded %s: %d records, %d dropped, %d frames",
		ds.Source, len(ds.Records), ds.Dropped, len(loaded.Frames)), "INFO")
	return loaded, nil
}

// Play replays the loaded frames until done, ctx is cancelled, Stop is
// called, or a render fails.
func (s *Service) Play(ctx context.Context) error {
	loaded, ok := s.ctx.Get()
	if !ok {
		s.ctx.Release()
		return ErrNotLoaded
	}
	if p, _ := s.ctx.Player(); p != nil && p.State() == core.StateRunning {
		s.ctx.Release()
		return player.ErrAlreadyRunning
	}

	sessionID := s.deps.NewSessionID()
	opts := s.deps.Render
	opts.SessionID = sessionID
	builder := render.NewBuilder(opts, loaded.View)

	start := streaming.StartPlaybackPayload{
		SessionID: sessionID,
		Source:    loaded.Dataset.Source,
		StartedAt: time.Now().UTC(),
		Frames:    len(loaded.Frames),
		Records:   len(loaded.Records),
		Dropped:   loaded.Dataset.Dropped,
		Delay:     s.deps.Delay,
		View:      loaded.View,
	}

	playerOpts := []player.Option{
		player.WithDelay(s.deps.Delay),
		player.WithSession(start),
	}
	if s.deps.Observer != nil {
		playerOpts = append(playerOpts, player.WithObserver(s.deps.Observer))
	}

	p, err := player.New(loaded.Frames, s.deps.Renderer, builder,
		s.logger().With("session", sessionID), playerOpts...)
	if err != nil {
		s.ctx.Release()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx.SetPlayer(sessionID, p, cancel)

	return p.Play(runCtx)
}

// Stop cancels the running playback between frames.
func (s *Service) Stop() error {
	if !s.ctx.Stop() {
		return ErrNotPlaying
	}
	s.writeLog(":STOP:", "Stop requested", "INFO")
	return nil
}

// Status is the answer to :STATUS:.
type Status struct {
	Loaded    bool    `json:"loaded"`
	Source    string  `json:"source,omitempty"`
	Records   int     `json:"records"`
	Dropped   int     `json:"dropped"`
	Frames    int     `json:"frames"`
	SessionID string  `json:"sessionId,omitempty"`
	State     string  `json:"state"`
	Position  int     `json:"position"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
	Error     string  `json:"error,omitempty"`

	Cache loader.CacheStats `json:"cache"`
}

// Status reports the loaded dataset and the current or last run.
func (s *Service) Status() Status {
	st := Status{State: core.StateIdle.String()}
	if s.deps.Loader != nil {
		st.Cache = s.deps.Loader.CacheStats()
	}
	if loaded, ok := s.ctx.Get(); ok {
		st.Loaded = true
		st.Source = loaded.Dataset.Source
		st.Records = len(loaded.Records)
		st.Dropped = loaded.Dataset.Dropped
		st.Frames = len(loaded.Frames)
		st.Total = len(loaded.Frames)
	}
	if p, id := s.ctx.Player(); p != nil {
		snap := p.Snapshot()
		st.SessionID = id
		st.State = snap.State.String()
		st.Position = snap.Position
		st.Total = snap.Total
		st.Progress = snap.Progress
		if snap.Err != nil {
			st.Error = snap.Err.Error()
		}
	}
	return st
}

// Invalidate drops cached parses of path, or of the loaded source when
// path is empty.
func (s *Service) Invalidate(path string) error {
	if path == "" {
		loaded, ok := s.ctx.Get()
		if !ok {
			return ErrNoPath
		}
		path = loaded.Dataset.Source
	}
	s.deps.Loader.Invalidate(path)
	s.writeLog(":INVALIDATE:", fmt.Sprintf("Invalidated cache for %s", path), "INFO")
	return nil
}

func firstArg(e dispatcher.Event) string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

// queuePlay claims the session for a :PLAY: before it is buffered, so a
// :STOP: sent right after it is not lost.
func (s *Service) queuePlay(dispatcher.Event) error {
	if _, ok := s.ctx.Get(); !ok {
		return ErrNotLoaded
	}
	if !s.ctx.Queue() {
		return ErrPlaying
	}
	return nil
}

// Register wires the control commands into d. :PLAY: is buffered so the
// caller is not held for the whole run.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(":LOAD:", func(e dispatcher.Event) (any, error) {
		loaded, err := s.Load(firstArg(e))
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("loaded %s: %d records, %d dropped, %d frames",
			loaded.Dataset.Source, len(loaded.Records), loaded.Dataset.Dropped, len(loaded.Frames)), nil
	}, dispatcher.Logged())

	d.Register(":PLAY:", func(e dispatcher.Event) (any, error) {
		return nil, s.Play(context.Background())
	}, dispatcher.Buffered(1), dispatcher.Before(s.queuePlay, func(dispatcher.Event) {
		s.ctx.Release()
	}), dispatcher.Logged())

	d.Register(":STOP:", func(e dispatcher.Event) (any, error) {
		if err := s.Stop(); err != nil {
			return nil, err
		}
		return "stopping", nil
	}, dispatcher.Logged())

	d.Register(":STATUS:", func(e dispatcher.Event) (any, error) {
		return s.Status(), nil
	})

	d.Register(":INVALIDATE:", func(e dispatcher.Event) (any, error) {
		if err := s.Invalidate(firstArg(e)); err != nil {
			return nil, err
		}
		return "invalidated", nil
	}, dispatcher.Logged())
}
