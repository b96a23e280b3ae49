package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/framereplay/internal/cache"
	"github.com/OCAP2/framereplay/internal/colorize"
	"github.com/OCAP2/framereplay/internal/dispatcher"
	"github.com/OCAP2/framereplay/internal/loader"
	"github.com/OCAP2/framereplay/internal/player"
	"github.com/OCAP2/framereplay/internal/render"
	"github.com/OCAP2/framereplay/internal/view"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenario = `id,Coordy,Coordx,timestamp,predominant_color
3,11.0,21.0,2024-05-01 10:00:05,green
2,12.0,22.0,2024-05-01 10:00:00,blue
1,10.0,20.0,2024-05-01 10:00:00,red
4,,23.0,2024-05-01 10:00:07,red
`

// recorder implements player.Renderer for testing
type recorder struct {
	mu       sync.Mutex
	payloads []streaming.FramePayload
	ends     []streaming.EndPlaybackPayload
	block    chan struct{}
	rendered chan struct{}
}

func (r *recorder) Render(_ context.Context, p streaming.FramePayload) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	if r.rendered != nil {
		r.rendered <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	return nil
}

func (r *recorder) Begin(context.Context, streaming.StartPlaybackPayload) error { return nil }

func (r *recorder) End(_ context.Context, e streaming.EndPlaybackPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, e)
	return nil
}

func (r *recorder) snapshot() ([]streaming.FramePayload, []streaming.EndPlaybackPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]streaming.FramePayload(nil), r.payloads...), append([]streaming.EndPlaybackPayload(nil), r.ends...)
}

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0644))
	return path
}

func newTestService(t *testing.T, r player.Renderer) *Service {
	t.Helper()
	return NewService(Dependencies{
		Loader:       loader.New(loader.DefaultConfig()),
		Renderer:     r,
		View:         view.DefaultOptions(),
		Render:       render.DefaultOptions(),
		NewSessionID: func() string { return "session-1" },
	}, nil)
}

func TestLoad(t *testing.T) {
	s := newTestService(t, &recorder{})
	path := writeScenario(t)

	loaded, err := s.Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, loaded.Dataset.Source)
	assert.Equal(t, 1, loaded.Dataset.Dropped)
	require.Len(t, loaded.Records, 3)
	assert.Equal(t, colorize.RedRGBA, loaded.Records[0].Color)
	require.Len(t, loaded.Frames, 2)
	assert.InDelta(t, 11.0, loaded.View.Latitude, 1e-9)
	assert.InDelta(t, 21.0, loaded.View.Longitude, 1e-9)

	got, ok := s.Session().Get()
	require.True(t, ok)
	assert.Equal(t, loaded.Frames, got.Frames)
}

func TestLoad_DefaultPathAndErrors(t *testing.T) {
	s := newTestService(t, &recorder{})
	_, err := s.Load("")
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = s.Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, loader.ErrOpen)
	_, ok := s.Session().Get()
	assert.False(t, ok, "failed load must not leave a dataset behind")

	s.deps.DefaultPath = writeScenario(t)
	_, err = s.Load("")
	assert.NoError(t, err)
}

func TestPlay_NotLoaded(t *testing.T) {
	s := newTestService(t, &recorder{})
	assert.ErrorIs(t, s.Play(context.Background()), ErrNotLoaded)
}

func TestPlay_Scenario(t *testing.T) {
	rec := &recorder{}
	s := newTestService(t, rec)
	_, err := s.Load(writeScenario(t))
	require.NoError(t, err)

	require.NoError(t, s.Play(context.Background()))

	payloads, ends := rec.snapshot()
	require.Len(t, payloads, 2)
	assert.Equal(t, "session-1", payloads[0].SessionID)
	assert.Len(t, payloads[0].Layer.Points, 2)
	assert.Len(t, payloads[1].Layer.Points, 1)
	assert.Equal(t, []float64{0.5, 1.0}, []float64{payloads[0].Progress, payloads[1].Progress})
	require.Len(t, ends, 1)
	assert.Equal(t, streaming.StatusFinished, ends[0].Status)

	st := s.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, "finished", st.State)
	assert.Equal(t, 2, st.Position)
	assert.Equal(t, "session-1", st.SessionID)
	assert.Equal(t, 1.0, st.Progress)
}

func TestStop(t *testing.T) {
	rec := &recorder{block: make(chan struct{}), rendered: make(chan struct{}, 4)}
	s := newTestService(t, rec)
	_, err := s.Load(writeScenario(t))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Stop(), ErrNotPlaying)

	done := make(chan error, 1)
	go func() { done <- s.Play(context.Background()) }()

	<-rec.rendered
	assert.ErrorIs(t, s.Play(context.Background()), player.ErrAlreadyRunning)
	_, err = s.Load(writeScenario(t))
	assert.ErrorIs(t, err, ErrPlaying)

	require.NoError(t, s.Stop())
	close(rec.block)

	err = <-done
	assert.ErrorIs(t, err, context.Canceled)

	payloads, ends := rec.snapshot()
	assert.Len(t, payloads, 1, "no frame after stop")
	require.Len(t, ends, 1)
	assert.Equal(t, streaming.StatusHalted, ends[0].Status)
	assert.Equal(t, core.StateHalted.String(), s.Status().State)
}

func TestInvalidate(t *testing.T) {
	s := newTestService(t, &recorder{})
	assert.ErrorIs(t, s.Invalidate(""), ErrNoPath)

	_, err := s.Load(writeScenario(t))
	require.NoError(t, err)
	assert.NoError(t, s.Invalidate(""))
	assert.NoError(t, s.Invalidate("/elsewhere.csv"))
}

func TestStatus_CacheStats(t *testing.T) {
	s := NewService(Dependencies{
		Loader: loader.New(loader.DefaultConfig(), loader.WithCache(cache.NewDatasets())),
		View:   view.DefaultOptions(),
		Render: render.DefaultOptions(),
	}, nil)
	path := writeScenario(t)

	_, err := s.Load(path)
	require.NoError(t, err)
	_, err = s.Load(path)
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, loader.CacheStats{Enabled: true, Entries: 1, Hits: 1, Misses: 1}, st.Cache)
}

func TestStatus_Idle(t *testing.T) {
	s := newTestService(t, &recorder{})
	assert.Equal(t, Status{State: "idle"}, s.Status())
}

func TestRegister(t *testing.T) {
	rec := &recorder{}
	s := newTestService(t, rec)
	d, err := dispatcher.New(&nopLogger{})
	require.NoError(t, err)
	s.Register(d)
	defer d.Close()

	assert.Equal(t, []string{":INVALIDATE:", ":LOAD:", ":PLAY:", ":STATUS:", ":STOP:"}, d.Commands())

	path := writeScenario(t)
	result, err := d.Dispatch(dispatcher.Event{Command: ":LOAD:", Args: []string{path}})
	require.NoError(t, err)
	assert.Contains(t, result, "3 records, 1 dropped, 2 frames")

	result, err = d.Dispatch(dispatcher.Event{Command: ":PLAY:"})
	require.NoError(t, err)
	assert.Equal(t, "queued", result)

	assert.Eventually(t, func() bool {
		return s.Status().State == "finished"
	}, 2*time.Second, 10*time.Millisecond)

	result, err = d.Dispatch(dispatcher.Event{Command: ":STATUS:"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.(Status).Position)

	_, err = d.Dispatch(dispatcher.Event{Command: ":STOP:"})
	assert.True(t, errors.Is(err, ErrNotPlaying))

	result, err = d.Dispatch(dispatcher.Event{Command: ":INVALIDATE:"})
	require.NoError(t, err)
	assert.Equal(t, "invalidated", result)
}

func TestRegister_StopRightAfterPlay(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s := newTestService(t, rec)
	d, err := dispatcher.New(&nopLogger{})
	require.NoError(t, err)
	s.Register(d)
	defer d.Close()

	_, err = d.Dispatch(dispatcher.Event{Command: ":PLAY:"})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = d.Dispatch(dispatcher.Event{Command: ":LOAD:", Args: []string{writeScenario(t)}})
	require.NoError(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: ":PLAY:"})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: ":PLAY:"})
	assert.ErrorIs(t, err, ErrPlaying)

	result, err := d.Dispatch(dispatcher.Event{Command: ":STOP:"})
	require.NoError(t, err)
	assert.Equal(t, "stopping", result)
	close(rec.block)

	assert.Eventually(t, func() bool {
		return s.Status().State == core.StateHalted.String()
	}, 2*time.Second, 10*time.Millisecond)

	payloads, ends := rec.snapshot()
	assert.LessOrEqual(t, len(payloads), 1)
	require.Len(t, ends, 1)
	assert.Equal(t, streaming.StatusHalted, ends[0].Status)

	// the session is free for the next run
	_, err = d.Dispatch(dispatcher.Event{Command: ":PLAY:"})
	assert.NoError(t, err)
}

type nopLogger struct{}

func (*nopLogger) Debug(string, ...any) {}
func (*nopLogger) Info(string, ...any)  {}
func (*nopLogger) Error(string, ...any) {}
