// internal/sink/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/OCAP2/framereplay/internal/config"
	v1 "github.com/OCAP2/framereplay/internal/sink/memory/export/v1"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

// Backend keeps every rendered frame in memory and exports the run to JSON
// when it ends.
type Backend struct {
	cfg config.MemoryConfig
	tag string

	start  streaming.StartPlaybackPayload
	frames []streaming.FramePayload

	lastExportPath     string
	lastExportMetadata core.UploadMetadata

	mu sync.RWMutex
}

// New creates a new memory backend. tag is attached to exports.
func New(cfg config.MemoryConfig, tag string) *Backend {
	return &Backend{
		cfg: cfg,
		tag: tag,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Begin starts collecting a new run.
func (b *Backend) Begin(_ context.Context, start streaming.StartPlaybackPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.start = start
	b.frames = make([]streaming.FramePayload, 0, start.Frames)
	return nil
}

// Render stores the payload.
func (b *Backend) Render(_ context.Context, frame streaming.FramePayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(b.frames, frame)
	return nil
}

// End exports the collected frames. Halted runs are exported too so a
// partial replay can still be inspected.
func (b *Backend) End(_ context.Context, end streaming.EndPlaybackPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.exportJSON(end)
}

// Frames returns a copy of the payloads rendered in the current run.
func (b *Backend) Frames() []streaming.FramePayload {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]streaming.FramePayload(nil), b.frames...)
}

// GetExportedFilePath returns the path of the last export, or "".
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMetadata
}

func (b *Backend) replayData(end streaming.EndPlaybackPayload) *v1.ReplayData {
	return &v1.ReplayData{
		Start:  b.start,
		End:    end,
		Frames: b.frames,
		Tag:    b.tag,
	}
}
