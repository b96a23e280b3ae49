package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OCAP2/framereplay/internal/player"
	"github.com/OCAP2/framereplay/pkg/core"
)

// Loaded is everything prepared from one source file before playback.
type Loaded struct {
	Dataset core.Dataset
	// Records are the dataset records with colors applied.
	Records []core.Record
	View    core.ViewState
	Frames  []core.Frame
}

// Context holds the loaded dataset and the current player
type Context struct {
	mu        sync.RWMutex
	loaded    *Loaded
	player    *player.Player
	sessionID string
	cancel    context.CancelFunc

	// queued is set between a play request and its SetPlayer.
	queued     bool
	stopQueued bool
}

// NewContext creates an empty Context
func NewContext() *Context {
	return &Context{}
}

// Set replaces the loaded dataset. The previous player is kept until the
// next SetPlayer so a running playback is not orphaned.
func (c *Context) Set(l Loaded) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = &l
}

// Get returns the loaded dataset
func (c *Context) Get() (Loaded, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded == nil {
		return Loaded{}, false
	}
	return *c.loaded, true
}

// Clear cancels any playback and forgets the dataset
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.loaded = nil
	c.player = nil
	c.sessionID = ""
	c.cancel = nil
	c.queued = false
	c.stopQueued = false
}

// Queue marks a run as requested before its player exists, so a Stop that
// arrives in between still ends it. It reports false when a run is already
// queued or playing.
func (c *Context) Queue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queued {
		return false
	}
	if c.player != nil {
		switch c.player.State() {
		case core.StateIdle, core.StateRunning:
			return false
		}
	}
	c.queued = true
	c.stopQueued = false
	return true
}

// Release drops a queued run that will not start.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = false
	c.stopQueued = false
}

// SetPlayer records the player for a new run. cancel stops it, right away
// when a stop was requested while the run was queued.
func (c *Context) SetPlayer(sessionID string, p *player.Player, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = p
	c.sessionID = sessionID
	c.cancel = cancel
	if c.stopQueued && cancel != nil {
		cancel()
	}
	c.queued = false
	c.stopQueued = false
}

// Player returns the current or last player and its session id
func (c *Context) Player() (*player.Player, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player, c.sessionID
}

// Stop cancels the current run, including one that is queued or not yet
// running. It reports false when there is nothing left to stop.
func (c *Context) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queued {
		c.stopQueued = true
		return true
	}
	if c.cancel == nil {
		return false
	}
	if c.player != nil {
		switch c.player.State() {
		case core.StateFinished, core.StateHalted:
			return false
		}
	}
	c.cancel()
	return true
}

// Attrs describes the context for log records.
func (c *Context) Attrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var attrs []slog.Attr
	if c.loaded != nil {
		attrs = append(attrs, slog.String("source", c.loaded.Dataset.Source))
	}
	if c.sessionID != "" {
		attrs = append(attrs, slog.String("session", c.sessionID))
	}
	return attrs
}
