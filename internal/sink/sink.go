// internal/sink/sink.go
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

// Sink is the interface all renderer implementations must satisfy. Every
// Render call carries the complete frame and replaces the previous one.
type Sink interface {
	// Lifecycle
	Init() error
	Close() error

	// Playback
	Begin(ctx context.Context, start streaming.StartPlaybackPayload) error
	Render(ctx context.Context, frame streaming.FramePayload) error
	End(ctx context.Context, end streaming.EndPlaybackPayload) error
}

// Uploadable is an optional interface for sinks that produce files
// suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Multi fans every call out to its sinks in order. The first failing sink
// stops the call.
type Multi struct {
	names []string
	sinks []Sink
}

// NewMulti combines sinks; names are used in error messages.
func NewMulti() *Multi {
	return &Multi{}
}

// Add appends s under name.
func (m *Multi) Add(name string, s Sink) {
	m.names = append(m.names, name)
	m.sinks = append(m.sinks, s)
}

func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) Init() error {
	for i, s := range m.sinks {
		if err := s.Init(); err != nil {
			return fmt.Errorf("%s sink: init: %w", m.names[i], err)
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: close: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Begin(ctx context.Context, start streaming.StartPlaybackPayload) error {
	for i, s := range m.sinks {
		if err := s.Begin(ctx, start); err != nil {
			return fmt.Errorf("%s sink: %w", m.names[i], err)
		}
	}
	return nil
}

func (m *Multi) Render(ctx context.Context, frame streaming.FramePayload) error {
	for i, s := range m.sinks {
		if err := s.Render(ctx, frame); err != nil {
			return fmt.Errorf("%s sink: %w", m.names[i], err)
		}
	}
	return nil
}

// End is delivered to every sink even if one fails, so each can finalize.
func (m *Multi) End(ctx context.Context, end streaming.EndPlaybackPayload) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.End(ctx, end); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Uploadables returns the sinks that produce exportable files.
func (m *Multi) Uploadables() []Uploadable {
	var out []Uploadable
	for _, s := range m.sinks {
		if u, ok := s.(Uploadable); ok {
			out = append(out, u)
		}
	}
	return out
}
