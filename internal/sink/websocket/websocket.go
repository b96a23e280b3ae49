package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/OCAP2/framereplay/pkg/streaming"
)

// Config holds WebSocket sink configuration.
type Config struct {
	URL        string
	Secret     string
	BufferSize int
}

// Backend streams playback to a remote renderer over WebSocket.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket sink.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger, cfg.BufferSize),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Begin sends start_playback and waits for the renderer's ack.
func (b *Backend) Begin(ctx context.Context, start streaming.StartPlaybackPayload) error {
	data, err := marshalEnvelope(streaming.TypeStartPlayback, start)
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(ctx, data, streaming.TypeStartPlayback, ackTimeout)
}

// Render queues the frame for the write loop. A full queue fails the frame
// rather than dropping it silently.
func (b *Backend) Render(_ context.Context, frame streaming.FramePayload) error {
	data, err := marshalEnvelope(streaming.TypeFrame, frame)
	if err != nil {
		return err
	}
	return b.conn.send(data)
}

// End sends end_playback and waits for the renderer's ack.
func (b *Backend) End(ctx context.Context, end streaming.EndPlaybackPayload) error {
	data, err := marshalEnvelope(streaming.TypeEndPlayback, end)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(ctx, data, streaming.TypeEndPlayback, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}
