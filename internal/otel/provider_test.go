package otel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
)

// syncBuffer guards the buffer shared with the exporters' goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "framereplay"})
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestNew_EnabledWithWriter(t *testing.T) {
	previous := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	var buf syncBuffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "framereplay",
		ServiceVersion: "test",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)

	assert.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())
	assert.Equal(t, DefaultMetricInterval, p.config.MetricInterval)

	ctx := context.Background()
	counter, err := otel.Meter("framereplay/test").Int64Counter("test.frames")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NoError(t, p.Flush(ctx))
	assert.Contains(t, buf.String(), "test.frames")
	assert.Contains(t, buf.String(), "framereplay")

	assert.NoError(t, p.Shutdown(ctx))
}
