package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	State    string `json:"state"`
	Position int    `json:"position"`
}

func readStatus(t *testing.T, path string) status {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Time   time.Time `json:"time"`
		Status status    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.False(t, doc.Time.IsZero())
	return doc.Status
}

func TestWriteStatus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "monitor")
	s := NewService(Dependencies{
		Dir:    dir,
		Status: func() any { return status{State: "running", Position: 3} },
	})

	require.NoError(t, s.WriteStatus())
	assert.Equal(t, status{State: "running", Position: 3}, readStatus(t, s.Path()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	s := NewService(Dependencies{
		Dir:      dir,
		Interval: 10 * time.Millisecond,
		Status:   func() any { return status{State: "idle"} },
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(), "second start is a no-op")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FileName))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_Validation(t *testing.T) {
	assert.Error(t, NewService(Dependencies{Interval: time.Second}).Start())
	assert.Error(t, NewService(Dependencies{Status: func() any { return nil }}).Start())
}
