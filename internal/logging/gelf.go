package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfHandler returns a handler that ships every record to a Graylog
// GELF UDP input. The returned closer releases the socket.
func NewGelfHandler(address, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("gelf writer for %s: %w", address, err)
	}
	w.Facility = "framereplay"
	return NewGelfWriterHandler(w, level), w, nil
}

// NewGelfWriterHandler formats records for a GELF writer. The writer turns
// each Write call into one message, so records must stay one per call.
func NewGelfWriterHandler(w io.Writer, level string) slog.Handler {
	return slog.NewJSONHandler(w, handlerOptions(parseLevel(level)))
}
