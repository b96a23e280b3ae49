package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/OCAP2/framereplay/internal/sink/memory/export/v1"
	"github.com/OCAP2/framereplay/internal/util"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

// exportJSON writes the run to <source>_<start>.json(.gz) in OutputDir.
func (b *Backend) exportJSON(end streaming.EndPlaybackPayload) error {
	export := v1.Build(b.replayData(end))

	name := util.SafeFileName(b.start.Source)
	timestamp := b.start.StartedAt.UTC().Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	b.lastExportMetadata = core.UploadMetadata{
		SourceName:   name,
		SessionID:    b.start.SessionID,
		Frames:       len(b.frames),
		Records:      b.start.Records,
		DurationSecs: b.spanSeconds(),
		Tag:          b.tag,
	}
	return nil
}

// spanSeconds is the data time covered by the rendered frames.
func (b *Backend) spanSeconds() float64 {
	if len(b.frames) < 2 {
		return 0
	}
	return b.frames[len(b.frames)-1].Timestamp.Sub(b.frames[0].Timestamp).Seconds()
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}

// ReadExport decodes an export written by the memory sink. Files ending in
// .gz are decompressed.
func ReadExport(path string) (v1.Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return v1.Export{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return v1.Export{}, fmt.Errorf("failed to read gzip header: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export v1.Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return v1.Export{}, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}

// ExportMetadata describes an export file for upload. tag overrides the
// tag stored in the file when set.
func ExportMetadata(path, tag string) (core.UploadMetadata, error) {
	export, err := ReadExport(path)
	if err != nil {
		return core.UploadMetadata{}, err
	}
	if tag == "" {
		tag = export.Tags
	}
	var span float64
	if n := len(export.Frames); n > 1 {
		span = export.Frames[n-1].Timestamp.Sub(export.Frames[0].Timestamp).Seconds()
	}
	return core.UploadMetadata{
		SourceName:   util.SafeFileName(export.Source),
		SessionID:    export.SessionID,
		Frames:       len(export.Frames),
		Records:      export.Records,
		DurationSecs: span,
		Tag:          tag,
	}, nil
}
