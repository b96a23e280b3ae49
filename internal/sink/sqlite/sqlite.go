// Package sqlitesink records playback runs into an in-memory SQLite database
// and dumps it to disk via VACUUM INTO, periodically and when a run ends.
// It wraps the GORM sink; the only SQLite-specific concerns are the
// in-memory database and the dump file.
package sqlitesink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/internal/database"
	"github.com/OCAP2/framereplay/internal/logging"
	gormsink "github.com/OCAP2/framereplay/internal/sink/gorm"
	"github.com/OCAP2/framereplay/internal/util"
	"github.com/OCAP2/framereplay/pkg/streaming"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite sink.
type Config struct {
	DumpInterval time.Duration
	OutputDir    string
	// DBPath is the live database file; empty keeps it in memory.
	DBPath string
}

// ConfigFrom maps the sink.sqlite section.
func ConfigFrom(cfg config.SQLiteConfig) Config {
	return Config{
		DumpInterval: cfg.DumpInterval,
		OutputDir:    cfg.OutputDir,
	}
}

// Backend wraps the GORM sink for SQLite-specific behavior.
type Backend struct {
	*gormsink.Backend
	db       *gorm.DB
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	dumpPath string
}

// New creates a new SQLite sink.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.GetSqliteDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}

	return &Backend{
		Backend: gormsink.New(gormsink.Dependencies{
			DB:         db,
			LogManager: logManager,
		}),
		db:  db,
		cfg: cfg,
		log: logManager,
	}, nil
}

// Init initializes the embedded GORM sink and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.OutputDir != "" {
		if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, closes the embedded GORM sink and writes
// a last dump.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	err := b.Backend.Close()
	return errors.Join(err, b.dump())
}

// Begin starts the session and picks the dump file for the run.
func (b *Backend) Begin(ctx context.Context, start streaming.StartPlaybackPayload) error {
	if err := b.Backend.Begin(ctx, start); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.db", util.SafeFileName(start.Source), start.StartedAt.UTC().Format("20060102_150405"))

	b.mu.Lock()
	b.dumpPath = filepath.Join(b.cfg.OutputDir, name)
	b.mu.Unlock()
	return nil
}

// End closes the session and dumps the database.
func (b *Backend) End(ctx context.Context, end streaming.EndPlaybackPayload) error {
	err := b.Backend.End(ctx, end)
	return errors.Join(err, b.dump())
}

// DumpPath returns the file the current or last run is dumped to.
func (b *Backend) DumpPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dumpPath
}

func (b *Backend) dump() error {
	path := b.DumpPath()
	if path == "" {
		return nil
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, path); err != nil {
		b.log.WriteLog("sqlite:dump", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
		return err
	}
	b.log.WriteLog("sqlite:dump", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
	return nil
}

// dumpLoop periodically dumps the database. VACUUM INTO creates a
// point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.dump()
		}
	}
}
