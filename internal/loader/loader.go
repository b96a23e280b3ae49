package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OCAP2/framereplay/internal/cache"
	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/pkg/core"
)

var (
	ErrOpen          = errors.New("cannot open source")
	ErrEncoding      = errors.New("unsupported encoding")
	ErrHeader        = errors.New("malformed source")
	ErrMissingColumn = errors.New("missing column")
	ErrTimestamp     = errors.New("unparsable timestamp")
	ErrEmpty         = errors.New("no valid records")
)

// Columns names the five source columns.
type Columns = config.ColumnsConfig

// Config controls how a source is decoded.
type Config struct {
	Columns          Columns
	Encoding         string
	TimestampLayouts []string
	Location         *time.Location
}

// DefaultConfig returns the column names and encoding of the reference dataset.
func DefaultConfig() Config {
	return Config{
		Columns: Columns{
			Latitude:  "Coordy",
			Longitude: "Coordx",
			Timestamp: "timestamp",
			Indicator: "predominant_color",
			ID:        "id",
		},
		Encoding: "ISO-8859-1",
		Location: time.UTC,
	}
}

// ConfigFrom converts the source section of the configuration.
func ConfigFrom(sc config.SourceConfig) (Config, error) {
	loc := time.UTC
	if sc.Location != "" {
		l, err := time.LoadLocation(sc.Location)
		if err != nil {
			return Config{}, fmt.Errorf("invalid source location %q: %w", sc.Location, err)
		}
		loc = l
	}
	return Config{
		Columns:          sc.Columns,
		Encoding:         sc.Encoding,
		TimestampLayouts: sc.TimestampLayouts,
		Location:         loc,
	}, nil
}

func (c Config) withDefaults() Config {
	if len(c.TimestampLayouts) == 0 {
		c.TimestampLayouts = DefaultLayouts
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Logger is the subset of *slog.Logger the loader uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Option configures a Loader.
type Option func(*Loader)

// WithCache memoizes datasets in c.
func WithCache(c *cache.Datasets) Option {
	return func(l *Loader) { l.memo = c }
}

// WithDiskCache adds a persistent tier behind the in-memory cache.
func WithDiskCache(d *cache.Disk) Option {
	return func(l *Loader) { l.disk = d }
}

func WithLogger(logger Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// Loader reads sources from disk, reusing earlier results while the file
// is unchanged.
type Loader struct {
	cfg    Config
	memo   *cache.Datasets
	disk   *cache.Disk
	logger Logger
}

func New(cfg Config, opts ...Option) *Loader {
	l := &Loader{
		cfg:    cfg.withDefaults(),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the dataset stored at path. Repeated calls on an unchanged
// file return the same data.
func (l *Loader) Load(path string) (core.Dataset, error) {
	path = normalize(path)

	info, err := os.Stat(path)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if info.IsDir() {
		return core.Dataset{}, fmt.Errorf("%w: %s is a directory", ErrOpen, path)
	}
	key := cache.Key{Path: path, ModTime: info.ModTime(), Size: info.Size()}

	if l.memo != nil {
		if ds, ok := l.memo.Get(key); ok {
			l.logger.Debug("Dataset served from memory cache", "path", path)
			return ds, nil
		}
	}
	if l.disk != nil {
		ds, ok, err := l.disk.Get(key)
		if err != nil {
			l.logger.Warn("Disk cache read failed", "path", path, "error", err)
		} else if ok {
			l.logger.Debug("Dataset served from disk cache", "path", path)
			l.remember(key, ds)
			return ds, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	ds, err := Read(f, l.cfg)
	if err != nil {
		if errors.Is(err, ErrEmpty) && ds.Dropped > 0 {
			l.logger.Warn("All rows dropped for invalid coordinates", "path", path, "dropped", ds.Dropped)
		}
		return core.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	ds.Source = path
	ds.ModTime = info.ModTime()

	if ds.Dropped > 0 {
		l.logger.Warn("Dropped rows with invalid coordinates",
			"path", path, "dropped", ds.Dropped, "rows", ds.Rows)
	}

	l.remember(key, ds)
	if l.disk != nil {
		if err := l.disk.Put(key, ds); err != nil {
			l.logger.Warn("Disk cache write failed", "path", path, "error", err)
		}
	}
	return ds, nil
}

// CacheStats describes the in-memory cache of a Loader.
type CacheStats struct {
	Enabled bool `json:"enabled"`
	Entries int  `json:"entries"`
	Hits    int  `json:"hits"`
	Misses  int  `json:"misses"`
}

// CacheStats reports the in-memory cache counters.
func (l *Loader) CacheStats() CacheStats {
	if l.memo == nil {
		return CacheStats{}
	}
	return CacheStats{
		Enabled: true,
		Entries: l.memo.Len(),
		Hits:    l.memo.Hits.Value(),
		Misses:  l.memo.Misses.Value(),
	}
}

// Invalidate forgets any cached result for path.
func (l *Loader) Invalidate(path string) {
	path = normalize(path)
	if l.memo != nil {
		l.memo.Invalidate(path)
	}
	if l.disk != nil {
		if err := l.disk.Invalidate(path); err != nil {
			l.logger.Warn("Disk cache invalidate failed", "path", path, "error", err)
		}
	}
}

func (l *Loader) remember(key cache.Key, ds core.Dataset) {
	if l.memo != nil {
		l.memo.Put(key, ds)
	}
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
