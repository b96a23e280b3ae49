package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/OCAP2/framereplay/internal/cache"
	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/internal/handlers"
	"github.com/OCAP2/framereplay/internal/loader"
	"github.com/OCAP2/framereplay/internal/logging"
	"github.com/OCAP2/framereplay/internal/monitor"
	intOtel "github.com/OCAP2/framereplay/internal/otel"
	"github.com/OCAP2/framereplay/internal/player"
	"github.com/OCAP2/framereplay/internal/render"
	"github.com/OCAP2/framereplay/internal/session"
	"github.com/OCAP2/framereplay/internal/view"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "framereplay"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFile     *os.File
	LogFilePath string

	// Session holds the loaded dataset and the current player
	Session *session.Context

	SessionStartTime time.Time = time.Now()

	datasetLoader *loader.Loader
	diskCache     *cache.Disk
	closers       []io.Closer
)

// Globals are the flags shared by every command.
type Globals struct {
	ConfigDir string   `help:"Directory containing ${config_file}." default:"." type:"path"`
	LogLevel  string   `help:"Override the configured log level (debug, info, warn, error)."`
	Sink      []string `help:"Override sink.types, e.g. --sink=console,memory."`
	Delay     string   `help:"Override the pause between frames, e.g. 500ms."`
}

// CLI is the kong command tree.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print version information and quit."`

	Play    PlayCmd    `cmd:"" help:"Replay a CSV file frame by frame to the configured sinks."`
	Inspect InspectCmd `cmd:"" help:"Load a CSV file and print what a replay would show."`
	Console ConsoleCmd `cmd:"" help:"Read control commands (load, play, stop, status, invalidate) from stdin."`
	Upload  UploadCmd  `cmd:"" help:"Upload an exported replay to the web frontend."`
	History HistoryCmd `cmd:"" help:"List recorded playback sessions."`
}

// logOutput is where zerolog based managers write; the log file when open.
func logOutput() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stdout
}

// setup loads the configuration and brings up logging, telemetry and the
// dataset loader.
func setup(g *Globals) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(g.ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", g.ConfigDir)
	}
	if err := applyOverrides(g); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	level := config.GetString("logLevel")
	var err error
	LogFile, LogFilePath, err = logging.OpenLogFile(config.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err)
		LogFile = nil
	} else {
		closers = append(closers, LogFile)
		Logger.Info("Begin logging in logs directory", "path", LogFilePath)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      logOutput(),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGelfHandler(gl.Address, level)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "address", gl.Address, "error", err)
		} else {
			extra = append(extra, h)
			closers = append(closers, closer)
		}
	}

	// Re-setup logging with file output, optional OTel and GELF
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	Session = session.NewContext()
	SlogManager.SetContextProvider(Session.Attrs)
	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(file, level, otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)

	return setupLoader()
}

func applyOverrides(g *Globals) error {
	if g.LogLevel != "" {
		viper.Set("logLevel", g.LogLevel)
	}
	if len(g.Sink) > 0 {
		viper.Set("sink.types", g.Sink)
	}
	if g.Delay != "" {
		d, err := time.ParseDuration(g.Delay)
		if err != nil {
			return fmt.Errorf("invalid --delay %q: %w", g.Delay, err)
		}
		viper.Set("playback.delay", d)
	}
	return nil
}

func setupLoader() error {
	cfg, err := loader.ConfigFrom(config.GetSourceConfig())
	if err != nil {
		return err
	}
	opts := []loader.Option{loader.WithLogger(Logger)}

	cacheCfg := config.GetCacheConfig()
	if cacheCfg.Enabled {
		opts = append(opts, loader.WithCache(cache.NewDatasets()))
		if cacheCfg.DiskDir != "" {
			diskCache, err = cache.OpenDisk(cacheCfg.DiskDir)
			if err != nil {
				Logger.Warn("Failed to open disk cache, continuing without it", "dir", cacheCfg.DiskDir, "error", err)
			} else {
				opts = append(opts, loader.WithDiskCache(diskCache))
				closers = append(closers, diskCache)
				Logger.Info("Disk cache opened", "dir", cacheCfg.DiskDir)
			}
		}
	}
	datasetLoader = loader.New(cfg, opts...)
	return nil
}

// shutdown flushes telemetry and releases everything setup opened.
func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
		}
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel provider: %v\n", err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
	closers = nil
}

// newService builds the control service rendering to r.
func newService(r player.Renderer, observer func(player.Progress)) *handlers.Service {
	viewCfg := config.GetViewConfig()
	return handlers.NewService(handlers.Dependencies{
		Loader:      datasetLoader,
		Renderer:    r,
		LogManager:  SlogManager,
		DefaultPath: config.GetSourceConfig().Path,
		Delay:       config.GetPlaybackConfig().Delay,
		View:        view.Options{Zoom: viewCfg.Zoom, Pitch: viewCfg.Pitch},
		Render:      render.OptionsFrom(config.GetRenderConfig()),
		Observer:    observer,
	}, Session)
}

// startMonitor starts the status file writer when monitor.enabled is set.
// The returned func stops it.
func startMonitor(svc *handlers.Service) func() {
	monCfg := config.GetMonitorConfig()
	if !monCfg.Enabled {
		return func() {}
	}
	mon := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		Status:     func() any { return svc.Status() },
		Dir:        monCfg.Dir,
		Interval:   monCfg.Interval,
	})
	if err := mon.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
		return func() {}
	}
	Logger.Info("Status monitor started", "path", mon.Path(), "interval", monCfg.Interval)
	return func() {
		mon.Stop()
		if err := mon.WriteStatus(); err != nil {
			Logger.Warn("Failed to write final status", "error", err)
		}
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name(AppName),
		kong.Description("Replay geolocated CSV observations frame by frame on a map."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     fmt.Sprintf("%s %s (built %s)", AppName, Version, BuildDate),
			"config_file": config.FileName,
		},
	)

	err := ctx.Run(&cli.Globals)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", AppName, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
