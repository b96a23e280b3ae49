package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/OCAP2/framereplay/internal/api"
	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/internal/database"
	"github.com/OCAP2/framereplay/internal/dispatcher"
	"github.com/OCAP2/framereplay/internal/logging"
	"github.com/OCAP2/framereplay/internal/model"
	"github.com/OCAP2/framereplay/internal/sink"
	"github.com/OCAP2/framereplay/internal/sink/memory"

	"gorm.io/gorm"
)

// PlayCmd loads one file and replays it to the configured sinks.
type PlayCmd struct {
	Path string `arg:"" optional:"" help:"CSV file to replay; defaults to source.path." type:"path"`
}

func (c *PlayCmd) Run(g *Globals) error {
	if err := setup(g); err != nil {
		return err
	}

	sinks, err := createSinks(config.GetSinkConfig())
	if err != nil {
		return err
	}
	if err := sinks.Init(); err != nil {
		Logger.Error("Failed to initialize sinks", "error", err)
		sinks.Close()
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			Logger.Error("Failed to close sinks", "error", err)
		}
	}()

	svc := newService(sinks, nil)
	if _, err := svc.Load(c.Path); err != nil {
		return fmt.Errorf("load failed, nothing to play: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMonitor := startMonitor(svc)
	defer stopMonitor()

	err = svc.Play(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		Logger.Info("Playback interrupted")
		return nil
	case err != nil:
		return fmt.Errorf("playback failed: %w", err)
	}

	if config.GetAPIConfig().Upload {
		uploadExports(context.Background(), sinks)
	}
	return nil
}

// uploadExports sends every export produced by the run to the web frontend.
func uploadExports(ctx context.Context, sinks *sink.Multi) {
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Error("Web frontend unreachable, skipping upload", "url", apiCfg.ServerURL, "error", err)
		return
	}
	for _, u := range sinks.Uploadables() {
		path := u.GetExportedFilePath()
		if path == "" {
			continue
		}
		if err := client.Upload(ctx, path, u.GetExportMetadata()); err != nil {
			Logger.Error("Failed to upload replay", "path", path, "error", err)
			continue
		}
		Logger.Info("Uploaded replay", "path", path, "url", apiCfg.ServerURL)
	}
}

// InspectCmd prints what loading a file yields without playing it.
type InspectCmd struct {
	Path string `arg:"" optional:"" help:"CSV file to inspect; defaults to source.path." type:"path"`
	JSON bool   `help:"Print the summary as JSON."`
}

func (c *InspectCmd) Run(g *Globals) error {
	if err := setup(g); err != nil {
		return err
	}
	svc := newService(nil, nil)
	if _, err := svc.Load(c.Path); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	loaded, _ := svc.Session().Get()

	if c.JSON {
		return writeJSON(os.Stdout, struct {
			Status any `json:"status"`
			View   any `json:"view"`
		}{svc.Status(), loaded.View})
	}

	first, last, _ := loaded.Dataset.Span()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Source:\t%s\n", loaded.Dataset.Source)
	fmt.Fprintf(w, "Rows:\t%d\n", loaded.Dataset.Rows)
	fmt.Fprintf(w, "Records:\t%d\n", len(loaded.Records))
	fmt.Fprintf(w, "Dropped:\t%d\n", loaded.Dataset.Dropped)
	fmt.Fprintf(w, "Frames:\t%d\n", len(loaded.Frames))
	fmt.Fprintf(w, "From:\t%s\n", first.Format(time.RFC3339))
	fmt.Fprintf(w, "To:\t%s\n", last.Format(time.RFC3339))
	fmt.Fprintf(w, "Center:\t%.6f, %.6f\n", loaded.View.Latitude, loaded.View.Longitude)
	fmt.Fprintf(w, "Zoom:\t%g\n", loaded.View.Zoom)
	fmt.Fprintf(w, "Pitch:\t%g\n", loaded.View.Pitch)
	b := loaded.View.Bounds
	fmt.Fprintf(w, "Bounds:\t%.6f,%.6f .. %.6f,%.6f\n", b.MinLatitude, b.MinLongitude, b.MaxLatitude, b.MaxLongitude)
	return w.Flush()
}

// ConsoleCmd drives the control commands from stdin.
type ConsoleCmd struct{}

func (c *ConsoleCmd) Run(g *Globals) error {
	if err := setup(g); err != nil {
		return err
	}

	sinks, err := createSinks(config.GetSinkConfig())
	if err != nil {
		return err
	}
	if err := sinks.Init(); err != nil {
		sinks.Close()
		return err
	}
	defer sinks.Close()

	d, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	svc := newService(sinks, nil)
	svc.Register(d)
	defer func() {
		svc.Session().Clear()
		d.Close()
	}()

	stopMonitor := startMonitor(svc)
	defer stopMonitor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runConsole(ctx, d, os.Stdin, os.Stdout)
}

// runConsole reads one command per line until quit, EOF or ctx is done.
func runConsole(ctx context.Context, d *dispatcher.Dispatcher, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintf(out, "Commands: %s, help, quit\n", verbs(d.Commands()))
	for {
		fmt.Fprint(out, "> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				return err
			default:
				return nil
			}
		}

		e, ok := dispatcher.ParseLine(line, time.Now())
		if !ok {
			continue
		}
		switch e.Command {
		case ":QUIT:", ":EXIT:":
			return nil
		case ":HELP:":
			fmt.Fprintf(out, "Commands: %s, help, quit\n", verbs(d.Commands()))
			continue
		}

		result, err := d.Dispatch(e)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printResult(out, result)
	}
}

func verbs(commands []string) string {
	out := make([]string, len(commands))
	for i, c := range commands {
		out[i] = strings.ToLower(strings.Trim(c, ":"))
	}
	return strings.Join(out, ", ")
}

func printResult(out io.Writer, result any) {
	switch r := result.(type) {
	case nil:
		fmt.Fprintln(out, "ok")
	case string:
		fmt.Fprintln(out, r)
	default:
		if err := writeJSON(out, r); err != nil {
			fmt.Fprintf(out, "%v\n", r)
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// UploadCmd sends an export file to the web frontend.
type UploadCmd struct {
	File string `arg:"" help:"Exported replay (.json or .json.gz)." type:"existingfile"`
	Tag  string `help:"Tag to store with the replay; defaults to api.tag."`
}

func (c *UploadCmd) Run(g *Globals) error {
	if err := setup(g); err != nil {
		return err
	}
	apiCfg := config.GetAPIConfig()
	tag := c.Tag
	if tag == "" {
		tag = apiCfg.Tag
	}
	meta, err := memory.ExportMetadata(c.File, tag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		return err
	}
	if err := client.Upload(ctx, c.File, meta); err != nil {
		return err
	}
	Logger.Info("Uploaded replay", "path", c.File, "session", meta.SessionID, "frames", meta.Frames)
	fmt.Printf("Uploaded %s (%d frames, %d records)\n", filepath.Base(c.File), meta.Frames, meta.Records)
	return nil
}

// HistoryCmd lists playback sessions stored by the postgres or sqlite sinks.
type HistoryCmd struct {
	Limit int    `help:"Number of sessions to list; 0 lists all." default:"20"`
	Dumps string `help:"Read sqlite dumps from this directory instead of Postgres." type:"path"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	if err := setup(g); err != nil {
		return err
	}

	dir := c.Dumps
	if dir == "" {
		mgr := database.NewManager(logging.NewZerolog(logOutput(), config.GetString("logLevel")))
		if err := mgr.Connect(config.GetDBConfig()); err != nil {
			return err
		}
		defer mgr.Close()
		if !mgr.ShouldSaveLocal {
			if err := mgr.Setup(); err != nil {
				return err
			}
			return c.print(mgr.DB, "postgres")
		}
		dir = config.GetSinkConfig().SQLite.OutputDir
		Logger.Warn("Postgres unreachable, reading sqlite dumps", "dir", dir)
	}

	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("failed to list sqlite dumps: %w", err)
	}
	for _, path := range paths {
		db, err := database.GetSqliteDB(path)
		if err != nil {
			Logger.Warn("Skipping unreadable dump", "path", path, "error", err)
			continue
		}
		if err := c.print(db, filepath.Base(path)); err != nil {
			Logger.Warn("Skipping dump", "path", path, "error", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return nil
}

func (c *HistoryCmd) print(db *gorm.DB, origin string) error {
	sessions, err := database.RecentSessions(db, c.Limit)
	if err != nil {
		return err
	}
	return printSessions(os.Stdout, origin, sessions)
}

func printSessions(out io.Writer, origin string, sessions []model.PlaybackSession) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "# %s\n", origin)
	fmt.Fprintln(w, "SESSION\tSOURCE\tSTARTED\tSTATUS\tRENDERED\tRECORDS\tDROPPED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\n",
			s.SessionID, filepath.Base(s.Source), s.StartedAt.UTC().Format(time.RFC3339),
			s.Status, s.Rendered, s.Frames, s.Records, s.Dropped)
	}
	return w.Flush()
}
