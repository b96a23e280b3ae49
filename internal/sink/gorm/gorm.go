// Package gormsink records playback runs into a relational database through
// GORM. Frames and points are queued and drained into the database in
// batches by a background writer; End flushes synchronously.
package gormsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/framereplay/internal/database"
	"github.com/OCAP2/framereplay/internal/geo"
	"github.com/OCAP2/framereplay/internal/logging"
	"github.com/OCAP2/framereplay/internal/model"
	"github.com/OCAP2/framereplay/internal/queue"
	"github.com/OCAP2/framereplay/pkg/streaming"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultFlushInterval is how often the background writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// insertBatchSize keeps point inserts under SQLite's bound parameter limit.
const insertBatchSize = 500

// ErrNoSession is returned by Render and End when Begin has not succeeded.
var ErrNoSession = errors.New("no playback session started")

// Dependencies holds all dependencies for the GORM sink.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

type queues struct {
	Frames *queue.Queue[model.FrameRow]
	Points *queue.Queue[model.PointRow]
}

func newQueues() *queues {
	return &queues{
		Frames: queue.New[model.FrameRow](),
		Points: queue.New[model.PointRow](),
	}
}

// Backend implements sink.Sink on top of a *gorm.DB.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	rendered  atomic.Int64
	writeMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a new GORM sink.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying database handle.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the background writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm sink: no database")
	}
	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

func (b *Backend) setupDB() error {
	log := b.deps.LogManager

	if b.deps.DB.Name() == "postgres" {
		if err := b.deps.DB.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS Extension created", "INFO")
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close stops the background writer and writes anything still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.flush()
}

// Begin inserts the playback_sessions row for the run.
func (b *Backend) Begin(_ context.Context, start streaming.StartPlaybackPayload) error {
	view, err := json.Marshal(start.View)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}

	row := model.PlaybackSession{
		SessionID: start.SessionID,
		Source:    start.Source,
		StartedAt: start.StartedAt,
		Status:    "running",
		Frames:    start.Frames,
		Records:   start.Records,
		Dropped:   start.Dropped,
		DelayMs:   start.Delay.Milliseconds(),
		View:      datatypes.JSON(view),
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		b.deps.LogManager.WriteLog("Begin", fmt.Sprintf("Failed to create playback session: %v", err), "ERROR")
		return fmt.Errorf("failed to insert playback session: %w", err)
	}

	b.queues.Frames.Clear()
	b.queues.Points.Clear()
	b.rendered.Store(0)
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// Render queues one frame row plus a point row per record.
func (b *Backend) Render(_ context.Context, frame streaming.FramePayload) error {
	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return ErrNoSession
	}

	points := make([]model.PointRow, 0, len(frame.Layer.Points))
	for _, p := range frame.Layer.Points {
		row, err := pointRow(sessionID, frame, p)
		if err != nil {
			return err
		}
		points = append(points, row)
	}

	b.queues.Frames.Push(model.FrameRow{
		PlaybackSessionID: sessionID,
		Position:          frame.Position,
		Total:             frame.Total,
		Timestamp:         frame.Timestamp,
		Progress:          frame.Progress,
		Points:            len(points),
		RenderedAt:        time.Now(),
	})
	b.queues.Points.Push(points...)
	b.rendered.Add(1)
	return nil
}

func pointRow(sessionID uint, frame streaming.FramePayload, p streaming.Point) (model.PointRow, error) {
	lon, lat := p.Position[0], p.Position[1]
	location, err := geo.Coords3857From4326(lon, lat)
	if err != nil {
		return model.PointRow{}, fmt.Errorf("point %s: %w", p.ID, err)
	}
	color, err := json.Marshal(p.FillColor)
	if err != nil {
		return model.PointRow{}, err
	}
	return model.PointRow{
		PlaybackSessionID: sessionID,
		FramePosition:     frame.Position,
		Time:              frame.Timestamp,
		RecordID:          p.ID,
		Indicator:         p.Indicator,
		Latitude:          lat,
		Longitude:         lon,
		Location:          location,
		Color:             datatypes.JSON(color),
	}, nil
}

// End writes everything queued and closes the session row.
func (b *Backend) End(_ context.Context, end streaming.EndPlaybackPayload) error {
	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return ErrNoSession
	}

	flushErr := b.flush()

	updates := map[string]any{
		"status":   end.Status,
		"rendered": end.Rendered,
		"ended_at": sql.NullTime{Time: time.Now(), Valid: true},
		"error":    end.Error,
	}
	err := b.deps.DB.Model(&model.PlaybackSession{}).Where("id = ?", sessionID).Updates(updates).Error
	if err != nil {
		err = fmt.Errorf("failed to close playback session: %w", err)
	}
	b.sessionID.Store(0)
	return errors.Join(flushErr, err)
}

// Pending returns the number of queued frame and point rows.
func (b *Backend) Pending() (frames, points int) {
	return b.queues.Frames.Len(), b.queues.Points.Len()
}

// Rendered returns the number of frames accepted since Begin.
func (b *Backend) Rendered() int {
	return int(b.rendered.Load())
}

func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				b.deps.LogManager.WriteLog(":DB:WRITER:", err.Error(), "ERROR")
			}
		}
	}
}

func (b *Backend) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Frames, "frames"),
		writeQueue(b.deps.DB, b.queues.Points, "points"),
	)
}

// writeQueue writes everything queued in one transaction. On failure the
// items go back to the front of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) error {
	if q.Empty() {
		return nil
	}

	items := q.PopBatch(0)
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, insertBatchSize).Error
	})
	if err != nil {
		q.Requeue(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}
