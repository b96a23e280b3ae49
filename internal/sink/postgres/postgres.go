// Package postgressink records playback runs into PostgreSQL/PostGIS using
// the GORM sink.
package postgressink

import (
	"fmt"

	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/internal/database"
	"github.com/OCAP2/framereplay/internal/logging"
	gormsink "github.com/OCAP2/framereplay/internal/sink/gorm"
)

// Backend is the GORM sink bound to a Postgres connection opened at Init.
type Backend struct {
	*gormsink.Backend
	cfg config.DBConfig
	log *logging.SlogManager
}

// New creates a Postgres sink. No connection is made until Init.
func New(cfg config.DBConfig, logManager *logging.SlogManager) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	return &Backend{cfg: cfg, log: logManager}
}

// Init connects, pings and migrates.
func (b *Backend) Init() error {
	db, err := database.GetPostgresDB(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	b.log.WriteLog("postgres:Init", fmt.Sprintf("Connected to %s:%s/%s", b.cfg.Host, b.cfg.Port, b.cfg.Database), "INFO")
	b.Backend = gormsink.New(gormsink.Dependencies{DB: db, LogManager: b.log})
	return b.Backend.Init()
}

// Close stops the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
