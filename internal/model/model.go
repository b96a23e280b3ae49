package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&PlaybackSession{},
	&FrameRow{},
	&PointRow{},
}

// PlaybackSession is one run of the player over a loaded dataset.
type PlaybackSession struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt time.Time      `json:"createdAt"`
	SessionID string         `json:"sessionId" gorm:"size:36;uniqueIndex:idx_session_uuid"`
	Source    string         `json:"source" gorm:"size:512"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   sql.NullTime   `json:"endedAt"`
	Status    string         `json:"status" gorm:"size:16;default:'running'"` // running, finished, halted
	Frames    int            `json:"frames"`
	Rendered  int            `json:"rendered"`
	Records   int            `json:"records"`
	Dropped   int            `json:"dropped"`
	DelayMs   int64          `json:"delayMs"`
	View      datatypes.JSON `json:"view"`
	Error     string         `json:"error" gorm:"size:1024"`
}

func (*PlaybackSession) TableName() string {
	return "playback_sessions"
}

// FrameRow records one rendered frame.
type FrameRow struct {
	ID                uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	PlaybackSessionID uint      `json:"playbackSessionId" gorm:"index:idx_frame_session_position"`
	Position          int       `json:"position" gorm:"index:idx_frame_session_position"`
	Total             int       `json:"total"`
	Timestamp         time.Time `json:"timestamp"`
	Progress          float64   `json:"progress"`
	Points            int       `json:"points"`
	RenderedAt        time.Time `json:"renderedAt"`
}

func (*FrameRow) TableName() string {
	return "frames"
}

// PointRow is one record as it was shown in a frame. Location holds the
// EPSG:3857 projection; Latitude and Longitude keep the source values.
type PointRow struct {
	ID                uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	PlaybackSessionID uint           `json:"playbackSessionId" gorm:"index:idx_point_session_frame"`
	FramePosition     int            `json:"framePosition" gorm:"index:idx_point_session_frame"`
	Time              time.Time      `json:"time"`
	RecordID          string         `json:"recordId" gorm:"size:64;index:idx_point_record_id"`
	Indicator         string         `json:"indicator" gorm:"size:64"`
	Latitude          float64        `json:"latitude"`
	Longitude         float64        `json:"longitude"`
	Location          geom.Point     `json:"location"`
	Color             datatypes.JSON `json:"color"`
}

func (*PointRow) TableName() string {
	return "points"
}
