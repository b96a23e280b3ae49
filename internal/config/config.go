package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "framereplay.cfg.json"

// ColumnsConfig binds record fields to CSV header names.
type ColumnsConfig struct {
	Latitude  string `json:"latitude" mapstructure:"latitude" validate:"required"`
	Longitude string `json:"longitude" mapstructure:"longitude" validate:"required"`
	Timestamp string `json:"timestamp" mapstructure:"timestamp" validate:"required"`
	Indicator string `json:"indicator" mapstructure:"indicator" validate:"required"`
	ID        string `json:"id" mapstructure:"id" validate:"required"`
}

// SourceConfig holds input file settings
type SourceConfig struct {
	Path             string        `validate:"omitempty"`
	Encoding         string        `validate:"required"`
	TimestampLayouts []string      `validate:"omitempty,dive,required"`
	Location         string        `validate:"required"`
	Columns          ColumnsConfig
}

// PlaybackConfig holds pacing settings
type PlaybackConfig struct {
	Delay time.Duration `validate:"gte=0"`
}

// ViewConfig holds the fixed camera settings
type ViewConfig struct {
	Zoom  float64 `validate:"gte=0,lte=24"`
	Pitch float64 `validate:"gte=0,lte=85"`
}

// RenderConfig holds scatterplot layer settings
type RenderConfig struct {
	Radius          float64 `validate:"gt=0"`
	RadiusMinPixels float64 `validate:"gte=0"`
	RadiusMaxPixels float64 `validate:"gtefield=RadiusMinPixels"`
	Opacity         float64 `validate:"gte=0,lte=1"`
	MapStyle        string
	MapToken        string
}

// MemoryConfig holds in-memory/JSON export sink settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite sink settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	OutputDir    string        `json:"outputDir" mapstructure:"outputDir"`
}

// WebsocketConfig holds remote renderer settings
type WebsocketConfig struct {
	URL    string `validate:"omitempty,url"`
	Secret string
}

// SinkConfig selects and configures renderer sinks
type SinkConfig struct {
	Types     []string `validate:"min=1,dive,oneof=console memory websocket sqlite postgres influx"`
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Websocket WebsocketConfig
}

// DBConfig holds PostgreSQL connection settings
type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Username string
	Password string
	Database string `validate:"required"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled    bool
	Protocol   string `validate:"oneof=http https"`
	Host       string `validate:"required"`
	Port       string `validate:"required,numeric"`
	Token      string
	Org        string `validate:"required"`
	Bucket     string `validate:"required"`
	BackupPath string
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool
	Address string `validate:"required_if=Enabled true"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration `validate:"required_if=Enabled true"`
	Dir      string
}

// CacheConfig holds dataset cache settings
type CacheConfig struct {
	Enabled bool
	DiskDir string
}

// APIConfig holds web frontend settings
type APIConfig struct {
	ServerURL string `validate:"omitempty,url"`
	APIKey    string
	Upload    bool
	Tag       string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers a default for every key, so Get*Config works
// without a config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("source.path", "")
	viper.SetDefault("source.encoding", "ISO-8859-1")
	viper.SetDefault("source.timestampLayouts", []string{})
	viper.SetDefault("source.location", "UTC")
	viper.SetDefault("source.columns.latitude", "Coordy")
	viper.SetDefault("source.columns.longitude", "Coordx")
	viper.SetDefault("source.columns.timestamp", "timestamp")
	viper.SetDefault("source.columns.indicator", "predominant_color")
	viper.SetDefault("source.columns.id", "id")

	viper.SetDefault("playback.delay", "1s")

	viper.SetDefault("view.zoom", 12)
	viper.SetDefault("view.pitch", 0)

	viper.SetDefault("render.radius", 100)
	viper.SetDefault("render.radiusMinPixels", 5)
	viper.SetDefault("render.radiusMaxPixels", 50)
	viper.SetDefault("render.opacity", 0.8)
	viper.SetDefault("render.mapStyle", "mapbox://styles/mapbox/dark-v10")
	viper.SetDefault("render.mapToken", "")

	viper.SetDefault("sink.types", []string{"console"})
	viper.SetDefault("sink.memory.outputDir", "./replays")
	viper.SetDefault("sink.memory.compressOutput", true)
	viper.SetDefault("sink.sqlite.dumpInterval", "3m")
	viper.SetDefault("sink.sqlite.outputDir", "./replays")
	viper.SetDefault("sink.websocket.url", "")
	viper.SetDefault("sink.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "framereplay")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "framereplay")
	viper.SetDefault("influx.bucket", "frame_points")
	viper.SetDefault("influx.backupPath", "./replays/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "framereplay")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "1m")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.dir", "./logs")

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.diskDir", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)
	viper.SetDefault("api.tag", "replay")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSourceConfig returns the input file settings.
func GetSourceConfig() SourceConfig {
	return SourceConfig{
		Path:             viper.GetString("source.path"),
		Encoding:         viper.GetString("source.encoding"),
		TimestampLayouts: viper.GetStringSlice("source.timestampLayouts"),
		Location:         viper.GetString("source.location"),
		Columns: ColumnsConfig{
			Latitude:  viper.GetString("source.columns.latitude"),
			Longitude: viper.GetString("source.columns.longitude"),
			Timestamp: viper.GetString("source.columns.timestamp"),
			Indicator: viper.GetString("source.columns.indicator"),
			ID:        viper.GetString("source.columns.id"),
		},
	}
}

// GetPlaybackConfig returns the pacing settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{Delay: viper.GetDuration("playback.delay")}
}

// GetViewConfig returns the camera settings.
func GetViewConfig() ViewConfig {
	return ViewConfig{
		Zoom:  viper.GetFloat64("view.zoom"),
		Pitch: viper.GetFloat64("view.pitch"),
	}
}

// GetRenderConfig returns the layer settings.
func GetRenderConfig() RenderConfig {
	return RenderConfig{
		Radius:          viper.GetFloat64("render.radius"),
		RadiusMinPixels: viper.GetFloat64("render.radiusMinPixels"),
		RadiusMaxPixels: viper.GetFloat64("render.radiusMaxPixels"),
		Opacity:         viper.GetFloat64("render.opacity"),
		MapStyle:        viper.GetString("render.mapStyle"),
		MapToken:        viper.GetString("render.mapToken"),
	}
}

// GetSinkConfig returns the sink selection. Types are lower-cased and
// may be given as a list or a comma separated string.
func GetSinkConfig() SinkConfig {
	var types []string
	for _, t := range viper.GetStringSlice("sink.types") {
		for _, part := range strings.Split(t, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				types = append(types, part)
			}
		}
	}
	return SinkConfig{
		Types: types,
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("sink.memory.outputDir"),
			CompressOutput: viper.GetBool("sink.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("sink.sqlite.dumpInterval"),
			OutputDir:    viper.GetString("sink.sqlite.outputDir"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("sink.websocket.url"),
			Secret: viper.GetString("sink.websocket.secret"),
		},
	}
}

// GetDBConfig returns the PostgreSQL connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetGraylogConfig returns the GELF output settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
		Dir:      viper.GetString("monitor.dir"),
	}
}

// GetCacheConfig returns the dataset cache settings.
func GetCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: viper.GetBool("cache.enabled"),
		DiskDir: viper.GetString("cache.diskDir"),
	}
}

// GetAPIConfig returns the web frontend settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
		Tag:       viper.GetString("api.tag"),
	}
}

type section struct {
	name string
	cfg  any
}

// Validate checks every config section against its struct tags.
// Connection settings are only checked for the sinks that use them.
func Validate() error {
	v := validator.New()
	sinks := GetSinkConfig()
	sections := []section{
		{"source", GetSourceConfig()},
		{"playback", GetPlaybackConfig()},
		{"view", GetViewConfig()},
		{"render", GetRenderConfig()},
		{"sink", sinks},
		{"graylog", GetGraylogConfig()},
		{"monitor", GetMonitorConfig()},
		{"api", GetAPIConfig()},
	}
	for _, t := range sinks.Types {
		switch t {
		case "postgres":
			sections = append(sections, section{"db", GetDBConfig()})
		case "influx":
			sections = append(sections, section{"influx", GetInfluxConfig()})
		}
	}
	for _, s := range sections {
		if err := v.Struct(s.cfg); err != nil {
			return fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}
	return nil
}
