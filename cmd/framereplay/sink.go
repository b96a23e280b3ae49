package main

import (
	"fmt"
	"os"

	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/internal/influx"
	"github.com/OCAP2/framereplay/internal/logging"
	"github.com/OCAP2/framereplay/internal/sink"
	"github.com/OCAP2/framereplay/internal/sink/console"
	influxsink "github.com/OCAP2/framereplay/internal/sink/influx"
	"github.com/OCAP2/framereplay/internal/sink/memory"
	postgressink "github.com/OCAP2/framereplay/internal/sink/postgres"
	sqlitesink "github.com/OCAP2/framereplay/internal/sink/sqlite"
	wssink "github.com/OCAP2/framereplay/internal/sink/websocket"
	"github.com/OCAP2/framereplay/internal/util"
)

// createSinks builds one sink per configured type, in order.
func createSinks(sinkCfg config.SinkConfig) (*sink.Multi, error) {
	multi := sink.NewMulti()
	for _, typ := range sinkCfg.Types {
		s, err := createSink(typ, sinkCfg)
		if err != nil {
			return nil, err
		}
		multi.Add(typ, s)
	}
	if multi.Len() == 0 {
		return nil, fmt.Errorf("no sinks configured")
	}
	return multi, nil
}

func createSink(typ string, sinkCfg config.SinkConfig) (sink.Sink, error) {
	switch typ {
	case "console":
		Logger.Info("Console sink initialized")
		return console.New(os.Stdout, Logger), nil

	case "memory":
		Logger.Info("Memory sink initialized", "outputDir", sinkCfg.Memory.OutputDir)
		return memory.New(sinkCfg.Memory, config.GetAPIConfig().Tag), nil

	case "websocket":
		wsURL := sinkCfg.Websocket.URL
		secret := sinkCfg.Websocket.Secret
		if wsURL == "" {
			api := config.GetAPIConfig()
			wsURL = util.HTTPToWS(api.ServerURL) + "/api"
			if secret == "" {
				secret = api.APIKey
			}
		}
		Logger.Info("WebSocket sink initialized", "url", wsURL)
		return wssink.New(wssink.Config{URL: wsURL, Secret: secret}, Logger), nil

	case "sqlite":
		backend, err := sqlitesink.New(sqlitesink.ConfigFrom(sinkCfg.SQLite), SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite sink: %w", err)
		}
		Logger.Info("SQLite sink initialized", "outputDir", sinkCfg.SQLite.OutputDir)
		return backend, nil

	case "postgres":
		Logger.Info("Postgres sink initialized")
		return postgressink.New(config.GetDBConfig(), SlogManager), nil

	case "influx":
		influxCfg := config.GetInfluxConfig()
		manager := influx.NewManager(logging.NewZerolog(logOutput(), config.GetString("logLevel")), influxCfg)
		Logger.Info("InfluxDB sink initialized", "url", manager.ServerURL(), "bucket", influxCfg.Bucket)
		return influxsink.New(manager, influxCfg.Bucket), nil

	default:
		return nil, fmt.Errorf("unknown sink type: %q", typ)
	}
}
