package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"github.com/wattsync/wattsync/internal/logger"
	"github.com/wattsync/wattsync/internal/recorder"
	"github.com/wattsync/wattsync/internal/source"
)

// FileConfig represents the top-level TOML structure:
//
//	[source]
//	ws_url = "ws://hub:8123/api/websocket"
//	rest_url = "http://hub:8123/api"
//	token = "..."
//
//	[timeseries]
//	dsn = "clickhouse://localhost:9000/wattsync"
//
//	[appstate]
//	dsn = "sqlite://wattsync.db"
//
//	[recorder]
//	heartbeat_interval = "3m"
//	backfill_window = "24h"
//
//	[server]
//	listen = ":8321"
type FileConfig struct {
	Source     source.Config   `toml:"source" mapstructure:"source"`
	TimeSeries StoreConfig     `toml:"timeseries" mapstructure:"timeseries"`
	AppState   StoreConfig     `toml:"appstate" mapstructure:"appstate"`
	Recorder   recorder.Config `toml:"recorder" mapstructure:"recorder"`
	Server     ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics    MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log        *logger.Config  `toml:"log" mapstructure:"log"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

const DefaultListen = ":8321"

// Load reads and validates the TOML config at path.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) Validate() error {
	if err := fc.Source.Validate(); err != nil {
		return err
	}
	if fc.TimeSeries.DSN == "" {
		return errors.New("timeseries: dsn required")
	}
	if fc.AppState.DSN == "" {
		return errors.New("appstate: dsn required")
	}
	if err := fc.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = DefaultListen
	}
	return nil
}

