// Package config loads and validates the monitor's YAML configuration.
package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Rooms      RoomsConfig      `yaml:"rooms"`
	Session    SessionConfig    `yaml:"session"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Database   DBConfig         `yaml:"database"`
	Poller     PollerConfig     `yaml:"poller"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds prediction server endpoints and auth.
type ServerConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`

	// ListenAddr serves health, debug and metrics endpoints.
	ListenAddr string `yaml:"listen_addr"`
}

// ConnectionConfig holds WebSocket connection manager settings.
type ConnectionConfig struct {
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	LivenessTimeout      time.Duration `yaml:"liveness_timeout"`
	MessageBufferSize    int           `yaml:"message_buffer_size"`
}

// RoomsConfig holds initial room subscriptions.
type RoomsConfig struct {
	// Sessions are training session IDs joined at startup.
	Sessions []string `yaml:"sessions"`
}

// SessionConfig holds session state machine settings.
type SessionConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// ArchiveConfig holds update archiver settings. Disabled unless enabled is
// set and the database is configured.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds the archive database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds status poller fallback settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}
