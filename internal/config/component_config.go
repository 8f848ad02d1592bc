package config

import (
	"time"

	"github.com/nkkko/verse/internal/api"
	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/logging"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/internal/storage"
	"github.com/nkkko/verse/internal/telemetry"
	"github.com/nkkko/verse/pkg/client"
)

// ToClientOptions converts to REST client options
func (c *Config) ToClientOptions() []client.ClientOption {
	opts := []client.ClientOption{
		client.WithTimeout(time.Duration(c.API.TimeoutSeconds) * time.Second),
		client.WithCache(c.API.CacheSize, time.Duration(c.API.CacheExpirationSeconds)*time.Second),
	}
	if c.API.Token != "" {
		opts = append(opts, client.WithToken(c.API.Token))
	}
	if len(c.API.Headers) > 0 {
		opts = append(opts, client.WithHeaders(c.API.Headers))
	}
	return opts
}

// ToRealtimeConfig converts to realtime manager config
func (c *Config) ToRealtimeConfig() realtime.Config {
	return realtime.Config{
		BaseURL:              c.API.BaseURL,
		PingInterval:         time.Duration(c.Realtime.PingIntervalSeconds) * time.Second,
		ReconnectDelay:       time.Duration(c.Realtime.ReconnectDelayMs) * time.Millisecond,
		MaxReconnectAttempts: c.Realtime.MaxReconnectAttempts,
		DisableReconnect:     c.Realtime.DisableReconnect,
		HandshakeTimeout:     time.Duration(c.Realtime.HandshakeTimeoutSecs) * time.Second,
	}
}

// ToLockManagerConfig converts to lock manager config
func (c *Config) ToLockManagerConfig() lockmanager.Config {
	return lockmanager.Config{
		AcquisitionTimeout: time.Duration(c.Locks.AcquisitionTimeoutSeconds) * time.Second,
	}
}

// ToNotifierConfig converts to notifier config
func (c *Config) ToNotifierConfig() notifier.Config {
	return notifier.Config{
		BroadcastBufferSize:    c.Notifier.BroadcastBufferSize,
		BroadcastFlushInterval: time.Duration(c.Notifier.BroadcastFlushIntervalMs) * time.Millisecond,
		SubscriberBuffer:       c.Notifier.SubscriberBuffer,
	}
}

// ToStorageConfig converts to snapshot storage config
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		DataDir:        c.Storage.DataDir,
		InMemory:       c.Storage.InMemory,
		SyncWrites:     c.Storage.SyncWrites,
		GCInterval:     time.Duration(c.Storage.GCIntervalMinutes) * time.Minute,
		GCDiscardRatio: c.Storage.GCDiscardRatio,
	}
}

// ToAPIConfig converts to status API config
func (c *Config) ToAPIConfig() api.Config {
	return api.Config{
		Addr:           c.Server.Addr,
		ReadTimeout:    time.Duration(c.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(c.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(c.Server.IdleTimeout) * time.Second,
		CORSOrigins:    c.Server.CORSOrigins,
		MetricsEnabled: c.Metrics.Enabled,
		MetricsPath:    c.Metrics.Endpoint,
		ServiceName:    c.Telemetry.ServiceName,
	}
}

// ToLoggingConfig converts to logging config
func (c *Config) ToLoggingConfig() logging.Config {
	var level logging.LogLevel
	switch c.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "info":
		level = logging.LevelInfo
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	default:
		level = logging.LevelInfo
	}

	var format logging.LogFormat
	switch c.Logging.Format {
	case "console":
		format = logging.FormatConsole
	default:
		format = logging.FormatJSON
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.IncludeCaller = c.Logging.IncludeCaller
	cfg.IncludeTraceContext = c.Logging.IncludeTrace
	cfg.GlobalFields = c.Logging.GlobalFields
	return cfg
}

// ToTelemetryConfig converts to telemetry config
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:       c.Telemetry.Enabled,
		ServiceName:   c.Telemetry.ServiceName,
		Endpoint:      c.Telemetry.Endpoint,
		Insecure:      c.Telemetry.Insecure,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    c.Telemetry.Attributes,
	}
}
