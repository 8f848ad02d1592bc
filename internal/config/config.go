package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Locks     LocksConfig     `yaml:"locks"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// APIConfig contains settings for the platform's REST API
type APIConfig struct {
	BaseURL                string            `yaml:"base_url"`
	Token                  string            `yaml:"token"`
	TimeoutSeconds         int               `yaml:"timeout_seconds"`
	CacheSize              int               `yaml:"cache_size"`
	CacheExpirationSeconds int               `yaml:"cache_expiration_seconds"`
	Headers                map[string]string `yaml:"headers"`
}

// RealtimeConfig contains push channel settings
type RealtimeConfig struct {
	Enabled               bool `yaml:"enabled"`
	PingIntervalSeconds   int  `yaml:"ping_interval_seconds"`
	ReconnectDelayMs      int  `yaml:"reconnect_delay_ms"`
	MaxReconnectAttempts  int  `yaml:"max_reconnect_attempts"`
	DisableReconnect      bool `yaml:"disable_reconnect"`
	HandshakeTimeoutSecs  int  `yaml:"handshake_timeout_seconds"`
	RefreshFriendsOnEvent bool `yaml:"refresh_friends_on_event"`
}

// LocksConfig contains per-entity mutation lock settings
type LocksConfig struct {
	AcquisitionTimeoutSeconds int `yaml:"acquisition_timeout_seconds"`
}

// NotifierConfig contains user notification settings
type NotifierConfig struct {
	BroadcastBufferSize      int `yaml:"broadcast_buffer_size"`
	BroadcastFlushIntervalMs int `yaml:"broadcast_flush_interval_ms"`
	SubscriberBuffer         int `yaml:"subscriber_buffer"`
}

// StorageConfig contains snapshot storage settings
type StorageConfig struct {
	Enabled           bool    `yaml:"enabled"`
	DataDir           string  `yaml:"data_dir"`
	InMemory          bool    `yaml:"in_memory"`
	SyncWrites        bool    `yaml:"sync_writes"`
	GCIntervalMinutes int     `yaml:"gc_interval_minutes"`
	GCDiscardRatio    float64 `yaml:"gc_discard_ratio"`

	// Save the membership this often while running; zero saves only on shutdown
	SnapshotIntervalSeconds int `yaml:"snapshot_interval_seconds"`
}

// ServerConfig contains status API settings
type ServerConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	ReadTimeout  int      `yaml:"read_timeout"`
	WriteTimeout int      `yaml:"write_timeout"`
	IdleTimeout  int      `yaml:"idle_timeout"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	IncludeTrace  bool              `yaml:"include_trace"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	Insecure      bool              `yaml:"insecure"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:                "http://localhost:8080",
			TimeoutSeconds:         30,
			CacheSize:              500,
			CacheExpirationSeconds: 60,
			Headers:                map[string]string{},
		},
		Realtime: RealtimeConfig{
			Enabled:               true,
			PingIntervalSeconds:   30,
			ReconnectDelayMs:      3000,
			MaxReconnectAttempts:  5,
			HandshakeTimeoutSecs:  10,
			RefreshFriendsOnEvent: true,
		},
		Locks: LocksConfig{
			AcquisitionTimeoutSeconds: 30,
		},
		Notifier: NotifierConfig{
			BroadcastBufferSize:      32,
			BroadcastFlushIntervalMs: 50,
			SubscriberBuffer:         16,
		},
		Storage: StorageConfig{
			Enabled:           true,
			DataDir:           "./data",
			SyncWrites:        true,
			GCIntervalMinutes: 10,
			GCDiscardRatio:    0.5,

			SnapshotIntervalSeconds: 60,
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:9090",
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
			CORSOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			IncludeTrace:  true,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "verse",
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Overrides holds command-line values. Empty fields leave the loaded
// configuration untouched.
type Overrides struct {
	BaseURL    string
	Token      string
	DataDir    string
	ServerAddr string
	LogLevel   string
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Override with command line flags (highest priority)
	if flags.DataDir != "" {
		absDataDir, err := filepath.Abs(flags.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Storage.DataDir = absDataDir
	}
	if flags.BaseURL != "" {
		config.API.BaseURL = flags.BaseURL
	}
	if flags.Token != "" {
		config.API.Token = flags.Token
	}
	if flags.ServerAddr != "" {
		config.Server.Addr = flags.ServerAddr
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the daemon cannot run with
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Realtime.ReconnectDelayMs < 0 {
		return fmt.Errorf("realtime.reconnect_delay_ms must not be negative")
	}
	if c.Storage.Enabled && !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required unless storage.in_memory is set")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	// API
	if v := os.Getenv("VERSE_API_BASE_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv("VERSE_API_TOKEN"); v != "" {
		config.API.Token = v
	}
	if v, ok := envInt("VERSE_API_TIMEOUT_SECONDS"); ok {
		config.API.TimeoutSeconds = v
	}

	// Realtime
	if v, ok := envBool("VERSE_REALTIME_ENABLED"); ok {
		config.Realtime.Enabled = v
	}
	if v, ok := envInt("VERSE_REALTIME_PING_INTERVAL_SECONDS"); ok {
		config.Realtime.PingIntervalSeconds = v
	}
	if v, ok := envInt("VERSE_REALTIME_RECONNECT_DELAY_MS"); ok {
		config.Realtime.ReconnectDelayMs = v
	}
	if v, ok := envInt("VERSE_REALTIME_MAX_RECONNECT_ATTEMPTS"); ok {
		config.Realtime.MaxReconnectAttempts = v
	}

	// Storage
	if v := os.Getenv("VERSE_STORAGE_DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}
	if v, ok := envBool("VERSE_STORAGE_IN_MEMORY"); ok {
		config.Storage.InMemory = v
	}

	// Server
	if v := os.Getenv("VERSE_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}

	// Logging
	if v := os.Getenv("VERSE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("VERSE_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	// Telemetry
	if v, ok := envBool("VERSE_TELEMETRY_ENABLED"); ok {
		config.Telemetry.Enabled = v
	}
	if v := os.Getenv("VERSE_TELEMETRY_ENDPOINT"); v != "" {
		config.Telemetry.Endpoint = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("env", key).Str("value", raw).Msg("Ignoring non-integer environment override")
		return 0, false
	}
	return val, true
}

func envBool(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("env", key).Str("value", raw).Msg("Ignoring non-boolean environment override")
		return false, false
	}
	return val, true
}
