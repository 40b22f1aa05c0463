package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	StoreDir       string   `yaml:"store_dir"` // enables JetStream persistence when set
}

type LibraryConfig struct {
	Path           string `yaml:"path"`
	RetentionMode  string `yaml:"retention_mode"`
	RetentionDays  int    `yaml:"retention_days"`
	MaxConversions int    `yaml:"max_conversions"`
	VacuumOnStart  bool   `yaml:"vacuum_on_start"`
}

type ExtractConfig struct {
	Pages string `yaml:"pages"`
}

type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
}

type EngineConfig struct {
	Mode       string  `yaml:"mode"` // offline, online, mock
	Command    string  `yaml:"command"`
	Endpoint   string  `yaml:"endpoint"`
	Voice      string  `yaml:"voice"`
	Rate       float64 `yaml:"rate"`
	Volume     float64 `yaml:"volume"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	MaxRetries int     `yaml:"max_retries"`
	TimeoutMS  int     `yaml:"timeout_ms"`
}

type PlaybackConfig struct {
	BufferFrames int     `yaml:"buffer_frames"`
	Volume       float64 `yaml:"volume"`
}

type ExportConfig struct {
	Format  string `yaml:"format"` // mp3 or wav
	Bitrate int    `yaml:"bitrate_kbps"`
}

type Config struct {
	AppName     string          `yaml:"app_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Library     LibraryConfig   `yaml:"library"`
	Extract     ExtractConfig   `yaml:"extract"`
	Chunker     ChunkerConfig   `yaml:"chunker"`
	Engine      EngineConfig    `yaml:"engine"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Export      ExportConfig    `yaml:"export"`
}

func Default() Config {
	return Config{
		AppName:     "inkvox",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4322,
			Servers:        []string{"nats://localhost:4322"},
			ConnectTimeout: 2000,
			StoreDir:       "./data/nats",
		},
		Library: LibraryConfig{
			Path:           "./data/inkvox-library.db",
			RetentionMode:  "session",
			RetentionDays:  30,
			MaxConversions: 1000,
		},
		Extract: ExtractConfig{
			Pages: "",
		},
		Chunker: ChunkerConfig{
			MaxChunkSize: 3500,
		},
		Engine: EngineConfig{
			Mode:       "mock",
			Voice:      "en-US",
			Rate:       1.0,
			Volume:     1.0,
			SampleRate: 22050,
			Channels:   1,
			MaxRetries: 2,
			TimeoutMS:  45000,
		},
		Playback: PlaybackConfig{
			BufferFrames: 1024,
			Volume:       1.0,
		},
		Export: ExportConfig{
			Format:  "mp3",
			Bitrate: 128,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "INKVOX_APP_NAME")
	overrideString(&cfg.Environment, "INKVOX_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "INKVOX_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "INKVOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "INKVOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "INKVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "INKVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "INKVOX_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "INKVOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "INKVOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "INKVOX_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "INKVOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.StoreDir, "INKVOX_BUS_STORE_DIR")
	overrideString(&cfg.Library.Path, "INKVOX_LIBRARY_PATH")
	overrideString(&cfg.Library.RetentionMode, "INKVOX_LIBRARY_RETENTION_MODE")
	overrideInt(&cfg.Library.RetentionDays, "INKVOX_LIBRARY_RETENTION_DAYS")
	overrideInt(&cfg.Library.MaxConversions, "INKVOX_LIBRARY_MAX_CONVERSIONS")
	overrideBool(&cfg.Library.VacuumOnStart, "INKVOX_LIBRARY_VACUUM_ON_START")
	overrideString(&cfg.Extract.Pages, "INKVOX_EXTRACT_PAGES")
	overrideInt(&cfg.Chunker.MaxChunkSize, "INKVOX_CHUNKER_MAX_CHUNK_SIZE")
	overrideString(&cfg.Engine.Mode, "INKVOX_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "INKVOX_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Endpoint, "INKVOX_ENGINE_ENDPOINT")
	overrideString(&cfg.Engine.Voice, "INKVOX_ENGINE_VOICE")
	overrideFloat(&cfg.Engine.Rate, "INKVOX_ENGINE_RATE")
	overrideFloat(&cfg.Engine.Volume, "INKVOX_ENGINE_VOLUME")
	overrideInt(&cfg.Engine.SampleRate, "INKVOX_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "INKVOX_ENGINE_CHANNELS")
	overrideInt(&cfg.Engine.MaxRetries, "INKVOX_ENGINE_MAX_RETRIES")
	overrideInt(&cfg.Engine.TimeoutMS, "INKVOX_ENGINE_TIMEOUT_MS")
	overrideInt(&cfg.Playback.BufferFrames, "INKVOX_PLAYBACK_BUFFER_FRAMES")
	overrideFloat(&cfg.Playback.Volume, "INKVOX_PLAYBACK_VOLUME")
	overrideString(&cfg.Export.Format, "INKVOX_EXPORT_FORMAT")
	overrideInt(&cfg.Export.Bitrate, "INKVOX_EXPORT_BITRATE_KBPS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if cfg.HTTP.Enabled {
		if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
			return errors.New("http.port must be between 1 and 65535")
		}
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Library.Path == "" {
		return errors.New("library.path must not be empty")
	}
	switch cfg.Library.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("library.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Library.RetentionDays < 0 {
		return errors.New("library.retention_days must be >= 0")
	}
	if cfg.Chunker.MaxChunkSize <= 0 {
		return errors.New("chunker.max_chunk_size must be positive")
	}
	switch cfg.Engine.Mode {
	case "offline", "online", "mock":
	default:
		return errors.New("engine.mode must be one of offline|online|mock")
	}
	if cfg.Engine.Mode == "offline" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=offline")
	}
	if cfg.Engine.Mode == "online" && cfg.Engine.Endpoint == "" {
		return errors.New("engine.endpoint must be set when mode=online")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	if cfg.Engine.MaxRetries < 0 {
		return errors.New("engine.max_retries must be >= 0")
	}
	if cfg.Engine.Rate <= 0 {
		return errors.New("engine.rate must be positive")
	}
	if cfg.Engine.Volume < 0 || cfg.Engine.Volume > 1 {
		return errors.New("engine.volume must be between 0 and 1")
	}
	if cfg.Playback.BufferFrames <= 0 {
		return errors.New("playback.buffer_frames must be positive")
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		return errors.New("playback.volume must be between 0 and 1")
	}
	switch cfg.Export.Format {
	case "mp3", "wav":
	default:
		return errors.New("export.format must be one of mp3|wav")
	}
	if cfg.Export.Format == "mp3" && cfg.Export.Bitrate <= 0 {
		return errors.New("export.bitrate_kbps must be positive for mp3 export")
	}
	return nil
}
