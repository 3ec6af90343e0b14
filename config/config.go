// Package config loads caredesk settings from YAML or commented JSON files,
// applies environment overrides and watches the file for changes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/caredesk/logging"
)

// Duration is a time.Duration that decodes from "30s" style strings in both
// YAML and JSON, or from a number of nanoseconds in JSON.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Desk      DeskConfig      `yaml:"desk" json:"desk"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Lock      LockConfig      `yaml:"lock" json:"lock"`
	Events    EventsConfig    `yaml:"events" json:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	ReadTimeout    Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout" json:"write_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// StorageConfig selects the ticket backend and file locations.
type StorageConfig struct {
	Driver      string `yaml:"driver" json:"driver"` // "file" or "sqlite"
	TicketsFile string `yaml:"tickets_file" json:"tickets_file"`
	AgentsFile  string `yaml:"agents_file" json:"agents_file"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" json:"provider"` // "openai" or "anthropic"
	Model       string  `yaml:"model" json:"model"`
	APIKey      string  `yaml:"api_key" json:"api_key"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// MaxConcurrent bounds in-flight model requests. 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
}

// DeskConfig tunes agent runs.
type DeskConfig struct {
	MaxTurns    int      `yaml:"max_turns" json:"max_turns"`
	RunTimeout  Duration `yaml:"run_timeout" json:"run_timeout"`
	MemoryLimit int      `yaml:"memory_limit" json:"memory_limit"`
	RecallLimit int      `yaml:"recall_limit" json:"recall_limit"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "json" or "text"
}

// AuthConfig enables reviewer tokens when a secret is set.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer    string   `yaml:"issuer" json:"issuer"`
	TokenTTL  Duration `yaml:"token_ttl" json:"token_ttl"`
}

// LockConfig selects the processing lock.
type LockConfig struct {
	Driver   string   `yaml:"driver" json:"driver"` // "local" or "redis"
	RedisURL string   `yaml:"redis_url" json:"redis_url"`
	TTL      Duration `yaml:"ttl" json:"ttl"`
}

// EventsConfig enables NATS fan-out when a URL is set.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" json:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// SchedulerConfig enables the pickup sweeper when a schedule is set.
type SchedulerConfig struct {
	Schedule  string `yaml:"schedule" json:"schedule"` // cron spec, e.g. "@every 1m"
	AgentID   string `yaml:"agent_id" json:"agent_id"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(2 * time.Minute),
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver:      "file",
			TicketsFile: "data/tickets.json",
			AgentsFile:  "data/support-agents.json",
			SQLitePath:  "data/caredesk.db",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Desk: DeskConfig{
			MaxTurns:    10,
			RunTimeout:  Duration(90 * time.Second),
			MemoryLimit: 20,
			RecallLimit: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Issuer:   "caredesk",
			TokenTTL: Duration(24 * time.Hour),
		},
		Lock: LockConfig{
			Driver: "local",
			TTL:    Duration(2 * time.Minute),
		},
		Events: EventsConfig{
			SubjectPrefix: "caredesk.tickets",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "caredesk",
			Insecure:    true,
			SampleRatio: 1,
		},
		Scheduler: SchedulerConfig{
			BatchSize: 10,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults plus overrides. Files ending in .json or
// .jsonc are parsed as JSON with comments, anything else as YAML. ${VAR}
// references are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(expanded), cfg)
	default:
		return yaml.Unmarshal(expanded, cfg)
	}
}

// applyEnv overlays well known environment variables.
func (c *Config) applyEnv() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Server.Addr, "CAREDESK_ADDR")
	setString(&c.Logging.Level, "CAREDESK_LOG_LEVEL")
	setString(&c.Storage.Driver, "CAREDESK_STORAGE")
	setString(&c.LLM.Provider, "CAREDESK_LLM_PROVIDER")
	setString(&c.LLM.Model, "CAREDESK_LLM_MODEL")
	setString(&c.Auth.JWTSecret, "CAREDESK_JWT_SECRET")
	setString(&c.Lock.RedisURL, "CAREDESK_REDIS_URL")
	setString(&c.Events.NATSURL, "CAREDESK_NATS_URL")
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			setString(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
		default:
			setString(&c.LLM.APIKey, "OPENAI_API_KEY")
		}
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be file or sqlite, got %q", c.Storage.Driver))
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider))
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisURL == "" {
			errs = append(errs, errors.New("lock.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.driver must be local or redis, got %q", c.Lock.Driver))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if c.Desk.MaxTurns <= 0 {
		errs = append(errs, errors.New("desk.max_turns must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}
