package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no --config flag is given.
const EnvConfigPath = "CRATES_MCP_CONFIG"

type Config struct {
	Server    Server    `yaml:"server" toml:"server"`
	Registry  Registry  `yaml:"registry" toml:"registry"`
	Docs      Docs      `yaml:"docs" toml:"docs"`
	Index     Index     `yaml:"index" toml:"index"`
	RateLimit RateLimit `yaml:"rate_limit" toml:"rate_limit"`
	Storage   Storage   `yaml:"storage" toml:"storage"`
	Telemetry Telemetry `yaml:"telemetry" toml:"telemetry"`
	Log       Log       `yaml:"log" toml:"log"`
}

type Server struct {
	Name       string `yaml:"name" toml:"name"`
	Version    string `yaml:"version" toml:"version"`
	StatusAddr string `yaml:"status_addr" toml:"status_addr"` // empty disables the diagnostics listener
}

type Registry struct {
	BaseURL   string   `yaml:"base_url" toml:"base_url"`
	UserAgent string   `yaml:"user_agent" toml:"user_agent"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"`
}

type Docs struct {
	BaseURL string   `yaml:"base_url" toml:"base_url"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

type Index struct {
	Path            string   `yaml:"path" toml:"path"` // empty means cargo's default location
	URL             string   `yaml:"url" toml:"url"`
	Branch          string   `yaml:"branch" toml:"branch"`
	Disabled        bool     `yaml:"disabled" toml:"disabled"`
	RecoveryBackoff Duration `yaml:"recovery_backoff" toml:"recovery_backoff"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

type Storage struct {
	Path string `yaml:"path" toml:"path"` // empty disables the call journal
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
}

type Log struct {
	Level      string `yaml:"level" toml:"level"`             // debug, info, warn, error
	Filename   string `yaml:"filename" toml:"filename"`       // log file path, empty for stderr only
	MaxSize    int    `yaml:"max_size" toml:"max_size"`       // megabytes
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"` // number of backups
	MaxAge     int    `yaml:"max_age" toml:"max_age"`         // days
	Compress   bool   `yaml:"compress" toml:"compress"`       // compress rotated files
}

// NewLimiter returns an outbound request limiter. A zero rate means unlimited.
func (r RateLimit) NewLimiter() *rate.Limiter {
	if r.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := r.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.RPS), burst)
}

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: Server{
			Name:    "crates-mcp",
			Version: "dev",
		},
		Registry: Registry{
			BaseURL:   "https://crates.io",
			UserAgent: "crates-mcp (https://github.com/ippclub/crates-mcp)",
			Timeout:   Duration{30 * time.Second},
		},
		Docs: Docs{
			BaseURL: "https://docs.rs",
			Timeout: Duration{30 * time.Second},
		},
		Index: Index{
			URL:             "https://github.com/rust-lang/crates.io-index",
			Branch:          "master",
			RecoveryBackoff: Duration{100 * time.Millisecond},
		},
		RateLimit: RateLimit{
			RPS:   1,
			Burst: 1,
		},
		Telemetry: Telemetry{
			ServiceName: "crates-mcp",
		},
		Log: Log{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Load loads the configuration from $CRATES_MCP_CONFIG, or defaults when unset
func Load() (*Config, error) {
	return LoadFromFile(os.Getenv(EnvConfigPath))
}

// LoadFromFile loads the configuration from the specified file on top of the
// defaults. A missing file is not an error.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure storage directory exists
	if err := ensureDirs(cfg.Storage.Path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the clients unusable
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Registry.BaseURL) == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if strings.TrimSpace(c.Docs.BaseURL) == "" {
		return fmt.Errorf("docs.base_url is required")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// ensureDirs creates the storage directory if it doesn't exist
func ensureDirs(basePath string) error {
	if basePath == "" {
		return nil
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}
