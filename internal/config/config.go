// Package config loads the console's YAML configuration and applies
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen             = ":8088"
	DefaultDataDir            = "data"
	DefaultAPIBase            = "http://localhost:8081/api"
	DefaultMetricsBase        = "http://localhost:9080"
	DefaultBasicLoginURL      = "http://localhost:8081/api/auth/login"
	DefaultFormLoginURL       = "http://localhost:9080/login"
	DefaultMetricsInterval    = 5 * time.Second
	DefaultRoutesInterval     = 30 * time.Second
	DefaultPageSize           = 5
	DefaultPrimaryAdmin       = "admin"
	DefaultRequestsPerMinute  = 100
	DefaultRateBurst          = 10
	DefaultSessionTTL         = 24 * time.Hour
	DefaultTelemetryInterval  = 5 * time.Second
	DefaultNavHighlightWindow = 10 * time.Second
)

// Environment overrides. Booleans parse with strconv.ParseBool.
const (
	EnvListen      = "GWCONSOLE_LISTEN"
	EnvDataDir     = "GWCONSOLE_DATA_DIR"
	EnvAPIBase     = "GWCONSOLE_API_BASE"
	EnvMetricsBase = "GWCONSOLE_METRICS_BASE"
	EnvJWTSecret   = "GWCONSOLE_JWT_SECRET"
	EnvUseTLS      = "GWCONSOLE_USE_TLS"
	EnvTLSCert     = "GWCONSOLE_TLS_CERT"
	EnvTLSKey      = "GWCONSOLE_TLS_KEY"
)

// Config is the console configuration file.
type Config struct {
	Listen    string          `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	JWTSecret string          `yaml:"jwt_secret"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Polling   PollingConfig   `yaml:"polling"`
	Console   ConsoleConfig   `yaml:"console"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	TLS       TLSConfig       `yaml:"tls"`
}

// GatewayConfig locates the upstream admin API, the traffic counter host and
// the two login endpoints.
type GatewayConfig struct {
	APIBase       string `yaml:"api_base"`
	MetricsBase   string `yaml:"metrics_base"`
	BasicLoginURL string `yaml:"basic_login_url"`
	FormLoginURL  string `yaml:"form_login_url"`
}

// PollingConfig holds the refresh intervals used while a view is mounted.
type PollingConfig struct {
	MetricsInterval   time.Duration `yaml:"metrics_interval"`
	RoutesInterval    time.Duration `yaml:"routes_interval"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}

// ConsoleConfig holds view behavior.
type ConsoleConfig struct {
	PageSize     int           `yaml:"page_size"`
	PrimaryAdmin string        `yaml:"primary_admin"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

// RateLimitConfig is the per-IP limit applied to the console's own API.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// TLSConfig enables HTTPS for the console listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file, then applies environment
// overrides and defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return Config{}, err
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	for name, raw := range map[string]string{
		"gateway.api_base":        cfg.Gateway.APIBase,
		"gateway.metrics_base":    cfg.Gateway.MetricsBase,
		"gateway.basic_login_url": cfg.Gateway.BasicLoginURL,
		"gateway.form_login_url":  cfg.Gateway.FormLoginURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.Polling.MetricsInterval < time.Second {
		return fmt.Errorf("polling.metrics_interval must be at least 1s")
	}
	if cfg.Polling.RoutesInterval < time.Second {
		return fmt.Errorf("polling.routes_interval must be at least 1s")
	}
	if cfg.TLS.Enabled && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return fmt.Errorf("tls.enabled requires tls.cert and tls.key")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Gateway.APIBase == "" {
		cfg.Gateway.APIBase = DefaultAPIBase
	}
	if cfg.Gateway.MetricsBase == "" {
		cfg.Gateway.MetricsBase = DefaultMetricsBase
	}
	if cfg.Gateway.BasicLoginURL == "" {
		cfg.Gateway.BasicLoginURL = DefaultBasicLoginURL
	}
	if cfg.Gateway.FormLoginURL == "" {
		cfg.Gateway.FormLoginURL = DefaultFormLoginURL
	}
	cfg.Gateway.APIBase = strings.TrimRight(cfg.Gateway.APIBase, "/")
	cfg.Gateway.MetricsBase = strings.TrimRight(cfg.Gateway.MetricsBase, "/")
	if cfg.Polling.MetricsInterval == 0 {
		cfg.Polling.MetricsInterval = DefaultMetricsInterval
	}
	if cfg.Polling.RoutesInterval == 0 {
		cfg.Polling.RoutesInterval = DefaultRoutesInterval
	}
	if cfg.Polling.TelemetryInterval == 0 {
		cfg.Polling.TelemetryInterval = DefaultTelemetryInterval
	}
	if cfg.Console.PageSize <= 0 {
		cfg.Console.PageSize = DefaultPageSize
	}
	if cfg.Console.PrimaryAdmin == "" {
		cfg.Console.PrimaryAdmin = DefaultPrimaryAdmin
	}
	if cfg.Console.SessionTTL == 0 {
		cfg.Console.SessionTTL = DefaultSessionTTL
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = DefaultRateBurst
	}
}

// ApplyEnv overlays GWCONSOLE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.Gateway.APIBase = v
	}
	if v := os.Getenv(EnvMetricsBase); v != "" {
		cfg.Gateway.MetricsBase = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if envBool(EnvUseTLS) {
		cfg.TLS.Enabled = true
	}
	if v := os.Getenv(EnvTLSCert); v != "" {
		cfg.TLS.CertPath = v
	}
	if v := os.Getenv(EnvTLSKey); v != "" {
		cfg.TLS.KeyPath = v
	}
}

func envBool(key string) bool {
	val := os.Getenv(key)
	if val == "" {
		return false
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return parsed
}
