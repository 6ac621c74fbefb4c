// Package config loads the process-wide server configuration from the
// environment, with an optional YAML profile underneath. The resulting
// Config is immutable after Load.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMissingToken is returned when CANVAS_API_TOKEN is absent. Startup
// cannot proceed without it.
var ErrMissingToken = errors.New("CANVAS_API_TOKEN is not set")

// Config holds server configuration. Shared and read-only after Load.
type Config struct {
	// Canvas connection.
	APIToken string
	BaseURL  string
	Timeout  time.Duration

	// Adaptive rate limiter (requests per second).
	RateInitial float64
	RateMin     float64
	RateMax     float64
	RateBurst   int

	// Course cache staleness bound.
	CacheTTL time.Duration

	// Bulk operation fan-out bound.
	MaxConcurrent int

	// Privacy.
	Anonymize          bool
	AnonymizationDebug bool

	// Audit.
	AuditAccess  bool
	AuditExecute bool
	AuditDir     string

	// Logging.
	LogAPIRequests bool
	LogLevel       string

	// Deployment metadata.
	Institution string
	Timezone    string

	// Pinned Canvas release for feature gating; empty means current.
	Release string

	// Optional surfaces.
	OTLPEndpoint string
	HTTPAddr     string
}

// Load reads configuration from environment variables. An optional YAML
// profile named by CANVAS_MCP_CONFIG fills fields the environment leaves
// unset; environment values always win.
func Load() (*Config, error) {
	return LoadWithProfile(os.Getenv("CANVAS_MCP_CONFIG"))
}

// LoadWithProfile is Load with an explicit profile path (empty to skip).
func LoadWithProfile(profilePath string) (*Config, error) {
	cfg := &Config{
		APIToken:           os.Getenv("CANVAS_API_TOKEN"),
		BaseURL:            strings.TrimRight(os.Getenv("CANVAS_API_URL"), "/"),
		Timeout:            envSeconds("API_TIMEOUT", 30),
		CacheTTL:           envSeconds("CACHE_TTL", 300),
		MaxConcurrent:      envInt("MAX_CONCURRENT_REQUESTS", 10),
		RateInitial:        envFloat("RATE_LIMIT_INITIAL", 5),
		RateMin:            envFloat("RATE_LIMIT_MIN", 0.5),
		RateMax:            envFloat("RATE_LIMIT_MAX", 10),
		RateBurst:          envInt("RATE_LIMIT_BURST", 10),
		Anonymize:          envBool("ENABLE_DATA_ANONYMIZATION", true),
		AnonymizationDebug: envBool("ANONYMIZATION_DEBUG", false),
		AuditAccess:        envBool("LOG_ACCESS_EVENTS", false),
		AuditExecute:       envBool("LOG_EXECUTION_EVENTS", false),
		AuditDir:           os.Getenv("AUDIT_LOG_DIR"),
		LogAPIRequests:     envBool("LOG_API_REQUESTS", false),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Institution:        os.Getenv("INSTITUTION_NAME"),
		Timezone:           os.Getenv("TIMEZONE"),
		Release:            os.Getenv("CANVAS_RELEASE"),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
		HTTPAddr:           os.Getenv("MCP_HTTP_ADDR"),
	}

	if profilePath != "" {
		profile, err := LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		profile.applyTo(cfg)
	}

	if cfg.APIToken == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("CANVAS_API_URL is not set")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/api/v1") {
		slog.Warn("canvas base URL does not end in /api/v1; requests may fail",
			"base_url", cfg.BaseURL)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = defaultAuditDir()
	}
	if cfg.RateMin <= 0 {
		cfg.RateMin = 0.5
	}
	if cfg.RateMax < cfg.RateInitial {
		cfg.RateMax = cfg.RateInitial
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	return cfg, nil
}

// Redacted returns a copy safe for logging: the bearer token is masked
// down to its last four characters.
func (c *Config) Redacted() Config {
	out := *c
	if n := len(out.APIToken); n > 4 {
		out.APIToken = "****" + out.APIToken[n-4:]
	} else if n > 0 {
		out.APIToken = "****"
	}
	return out
}

// SlogLevel maps the configured LOG_LEVEL onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultAuditDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvas-mcp"
	}
	return filepath.Join(home, ".canvas-mcp")
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			"key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid float in environment, using default",
			"key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	default:
		slog.Warn("invalid boolean in environment, using default",
			"key", key, "value", raw, "default", def)
		return def
	}
}

// String implements fmt.Stringer with the token redacted so a Config can
// never leak credentials through casual logging.
func (c *Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("Config{base_url=%s token=%s timeout=%s anonymize=%t}",
		r.BaseURL, r.APIToken, r.Timeout, r.Anonymize)
}
