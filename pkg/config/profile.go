package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML configuration file. Every field is a
// pointer so that absent keys are distinguishable from zero values; a
// profile only fills settings the environment left unset.
type Profile struct {
	BaseURL            *string  `yaml:"base_url"`
	TimeoutSeconds     *int     `yaml:"timeout_seconds"`
	CacheTTLSeconds    *int     `yaml:"cache_ttl_seconds"`
	MaxConcurrent      *int     `yaml:"max_concurrent_requests"`
	RateInitial        *float64 `yaml:"rate_limit_initial"`
	RateMin            *float64 `yaml:"rate_limit_min"`
	RateMax            *float64 `yaml:"rate_limit_max"`
	RateBurst          *int     `yaml:"rate_limit_burst"`
	Anonymize          *bool    `yaml:"anonymize"`
	AnonymizationDebug *bool    `yaml:"anonymization_debug"`
	AuditAccess        *bool    `yaml:"audit_access_events"`
	AuditExecute       *bool    `yaml:"audit_execution_events"`
	AuditDir           *string  `yaml:"audit_log_dir"`
	LogAPIRequests     *bool    `yaml:"log_api_requests"`
	LogLevel           *string  `yaml:"log_level"`
	Institution        *string  `yaml:"institution"`
	Timezone           *string  `yaml:"timezone"`
	Release            *string  `yaml:"canvas_release"`
	OTLPEndpoint       *string  `yaml:"otlp_endpoint"`
	HTTPAddr           *string  `yaml:"http_addr"`
}

// LoadProfile reads and parses a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return &p, nil
}

// applyTo fills cfg fields still at their environment-absent state.
// The token is deliberately not a profile key: credentials stay out of
// config files.
func (p *Profile) applyTo(cfg *Config) {
	if cfg.BaseURL == "" && p.BaseURL != nil {
		cfg.BaseURL = *p.BaseURL
	}
	if os.Getenv("API_TIMEOUT") == "" && p.TimeoutSeconds != nil {
		cfg.Timeout = seconds(*p.TimeoutSeconds)
	}
	if os.Getenv("CACHE_TTL") == "" && p.CacheTTLSeconds != nil {
		cfg.CacheTTL = seconds(*p.CacheTTLSeconds)
	}
	if os.Getenv("MAX_CONCURRENT_REQUESTS") == "" && p.MaxConcurrent != nil {
		cfg.MaxConcurrent = *p.MaxConcurrent
	}
	if os.Getenv("RATE_LIMIT_INITIAL") == "" && p.RateInitial != nil {
		cfg.RateInitial = *p.RateInitial
	}
	if os.Getenv("RATE_LIMIT_MIN") == "" && p.RateMin != nil {
		cfg.RateMin = *p.RateMin
	}
	if os.Getenv("RATE_LIMIT_MAX") == "" && p.RateMax != nil {
		cfg.RateMax = *p.RateMax
	}
	if os.Getenv("RATE_LIMIT_BURST") == "" && p.RateBurst != nil {
		cfg.RateBurst = *p.RateBurst
	}
	if os.Getenv("ENABLE_DATA_ANONYMIZATION") == "" && p.Anonymize != nil {
		cfg.Anonymize = *p.Anonymize
	}
	if os.Getenv("ANONYMIZATION_DEBUG") == "" && p.AnonymizationDebug != nil {
		cfg.AnonymizationDebug = *p.AnonymizationDebug
	}
	if os.Getenv("LOG_ACCESS_EVENTS") == "" && p.AuditAccess != nil {
		cfg.AuditAccess = *p.AuditAccess
	}
	if os.Getenv("LOG_EXECUTION_EVENTS") == "" && p.AuditExecute != nil {
		cfg.AuditExecute = *p.AuditExecute
	}
	if cfg.AuditDir == "" && p.AuditDir != nil {
		cfg.AuditDir = *p.AuditDir
	}
	if os.Getenv("LOG_API_REQUESTS") == "" && p.LogAPIRequests != nil {
		cfg.LogAPIRequests = *p.LogAPIRequests
	}
	if cfg.LogLevel == "" && p.LogLevel != nil {
		cfg.LogLevel = *p.LogLevel
	}
	if cfg.Institution == "" && p.Institution != nil {
		cfg.Institution = *p.Institution
	}
	if cfg.Timezone == "" && p.Timezone != nil {
		cfg.Timezone = *p.Timezone
	}
	if cfg.Release == "" && p.Release != nil {
		cfg.Release = *p.Release
	}
	if cfg.OTLPEndpoint == "" && p.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *p.OTLPEndpoint
	}
	if cfg.HTTPAddr == "" && p.HTTPAddr != nil {
		cfg.HTTPAddr = *p.HTTPAddr
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
