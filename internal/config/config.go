// Package config provides configuration loading for commitguard.
//
// Configuration is layered: built-in defaults, an optional .commitguard.yaml
// at the repository root, then environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run modes accepted in Config.Mode.
const (
	ModeStrict     = "strict"
	ModeBalanced   = "balanced"
	ModePermissive = "permissive"
)

// DefaultMaxFileSize is the per-file ceiling above which content is not scanned.
const DefaultMaxFileSize = 1024 * 1024

// ErrInvalidMode indicates an unrecognized run mode.
var ErrInvalidMode = errors.New("invalid run mode")

// Config holds the complete commitguard configuration.
type Config struct {
	Mode      string          `koanf:"mode"`
	Scan      ScanConfig      `koanf:"scan"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Threat    ThreatConfig    `koanf:"threat"`
	Audit     AuditConfig     `koanf:"audit"`
	Gitleaks  GitleaksConfig  `koanf:"gitleaks"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ScanConfig controls file selection and line-level scanning.
type ScanConfig struct {
	MaxFileSize   int64    `koanf:"max_file_size"`
	IgnoreFile    string   `koanf:"ignore_file"`
	ExtraIgnore   []string `koanf:"extra_ignore"`
	BypassMarkers []string `koanf:"bypass_markers"`
}

// CatalogConfig locates the pattern files, relative to the repository root.
type CatalogConfig struct {
	SecretPatterns    string `koanf:"secret_patterns"`
	InjectionPatterns string `koanf:"injection_patterns"`
	PIIPatterns       string `koanf:"pii_patterns"`
	BuiltinSignatures bool   `koanf:"builtin_signatures"`
}

// ThreatConfig controls the AI protection checks.
type ThreatConfig struct {
	PolicyFile       string   `koanf:"policy_file"`
	IgnorePolicyFile string   `koanf:"ignore_policy_file"`
	AILogFiles       []string `koanf:"ai_log_files"`
}

// AuditConfig locates the audit trail.
type AuditConfig struct {
	Path string `koanf:"path"`
}

// GitleaksConfig enables the optional gitleaks deep scan.
type GitleaksConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// LoggingConfig is the user-facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the user-facing subset of telemetry.Config.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	SampleRate      float64  `koanf:"sample_rate"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// NewDefaultConfig returns the configuration used when nothing is overridden.
func NewDefaultConfig() *Config {
	return &Config{
		Mode: ModeBalanced,
		Scan: ScanConfig{
			MaxFileSize:   DefaultMaxFileSize,
			IgnoreFile:    ".securityignore",
			BypassMarkers: []string{"secure-ignore", "security:ignore", "nosecret"},
		},
		Catalog: CatalogConfig{
			SecretPatterns:    ".ai/secret-patterns.json",
			InjectionPatterns: ".ai/prompt-injection-patterns.json",
			PIIPatterns:       ".ai/pii-patterns.json",
			BuiltinSignatures: true,
		},
		Threat: ThreatConfig{
			PolicyFile:       ".ai/ai-protection-policy.json",
			IgnorePolicyFile: ".gitignore",
			AILogFiles:       []string{".ai/token-limits.json", ".ai/audit-trail.log"},
		},
		Audit: AuditConfig{
			Path: ".ai/audit-trail.log",
		},
		Gitleaks: GitleaksConfig{
			AllowlistFile: ".gitleaks.toml",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			SampleRate:      1.0,
			ShutdownTimeout: Duration(3 * time.Second),
		},
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStrict, ModeBalanced, ModePermissive:
	default:
		return fmt.Errorf("%w: %q (expected strict, balanced or permissive)", ErrInvalidMode, c.Mode)
	}

	if c.Scan.MaxFileSize <= 0 {
		return fmt.Errorf("scan.max_file_size must be positive, got %d", c.Scan.MaxFileSize)
	}

	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
		}
	}

	return nil
}

// normalize lower-cases enumerated values so env overrides are case-insensitive.
func (c *Config) normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeBalanced
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}
