package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// FileName is the optional per-repository config file.
	FileName = ".commitguard.yaml"

	// EnvPrefix prefixes every commitguard environment override.
	EnvPrefix = "COMMITGUARD_"

	// ModeEnv is the run-mode variable shared with the shell hook.
	ModeEnv = "SECURITY_HOOK_MODE"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration for the repository rooted at repoRoot.
//
// Configuration precedence (highest to lowest):
//  1. SECURITY_HOOK_MODE (mode only)
//  2. COMMITGUARD_* environment variables
//  3. .commitguard.yaml in repoRoot
//  4. NewDefaultConfig
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	COMMITGUARD_SCAN_MAX_FILE_SIZE -> scan.max_file_size
//	COMMITGUARD_GITLEAKS_ENABLED   -> gitleaks.enabled
//	COMMITGUARD_MODE               -> mode
func Load(repoRoot string) (*Config, error) {
	return LoadWithFile(filepath.Join(repoRoot, FileName))
}

// LoadWithFile is Load with an explicit YAML path. A missing file is not an error.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// An empty SECURITY_HOOK_MODE counts as unset.
	if err := k.Load(env.ProviderWithValue(ModeEnv, ".", func(key, value string) (string, interface{}) {
		if key != ModeEnv || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return "mode", value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ModeEnv, err)
	}

	// Unmarshal over defaults so absent keys keep their default values.
	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps COMMITGUARD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate using the opened descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks the file is a regular file of sane size.
func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file: %s", info.Name())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
