package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces indexd environment variables.
const envPrefix = "INDEXD_"

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (INDEXD_QDRANT_HOST, INDEXD_SEARCH_CACHE_TTL, ...)
//  2. YAML config file (path passed in, skipped when empty or missing)
//  3. Defaults from NewDefaultConfig
//
// Environment variables map to config keys by stripping the INDEXD_ prefix,
// lowercasing, and splitting on the first underscore:
//
//	INDEXD_SERVER_PORT         -> server.port
//	INDEXD_POSTGRES_DSN        -> postgres.dsn
//	INDEXD_SEARCH_CACHE_TTL    -> search.cache_ttl
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; defaults plus env apply.
		case err != nil:
			return nil, fmt.Errorf("stat config file: %w", err)
		case info.Size() > maxConfigFileSize:
			return nil, fmt.Errorf("%w: config file %s exceeds %d bytes", ErrInvalidConfig, configPath, maxConfigFileSize)
		default:
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// transformEnvKey maps INDEXD_SECTION_FIELD_NAME to section.field_name.
// The section is the first underscore-delimited token; underscores are
// preserved inside field names.
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
