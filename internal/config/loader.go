package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands ${VAR} and ${VAR:-default}
// references from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads the process .env files, then the config at path,
// applies defaults, and validates. The .env lookup is ENV_FILE when set,
// otherwise ".env" in the working directory and next to the config file.
func LoadAndValidate(path string) (*Config, error) {
	if err := LoadDotenv(dotenvPaths(path)...); err != nil {
		return nil, err
	}

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadDotenv loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set are never overridden, so earlier files
// win. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err == nil {
			if seen[abs] {
				continue
			}
			seen[abs] = true
		}

		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func dotenvPaths(configPath string) []string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return []string{envFile}
	}
	return []string{".env", filepath.Join(filepath.Dir(configPath), ".env")}
}

// expandEnv substitutes ${VAR} and $VAR with the variable's value, and
// ${VAR:-default} with default when VAR is unset or empty.
func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return def
	})
}
