// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the engine-wide runtime defaults: default loader file
// name, default log level, and default progress-line width. Rebuild-
// relevant Rule semantics never depend on Config; only CLI/runtime
// behavior does.
type Config struct {
	DefaultLoaderFile string `koanf:"loader_file"`
	LogLevel          string `koanf:"log_level"`
	ProgressWidth     int    `koanf:"progress_width"`
}

func defaultConfig() Config {
	return Config{
		DefaultLoaderFile: "rules.so",
		LogLevel:          "warn",
		ProgressWidth:     80,
	}
}

// LoadConfig layers configuration low-to-high precedence: built-in
// defaults, an optional makepy.toml file in projectDir, then
// MAKEPY_*-prefixed environment variables (prefix stripped, lower-cased).
// The caller reads the returned values and lets its own CLI flags
// override them; flags are not loaded into the returned *koanf.Koanf.
func LoadConfig(projectDir string) (Config, *koanf.Koanf, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(confmap.Provider(map[string]any{
		"loader_file":    defaults.DefaultLoaderFile,
		"log_level":      defaults.LogLevel,
		"progress_width": defaults.ProgressWidth,
	}, "."), nil); err != nil {
		return Config{}, nil, err
	}

	tomlPath := filepath.Join(projectDir, "makepy.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		if err := k.Load(file.Provider(tomlPath), toml.Parser()); err != nil {
			return Config{}, nil, err
		}
	}

	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix: "MAKEPY_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "MAKEPY_")), value
		},
	}), nil); err != nil {
		return Config{}, nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, nil, err
	}
	return cfg, k, nil
}
