// Package config loads the gambit TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/gambit/internal/engine"
	"github.com/loykin/gambit/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. GAMBIT_MATCH_MAX_PLIES.
const EnvPrefix = "GAMBIT"

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Log     logger.Config  `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	History HistoryConfig  `mapstructure:"history"`
	Server  ServerConfig   `mapstructure:"server"`
	Match   MatchConfig    `mapstructure:"match"`
	Engines []EngineConfig `mapstructure:"engines"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type HistoryConfig struct {
	// DSN selects the sink: sqlite://, postgres://, clickhouse:// or
	// opensearch:// (http(s) URL with the index as path). Empty disables it.
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"` // empty disables the HTTP server
	BasePath string `mapstructure:"base_path"`
}

type MatchConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxPlies          int           `mapstructure:"max_plies"`
	IgnoreUserSignals bool          `mapstructure:"ignore_user_signals"`
}

type EngineConfig struct {
	Name    string `mapstructure:"name"`
	WorkDir string `mapstructure:"workdir"`
	Path    string `mapstructure:"path"`
	// Bundled resolves the engine under <appdir>/engine/<name>/ and
	// ignores WorkDir and Path.
	Bundled    bool `mapstructure:"bundled"`
	Ponder     bool `mapstructure:"ponder"`
	Depth      int  `mapstructure:"depth"`
	SearchTime *int `mapstructure:"search_time"` // seconds; default engine.DefaultSearchTime
}

// Load reads the TOML file at path. Environment variables prefixed with
// GAMBIT_ override scalar settings.
func Load(path string) (*FileConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, engine.NewGeneralError("read config %s: %v", path, err)
	}
	return decode(v)
}

// Default returns the configuration used when no file is given.
func Default() (*FileConfig, error) { return decode(newViper()) }

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.dir", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.sample_interval", 5*time.Second)
	v.SetDefault("history.dsn", "")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("match.poll_interval", 20*time.Millisecond)
	v.SetDefault("match.max_plies", 300)
	v.SetDefault("match.ignore_user_signals", false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*FileConfig, error) {
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, engine.NewGeneralError("decode config: %v", err)
	}
	return &fc, nil
}

// Validate checks the configuration for values the engines would reject.
func (c *FileConfig) Validate() error {
	if c.Match.PollInterval <= 0 {
		return engine.NewGeneralError("match.poll_interval must be positive")
	}
	if c.Match.MaxPlies < 0 {
		return engine.NewGeneralError("match.max_plies must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.SampleInterval <= 0 {
		return engine.NewGeneralError("metrics.sample_interval must be positive")
	}
	seen := make(map[string]bool, len(c.Engines))
	for i, e := range c.Engines {
		if err := e.Validate(); err != nil {
			return engine.NewGeneralError("engines[%d]: %v", i, err)
		}
		if seen[e.Name] {
			return engine.NewGeneralError("engines[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

func (e EngineConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	// The name becomes part of the engine's stderr log file name.
	if strings.ContainsAny(e.Name, `/\`) || strings.Contains(e.Name, "..") {
		return fmt.Errorf("engine %q: name must not contain path separators or \"..\"", e.Name)
	}
	if !e.Bundled && e.Path == "" {
		return fmt.Errorf("engine %q: path is required unless bundled", e.Name)
	}
	if e.Depth < 0 {
		return fmt.Errorf("engine %q: depth must not be negative", e.Name)
	}
	if e.SearchTime != nil {
		if *e.SearchTime < 0 {
			return fmt.Errorf("engine %q: search_time must not be negative", e.Name)
		}
		if *e.SearchTime == engine.SearchTimeUnlimited {
			return fmt.Errorf("engine %q: unlimited search time is not supported", e.Name)
		}
	}
	return nil
}

// Engine returns the named engine, or false.
func (c *FileConfig) Engine(name string) (EngineConfig, bool) {
	for _, e := range c.Engines {
		if e.Name == name {
			return e, true
		}
	}
	return EngineConfig{}, false
}

// Options converts the entry into engine options. appDir is used for
// bundled engines.
func (e EngineConfig) Options(appDir string) []engine.Option {
	workDir, path := e.WorkDir, e.Path
	if e.Bundled {
		workDir, path = engine.BundledPaths(appDir, e.Name)
	}
	opts := []engine.Option{
		engine.WithName(e.Name),
		engine.WithWorkDir(workDir),
		engine.WithPath(path),
		engine.WithPondering(e.Ponder),
		engine.WithSearchDepth(e.Depth),
	}
	if e.SearchTime != nil {
		opts = append(opts, engine.WithSearchTime(*e.SearchTime))
	}
	return opts
}
