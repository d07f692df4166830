package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	defaultDir    = ".justact"
	defaultDB     = defaultDir + "/justact.db"
	defaultConfig = defaultDir + "/config.yaml"
)

// config is the resolved CLI configuration. Precedence: flags, then
// environment, then the config file, then defaults.
type config struct {
	DB          string        `yaml:"db"`
	Agent       string        `yaml:"agent"`
	EvalTimeout time.Duration `yaml:"eval_timeout"`
	FactLimit   int           `yaml:"fact_limit"`
	LogLevel    string        `yaml:"log_level"`
}

func defaults() config {
	return config{
		DB:          defaultDB,
		EvalTimeout: 10 * time.Second,
		FactLimit:   100000,
		LogLevel:    "warn",
	}
}

// loadConfig reads the YAML file at path over the defaults. A missing file
// is only an error when the path was given explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig merges the config file, JUSTACT_* variables and flags.
func resolveConfig(f *rootFlags) (config, error) {
	path, explicit := defaultConfig, false
	if v := envOr("JUSTACT_CONFIG", ""); v != "" {
		path, explicit = v, true
	}
	if f.config != "" {
		path, explicit = f.config, true
	}

	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return cfg, err
	}
	cfg.DB = envOr("JUSTACT_DB", cfg.DB)
	cfg.Agent = envOr("JUSTACT_AGENT", cfg.Agent)

	if f.db != "" {
		cfg.DB = f.db
	}
	if f.agent != "" {
		cfg.Agent = f.agent
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// ensureDir creates the directory holding the database.
func (c config) ensureDir() error {
	dir := filepath.Dir(c.DB)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return nil
}

// newLogger builds a production logger at the configured level.
func (c config) newLogger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if lvl == zapcore.DebugLevel {
		zc.Development = true
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
