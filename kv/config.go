package kv

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sushant-115/dwaldb/core/pager"
	"github.com/sushant-115/dwaldb/pkg/logger"
)

// Config configures a Store, loaded from a YAML file alongside the rest of
// this engine's ambient configuration (spec.md §6 "Configuration").
type Config struct {
	Path  string        `yaml:"path"`
	Pager pager.Config  `yaml:"pager"`
	Log   logger.Config `yaml:"log"`
}

// DefaultConfig returns sane defaults for a fresh store at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, Pager: pager.DefaultConfig()}
}

// BuildLogger constructs the zap.Logger described by c.Log. Open calls
// this automatically when no logger is passed in explicitly.
func (c Config) BuildLogger() (*zap.Logger, error) {
	return logger.New(c.Log)
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withLogger(log *zap.Logger) Config {
	c.Pager.Logger = log
	return c
}
