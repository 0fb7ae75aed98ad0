// Package config loads the wiki's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	// DataDir is where the embedded engine keeps its files.
	DataDir string `yaml:"dataDir"`
	// MinimumFreeGB refuses startup on a nearly-full disk.
	MinimumFreeGB int `yaml:"minimumFreeGB"`
	// GCIntervalMinutes is how often the engine compacts its value log.
	// Zero disables the background compaction.
	GCIntervalMinutes int `yaml:"gcIntervalMinutes"`
	// LogLevel is a logrus level name, e.g. "info" or "debug".
	LogLevel string `yaml:"logLevel"`
	// PostgresDSN switches the article store to the relational backend
	// when set. Users, sessions and settings stay in the embedded engine.
	PostgresDSN string `yaml:"postgresDSN"`
}

func Default() Config {
	return Config{
		DataDir:           "data",
		MinimumFreeGB:     1,
		GCIntervalMinutes: 15,
		LogLevel:          "info",
	}
}

// Load reads path and fills in defaults for anything left unset. A missing
// file is not an error; the defaults stand alone.
func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	// GCIntervalMinutes is not defaulted here: Load unmarshals over
	// Default(), so an absent key already carries the default and an
	// explicit zero means "compaction off".
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

func (c Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMinutes) * time.Minute
}

func (c Config) Validate() error {
	if c.MinimumFreeGB < 0 {
		return fmt.Errorf("minimumFreeGB must not be negative")
	}
	if c.GCIntervalMinutes < 0 {
		return fmt.Errorf("gcIntervalMinutes must not be negative")
	}
	return nil
}
