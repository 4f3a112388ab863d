// Package config loads repository-wide configuration from a YAML file
// or environment variables and converts it into the per-component
// config types.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"querycost/pkg/cost/memory"
	"querycost/pkg/engine"
	"querycost/pkg/logging"
)

// Config stores all configuration of the application. The values are
// read by viper from a config file or environment variables
// (ENGINE_DEFAULT_MODEL, LOGGING_LEVEL, ...).
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
}

// EngineConfig stores engine-level knobs.
type EngineConfig struct {
	DefaultModel     string  `mapstructure:"default_model"`
	AdaptiveLearning bool    `mapstructure:"adaptive_learning"`
	LearningRate     float64 `mapstructure:"learning_rate"`
	AnomalyThreshold float64 `mapstructure:"anomaly_threshold"`
	HistorySize      int     `mapstructure:"history_size"`
}

// MemoryConfig stores the memory model's host description.
type MemoryConfig struct {
	RowSize         int64 `mapstructure:"row_size"`
	AvailableMemory int64 `mapstructure:"available_memory"`
	TotalMemory     int64 `mapstructure:"total_memory"`
	HistorySize     int   `mapstructure:"history_size"`
}

// LoggingConfig stores logger settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// FeedbackConfig stores the persistent feedback store settings.
type FeedbackConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Keep    int    `mapstructure:"keep"`
}

// Load reads configuration from the given file, or from ./config.yaml
// and environment variables when path is empty. A missing default file
// is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("engine.default_model", "statistical")
	v.SetDefault("engine.adaptive_learning", true)
	v.SetDefault("engine.learning_rate", 0.1)
	v.SetDefault("engine.anomaly_threshold", 2.0)
	v.SetDefault("engine.history_size", engine.DefaultHistorySize)

	v.SetDefault("memory.row_size", memory.DefaultRowSize)
	v.SetDefault("memory.available_memory", memory.DefaultAvailableMemory)
	v.SetDefault("memory.total_memory", memory.DefaultTotalMemory)
	v.SetDefault("memory.history_size", memory.DefaultHistorySize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "")

	v.SetDefault("feedback.enabled", false)
	v.SetDefault("feedback.path", "querycost.db")
	v.SetDefault("feedback.keep", 1000)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file found; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// EngineConfig converts the loaded values into an engine configuration.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		DefaultModel:     c.Engine.DefaultModel,
		AdaptiveLearning: c.Engine.AdaptiveLearning,
		LearningRate:     c.Engine.LearningRate,
		AnomalyThreshold: c.Engine.AnomalyThreshold,
		HistorySize:      c.Engine.HistorySize,
	}
}

// MemoryModelConfig converts the loaded values into a memory model
// configuration on top of the model's defaults.
func (c *Config) MemoryModelConfig() memory.Config {
	mc := memory.DefaultConfig()
	if c.Memory.RowSize > 0 {
		mc.RowSize = c.Memory.RowSize
	}
	if c.Memory.AvailableMemory > 0 {
		mc.AvailableMemory = c.Memory.AvailableMemory
	}
	if c.Memory.TotalMemory > 0 {
		mc.TotalMemory = c.Memory.TotalMemory
	}
	if c.Memory.HistorySize > 0 {
		mc.HistorySize = c.Memory.HistorySize
	}
	return mc
}

// LoggingConfig converts the loaded values into a logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      logging.LogLevel(strings.ToUpper(c.Logging.Level)),
		OutputPath: c.Logging.OutputPath,
		Format:     c.Logging.Format,
	}
}
