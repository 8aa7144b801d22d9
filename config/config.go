package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the driver configuration.
type AppConfig struct {
	Instrument   string `yaml:"instrument"`
	LogLevel     string `yaml:"log_level"`
	RingCapacity int64  `yaml:"ring_capacity"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Instrument: "DEFAULT",
		LogLevel:   "info",
	}
}

// Load loads config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	if len(filePath) == 0 {
		return Default(), nil
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := Default()

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	return cfg, nil
}
