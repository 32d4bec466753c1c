package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// fileConfig represents ~/.config/causalgen/config.yaml. Fields are pointers
// so "not set" is distinguishable from zero values.
type fileConfig struct {
	OutputLen   *int64   `yaml:"output_len"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`

	ModelConfig string `yaml:"model_config"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "causalgen", "config.yaml")
}

// loadFileConfig reads the config file. Returns a zero config when the file
// is missing or unreadable.
func loadFileConfig() fileConfig {
	path := configPath()
	if path == "" {
		return fileConfig{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}
	}
	return cfg
}

// applyGenerateConfig applies config file defaults to generate command
// variables when the corresponding CLI flag was not explicitly set.
func applyGenerateConfig(c *cli.Command, cfg fileConfig,
	outputLen *int64, temp *float64, topK *int64, topP *float64,
) {
	applyCommonConfig(c, cfg)
	if cfg.OutputLen != nil && !c.IsSet("output-len") && !c.IsSet("n") {
		*outputLen = *cfg.OutputLen
	}
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") && !c.IsSet("t") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.TopP
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg fileConfig, addr *string, rateLimit *float64) {
	applyCommonConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
}

func applyCommonConfig(c *cli.Command, cfg fileConfig) {
	if cfg.ModelConfig != "" && !c.IsSet("model-config") {
		modelConfig = cfg.ModelConfig
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
