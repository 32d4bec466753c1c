// Package config holds the engine and decoder configuration shared by the
// CLI and the server, with optional loading from a model config.json.
package config

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/causalgen/causalgen/pkg/decode"
)

// Config describes the decoder shape and the generation defaults. JSON tags
// follow the usual model config.json field names so a model directory's
// config can be pointed at directly.
type Config struct {
	VocabSize   int `json:"vocab_size"`
	HiddenSize  int `json:"hidden_size"`
	NumLayers   int `json:"num_hidden_layers"`
	NumKVHeads  int `json:"num_key_value_heads"`
	HeadDim     int `json:"head_dim"`
	MaxPosition int `json:"max_position_embeddings"`

	SOSTokenID int `json:"bos_token_id"`
	EOSTokenID int `json:"eos_token_id"`
	PadTokenID int `json:"pad_token_id"`

	Seed int64 `json:"seed"`
}

// Option mutates a Config during Load.
type Option func(*Config)

// WithSeed overrides the weight and sampling seed.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithMaxPosition overrides the supported position count.
func WithMaxPosition(n int) Option {
	return func(c *Config) { c.MaxPosition = n }
}

// Default returns a small configuration suitable for the toy decoder.
func Default() Config {
	return Config{
		VocabSize:   256,
		HiddenSize:  64,
		NumLayers:   2,
		NumKVHeads:  4,
		HeadDim:     16,
		MaxPosition: 1024,
		SOSTokenID:  1,
		EOSTokenID:  2,
		PadTokenID:  -1,
		Seed:        42,
	}
}

// Load reads a config.json over the defaults, applies options, and
// validates the result.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read model config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse model config %s: %w", path, err)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Spec converts the configuration into the decoder shape contract.
func (c Config) Spec() decode.Spec {
	return decode.Spec{
		VocabSize:   c.VocabSize,
		HiddenSize:  c.HiddenSize,
		NumLayers:   c.NumLayers,
		NumKVHeads:  c.NumKVHeads,
		HeadDim:     c.HeadDim,
		MaxPosition: c.MaxPosition,
	}
}

// Validate checks the configuration for internally consistent values.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("config: vocab_size must be positive, got %d", c.VocabSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("config: hidden_size must be positive, got %d", c.HiddenSize)
	case c.NumLayers <= 0:
		return fmt.Errorf("config: num_hidden_layers must be positive, got %d", c.NumLayers)
	case c.NumKVHeads <= 0:
		return fmt.Errorf("config: num_key_value_heads must be positive, got %d", c.NumKVHeads)
	case c.HeadDim <= 0:
		return fmt.Errorf("config: head_dim must be positive, got %d", c.HeadDim)
	case c.MaxPosition <= 0:
		return fmt.Errorf("config: max_position_embeddings must be positive, got %d", c.MaxPosition)
	}
	if c.SOSTokenID < 0 || c.SOSTokenID >= c.VocabSize {
		return fmt.Errorf("config: bos_token_id %d outside vocabulary of %d", c.SOSTokenID, c.VocabSize)
	}
	if c.EOSTokenID < 0 || c.EOSTokenID >= c.VocabSize {
		return fmt.Errorf("config: eos_token_id %d outside vocabulary of %d", c.EOSTokenID, c.VocabSize)
	}
	if c.PadTokenID >= 0 && c.PadTokenID < c.VocabSize {
		return fmt.Errorf("config: pad_token_id %d must lie outside the vocabulary", c.PadTokenID)
	}
	return nil
}
