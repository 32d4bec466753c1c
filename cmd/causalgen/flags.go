package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/causalgen/causalgen/internal/config"
	"github.com/causalgen/causalgen/internal/logger"
)

var (
	vocabSize   int64
	hiddenSize  int64
	numLayers   int64
	kvHeads     int64
	headDim     int64
	maxPosition int64
	modelConfig string
	seed        int64
	logLevel    string
	logFormat   string
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-config",
			Aliases:     []string{"c"},
			Usage:       "path to a model config.json",
			Destination: &modelConfig,
		},
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "vocabulary size",
			Value:       256,
			Destination: &vocabSize,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size",
			Value:       64,
			Destination: &hiddenSize,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Usage:       "number of decoder layers",
			Value:       2,
			Destination: &numLayers,
		},
		&cli.Int64Flag{
			Name:        "kv-heads",
			Usage:       "number of key/value heads",
			Value:       4,
			Destination: &kvHeads,
		},
		&cli.Int64Flag{
			Name:        "head-dim",
			Usage:       "dimension per head",
			Value:       16,
			Destination: &headDim,
		},
		&cli.Int64Flag{
			Name:        "max-position",
			Usage:       "number of supported positions",
			Value:       1024,
			Destination: &maxPosition,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "weight and sampling seed",
			Value:       42,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

func setupLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Text(os.Stderr, level)
}

// engineConfig resolves the decoder configuration: defaults, then the model
// config file when given, then explicit flag overrides.
func engineConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if modelConfig != "" {
		loaded, err := config.Load(modelConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if cmd.IsSet("vocab") {
		cfg.VocabSize = int(vocabSize)
	}
	if cmd.IsSet("hidden") {
		cfg.HiddenSize = int(hiddenSize)
	}
	if cmd.IsSet("layers") {
		cfg.NumLayers = int(numLayers)
	}
	if cmd.IsSet("kv-heads") {
		cfg.NumKVHeads = int(kvHeads)
	}
	if cmd.IsSet("head-dim") {
		cfg.HeadDim = int(headDim)
	}
	if cmd.IsSet("max-position") {
		cfg.MaxPosition = int(maxPosition)
	}
	if cmd.IsSet("seed") {
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
