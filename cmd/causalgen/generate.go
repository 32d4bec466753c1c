package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/causalgen/causalgen/internal/toy"
	"github.com/causalgen/causalgen/pkg/decode"
)

func generateCmd() *cli.Command {
	var (
		outputLen int64
		temp      float64
		topK      int64
		topP      float64
		fullCache bool
	)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate continuations for token-id prompts",
		ArgsUsage: "PROMPT [PROMPT...]  (comma-separated token ids, e.g. 5,6,7)",
		Flags: append(append(modelFlags(), loggingFlags()...),
			&cli.Int64Flag{
				Name:        "output-len",
				Aliases:     []string{"n"},
				Usage:       "continuation tokens per prompt",
				Value:       16,
				Destination: &outputLen,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       0,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k shortlist size",
				Value:       40,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus cutoff",
				Value:       0.95,
				Destination: &topP,
			},
			&cli.BoolFlag{
				Name:        "full-cache",
				Usage:       "size the KV cache to the whole working width",
				Destination: &fullCache,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := setupLogger()

			fileCfg := loadFileConfig()
			applyGenerateConfig(cmd, fileCfg, &outputLen, &temp, &topK, &topP)

			cfg, err := engineConfig(cmd)
			if err != nil {
				return err
			}

			prompts, err := parsePrompts(cmd.Args().Slice())
			if err != nil {
				return err
			}

			dec, err := toy.New(cfg.Spec(), cfg.Seed)
			if err != nil {
				return err
			}

			opts := decode.DefaultOptions()
			opts.OutputLen = int(outputLen)
			opts.Temperature = temp
			opts.TopK = int(topK)
			opts.TopP = topP
			opts.Seed = cfg.Seed
			opts.SOS = cfg.SOSTokenID
			opts.EOS = cfg.EOSTokenID
			opts.Pad = cfg.PadTokenID
			opts.FullCache = fullCache
			opts.Logger = log

			out, stats, err := decode.Generate(ctx, dec, dec, prompts, opts)
			if err != nil {
				return err
			}

			for i, cont := range out {
				fmt.Printf("%d: %s\n", i, formatTokens(cont))
			}
			log.Info("done",
				"steps", stats.Steps,
				"tokens", stats.TokensGenerated,
				"duration", stats.Duration,
				"tps", fmt.Sprintf("%.1f", stats.TPS),
			)
			return nil
		},
	}
}

// parsePrompts turns CLI arguments into token id sequences. Each argument
// is one prompt: comma-separated non-negative integers.
func parsePrompts(args []string) ([][]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no prompts given, expected comma-separated token ids")
	}
	prompts := make([][]int, 0, len(args))
	for _, arg := range args {
		var ids []int
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q in prompt %q", part, arg)
			}
			if id < 0 {
				return nil, fmt.Errorf("negative token id %d in prompt %q", id, arg)
			}
			ids = append(ids, id)
		}
		prompts = append(prompts, ids)
	}
	return prompts, nil
}

func formatTokens(ids []int) string {
	if len(ids) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}
