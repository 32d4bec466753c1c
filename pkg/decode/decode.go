// Package decode runs batched autoregressive token generation against a
// causal decoder.
//
// A generation call aligns a batch of variable-length prompts into a shared
// token grid, primes the decoder with the longest common prefix window, then
// steps one position at a time. At every position each example either keeps
// its own prompt token (teacher forcing, while the position is still inside
// that prompt) or takes a freshly sampled token. All examples advance under
// a single shared position cursor; per-example completion is resolved only
// at extraction time, where each continuation is cut at its first
// end-of-sequence token.
package decode

import (
	"context"
	"time"

	"github.com/causalgen/causalgen/pkg/tensor"
)

// Spec describes the static shape of a decoder. The engine sizes its token
// grid, mask, and KV cache from these values before the first decoder call.
//
// MaxPosition is the number of distinct positions the decoder supports; a
// request whose working width exceeds it fails with a ConfigurationError.
type Spec struct {
	VocabSize   int
	HiddenSize  int
	NumLayers   int
	NumKVHeads  int
	HeadDim     int
	MaxPosition int
}

// StepInput carries one decoder invocation's worth of work.
//
// Embeddings is batch-major: row b*T+t holds the embedding for example b at
// the t-th token of this call (T == len(Positions)). Positions lists the
// absolute sequence positions being processed; the prefill call passes a
// range starting at zero, every later call passes a single position. Mask
// has one row per position; Mask[t][j] true means position j must not be
// attended to from Positions[t]. Cache is where the decoder writes this
// call's keys and values and reads the history.
type StepInput struct {
	Embeddings *tensor.Mat
	Batch      int
	Positions  []int
	Mask       [][]bool
	Cache      *KVCache
}

// Decoder is one step of a causal language model. Step returns next-token
// logits with one row per (example, position) pair in batch-major order and
// VocabSize columns.
//
// Implementations must write keys and values for every processed position
// into in.Cache and must honor in.Mask when attending over the cached
// history. Positions wrap into the cache modulo its capacity; see
// KVCache.Slot.
type Decoder interface {
	Spec() Spec
	Step(in StepInput) (*tensor.Mat, error)
}

// Embedder maps token ids to embedding rows. Lookup returns a matrix with
// len(ids) rows and HiddenSize columns, in input order.
type Embedder interface {
	Lookup(ids []int) (*tensor.Mat, error)
}

// Logger is the subset of a structured logger the engine needs. The zero
// value of Options leaves it nil and the engine stays silent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Options controls a generation call.
type Options struct {
	// OutputLen is the number of continuation positions per example.
	// Negative values are rejected.
	OutputLen int

	// Sampling controls, applied uniformly to every example.
	// Temperature <= 0 selects greedy argmax decoding.
	Temperature float64
	TopP        float64
	TopK        int
	Seed        int64

	// Special token ids. SOS is prepended to every example, EOS terminates
	// a continuation at extraction, Pad fills positions past a prompt's end
	// and must lie outside the vocabulary.
	SOS int
	EOS int
	Pad int

	// FullCache sizes the KV cache to the whole working width instead of
	// the prefill window, trading memory for a complete history.
	FullCache bool

	Logger Logger
}

// DefaultOptions returns the options used when callers have no opinion:
// greedy decoding, 64 continuation tokens, and the conventional special ids.
func DefaultOptions() Options {
	return Options{
		OutputLen: 64,
		TopP:      1,
		SOS:       1,
		EOS:       2,
		Pad:       -1,
	}
}

// Stats summarizes a completed generation call. TokensGenerated counts
// tokens produced by sampling; positions replayed from an example's own
// prompt are not included.
type Stats struct {
	Steps           int
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Generate produces one continuation per prompt.
//
// Prompts are slices of token ids without the start token; Generate prepends
// opts.SOS itself. The returned slice has one entry per prompt, each holding
// up to opts.OutputLen tokens and cut before the first opts.EOS.
//
// Errors: *EmptyBatchError for a zero-length batch, *ConfigurationError when
// the output length is negative or the working width exceeds the decoder's
// position limit (all detected before any decoder call), *ShapeError when
// the decoder or embedder returns
// mismatched dimensions, and ctx.Err() if the context is canceled between
// steps.
func Generate(ctx context.Context, dec Decoder, emb Embedder, prompts [][]int, opts Options) ([][]int, Stats, error) {
	s, err := newSession(dec, emb, prompts, opts)
	if err != nil {
		return nil, Stats{}, err
	}
	if err := s.run(ctx); err != nil {
		return nil, Stats{}, err
	}
	return s.al.extract(opts.EOS), s.stats, nil
}
