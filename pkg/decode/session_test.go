package decode

import (
	"context"
	"errors"
	"testing"

	"github.com/causalgen/causalgen/pkg/tensor"
)

// fakeDecoder emits logits that deterministically pick the next token:
// token 9 everywhere except the position named by eosAt, which gets the
// eos id. It records every call for assertions.
type fakeDecoder struct {
	spec  Spec
	eosAt int
	eos   int

	calls     int
	positions [][]int
}

func (d *fakeDecoder) Spec() Spec { return d.spec }

func (d *fakeDecoder) Step(in StepInput) (*tensor.Mat, error) {
	d.calls++
	d.positions = append(d.positions, append([]int(nil), in.Positions...))

	t := len(in.Positions)
	out := tensor.NewMat(in.Batch*t, d.spec.VocabSize)
	for b := 0; b < in.Batch; b++ {
		for i, pos := range in.Positions {
			tok := 9
			if pos+1 == d.eosAt {
				tok = d.eos
			}
			out.Row(b*t+i)[tok] = 10
		}
	}
	return &out, nil
}

type fakeEmbedder struct {
	hidden int
	cols   int // overrides hidden when nonzero, for shape-error tests
}

func (e *fakeEmbedder) Lookup(ids []int) (*tensor.Mat, error) {
	cols := e.hidden
	if e.cols != 0 {
		cols = e.cols
	}
	m := tensor.NewMat(len(ids), cols)
	for i, id := range ids {
		m.Row(i)[0] = float32(id)
	}
	return &m, nil
}

func TestGenerateScenario(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: 5, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 3

	out, stats, err := Generate(context.Background(), dec, emb, [][]int{{5, 6, 7}, {5, 6}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if stats.Steps != 4 {
		t.Fatalf("steps: want 4, got %d", stats.Steps)
	}
	if dec.calls != 4 {
		t.Fatalf("decoder calls: want 4, got %d", dec.calls)
	}

	// Example 0 hits eos one token into its continuation, example 1 two.
	want := [][]int{{9}, {9, 9}}
	if len(out) != len(want) {
		t.Fatalf("continuations: want %v, got %v", want, out)
	}
	for b := range want {
		if len(out[b]) != len(want[b]) {
			t.Fatalf("continuation %d: want %v, got %v", b, want[b], out[b])
		}
		for i := range want[b] {
			if out[b][i] != want[b][i] {
				t.Fatalf("continuation %d: want %v, got %v", b, want[b], out[b])
			}
		}
	}

	if stats.PromptTokens != 5 {
		t.Fatalf("prompt tokens: want 5, got %d", stats.PromptTokens)
	}
	// Example 0 samples positions 4..6 (position 3 replays its prompt
	// token), example 1 samples positions 3..6.
	if stats.TokensGenerated != 7 {
		t.Fatalf("tokens generated: want 7, got %d", stats.TokensGenerated)
	}
}

func TestGenerateForcesPromptTokens(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 2

	s, err := newSession(dec, emb, [][]int{{5, 6, 7}, {5, 6}}, opts)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if err := s.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The longer prompt's trailing token survives sampling untouched even
	// though the sampler would have picked 9 there.
	wantPrefix := []int{1, 5, 6, 7}
	for j, w := range wantPrefix {
		if s.al.tokens[0][j] != w {
			t.Fatalf("grid row 0 prefix: want %v, got %v", wantPrefix, s.al.tokens[0][:4])
		}
	}
	if s.st != stateDone {
		t.Fatalf("session not done: %v", s.st)
	}
}

func TestGeneratePositionsMonotonic(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 3

	if _, _, err := Generate(context.Background(), dec, emb, [][]int{{5, 6, 7}, {5, 6}}, opts); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// First call covers the shared window, every later call exactly one
	// position, each one past the previous.
	first := dec.positions[0]
	if len(first) != 3 || first[0] != 0 || first[2] != 2 {
		t.Fatalf("prefill positions: got %v", first)
	}
	next := 3
	for _, ps := range dec.positions[1:] {
		if len(ps) != 1 || ps[0] != next {
			t.Fatalf("step positions: want [%d], got %v", next, ps)
		}
		next++
	}
}

func TestGenerateZeroOutputLen(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 0

	// Equal-length prompts with no continuation budget: the loop has no
	// positions to fill and the decoder is never called.
	out, stats, err := Generate(context.Background(), dec, emb, [][]int{{5, 6}, {7, 8}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if dec.calls != 0 || stats.Steps != 0 {
		t.Fatalf("expected no decoder work, calls=%d steps=%d", dec.calls, stats.Steps)
	}
	for b, c := range out {
		if c == nil || len(c) != 0 {
			t.Fatalf("continuation %d should be empty non-nil, got %v", b, c)
		}
	}
}

func TestGenerateEmptyBatch(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	_, _, err := Generate(context.Background(), dec, emb, nil, DefaultOptions())
	var eb *EmptyBatchError
	if !errors.As(err, &eb) {
		t.Fatalf("want EmptyBatchError, got %v", err)
	}
	if dec.calls != 0 {
		t.Fatalf("decoder must not run for an empty batch")
	}
}

func TestGenerateWidthLimitBeforeDecode(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	spec.MaxPosition = 4
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 8

	_, _, err := Generate(context.Background(), dec, emb, [][]int{{5, 6}}, opts)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if dec.calls != 0 {
		t.Fatalf("decoder must not run when the width check fails")
	}
}

func TestGenerateNegativeOutputLen(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = -8

	_, _, err := Generate(context.Background(), dec, emb, [][]int{{5, 6}}, opts)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if dec.calls != 0 {
		t.Fatalf("decoder must not run for a negative output length")
	}
}

func TestGenerateEmbeddingShapeError(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize, cols: spec.HiddenSize + 1}

	opts := DefaultOptions()
	opts.OutputLen = 2

	_, _, err := Generate(context.Background(), dec, emb, [][]int{{5}}, opts)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("want ShapeError, got %v", err)
	}
}

func TestGenerateCancellation(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := DefaultOptions()
	opts.OutputLen = 4

	_, _, err := Generate(ctx, dec, emb, [][]int{{5, 6}}, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if dec.calls != 0 {
		t.Fatalf("canceled context should stop before the first step")
	}
}

func TestGenerateFullCacheCapacity(t *testing.T) {
	t.Parallel()
	spec := testSpec()
	dec := &fakeDecoder{spec: spec, eosAt: -1, eos: 2}
	emb := &fakeEmbedder{hidden: spec.HiddenSize}

	opts := DefaultOptions()
	opts.OutputLen = 3
	opts.FullCache = true

	s, err := newSession(dec, emb, [][]int{{5, 6, 7}, {5, 6}}, opts)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if s.cache.Capacity != s.al.width {
		t.Fatalf("full cache capacity: want %d, got %d", s.al.width, s.cache.Capacity)
	}

	sDef, err := newSession(dec, emb, [][]int{{5, 6, 7}, {5, 6}}, testOpts())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if sDef.cache.Capacity != sDef.al.prefillLen {
		t.Fatalf("default cache capacity: want %d, got %d", sDef.al.prefillLen, sDef.cache.Capacity)
	}
}
