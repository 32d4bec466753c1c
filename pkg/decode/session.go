package decode

import (
	"context"
	"time"

	"github.com/causalgen/causalgen/pkg/logits"
)

// sessionState tracks the decode loop's lifecycle. A session moves from
// primed (buffers allocated, nothing decoded) to stepping (cursor
// advancing) to done, and never backwards.
type sessionState int

const (
	statePrimed sessionState = iota
	stateStepping
	stateDone
)

// session is one generation call in flight. It owns the aligned token grid,
// the static mask, the KV cache, the sampler, and the shared position
// cursor every example advances under.
type session struct {
	dec  Decoder
	emb  Embedder
	spec Spec

	al      *alignment
	mask    *causalMask
	cache   *KVCache
	sampler *logits.Sampler
	params  logits.Params

	cursor int
	st     sessionState
	stats  Stats
	log    Logger
}

func newSession(dec Decoder, emb Embedder, prompts [][]int, opts Options) (*session, error) {
	spec := dec.Spec()
	al, err := alignBatch(prompts, opts, spec)
	if err != nil {
		return nil, err
	}

	capacity := al.prefillLen
	if opts.FullCache {
		capacity = al.width
	}

	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}

	return &session{
		dec:     dec,
		emb:     emb,
		spec:    spec,
		al:      al,
		mask:    newCausalMask(al.width),
		cache:   NewKVCache(spec, al.batch, capacity),
		sampler: logits.NewSampler(opts.Seed),
		params: logits.Params{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
		},
		cursor: al.prefillLen,
		st:     statePrimed,
		log:    log,
	}, nil
}

// run drives the loop to completion. The first iteration consumes the
// prefill window (every common-prefix position in one decoder call); each
// later iteration processes the single position behind the cursor. The
// sampled or forced tokens chosen at each step become the next step's
// input.
func (s *session) run(ctx context.Context) error {
	start := time.Now()

	input := s.al.windowIDs()
	positions := make([]int, s.al.prefillLen)
	for i := range positions {
		positions[i] = i
	}
	outputRow := s.al.prefillLen - 1

	s.st = stateStepping
	s.log.Debug("decode loop started",
		"batch", s.al.batch,
		"width", s.al.width,
		"prefill_len", s.al.prefillLen,
		"cache_capacity", s.cache.Capacity,
	)

	for s.cursor < s.al.width {
		if err := ctx.Err(); err != nil {
			return err
		}
		chosen, err := s.step(input, positions, outputRow)
		if err != nil {
			return err
		}
		input = chosen
		positions = []int{s.cursor - 1}
		outputRow = 0
	}
	s.st = stateDone

	s.stats.Duration = time.Since(start)
	s.stats.PromptTokens = s.al.promptTokenCount()
	if secs := s.stats.Duration.Seconds(); secs > 0 {
		s.stats.TPS = float64(s.stats.TokensGenerated) / secs
	}
	s.log.Info("generation complete",
		"batch", s.al.batch,
		"steps", s.stats.Steps,
		"tokens", s.stats.TokensGenerated,
		"duration", s.stats.Duration,
	)
	return nil
}

// step runs one decoder invocation over input (batch-major token ids for
// len(positions) positions per example), samples the next token for each
// example from the logits at outputRow, resolves teacher forcing, writes
// the chosen token into the grid at the cursor, and advances the cursor.
// It returns the chosen tokens, one per example.
func (s *session) step(input []int, positions []int, outputRow int) ([]int, error) {
	embs, err := s.emb.Lookup(input)
	if err != nil {
		return nil, err
	}
	if embs.R != len(input) {
		return nil, &ShapeError{What: "embedding rows", Want: len(input), Got: embs.R}
	}
	if embs.C != s.spec.HiddenSize {
		return nil, &ShapeError{What: "embedding columns", Want: s.spec.HiddenSize, Got: embs.C}
	}

	t := len(positions)
	out, err := s.dec.Step(StepInput{
		Embeddings: embs,
		Batch:      s.al.batch,
		Positions:  positions,
		Mask:       s.mask.rows(positions),
		Cache:      s.cache,
	})
	if err != nil {
		return nil, err
	}
	if out.R != s.al.batch*t {
		return nil, &ShapeError{What: "logit rows", Want: s.al.batch * t, Got: out.R}
	}
	if out.C != s.spec.VocabSize {
		return nil, &ShapeError{What: "logit columns", Want: s.spec.VocabSize, Got: out.C}
	}

	writeIdx := s.cursor
	chosen := make([]int, s.al.batch)
	for b := 0; b < s.al.batch; b++ {
		sampled := s.sampler.Sample(out.Row(b*t+outputRow), s.params)
		forced := s.al.promptMask[b][writeIdx]
		tok := chooseToken(forced, s.al.tokens[b][writeIdx], sampled)
		s.al.tokens[b][writeIdx] = tok
		chosen[b] = tok
		if !forced {
			s.stats.TokensGenerated++
		}
	}

	s.cursor++
	s.stats.Steps++
	return chosen, nil
}

// chooseToken resolves teacher forcing for one example at one position:
// while the position is still inside the example's prompt the prompt token
// wins, otherwise the sampled token does.
func chooseToken(forced bool, prompt, sampled int) int {
	if forced {
		return prompt
	}
	return sampled
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
