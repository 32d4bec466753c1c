package decode

// alignment is the shared token grid for one generation call.
//
// tokens and promptMask are batch × width, where width covers the start
// token, the longest prompt, and the continuation budget. window holds the
// prefill rows: the start token plus the longest prefix common to every
// example's prompt length (the shortest prompt).
type alignment struct {
	batch        int
	minPromptLen int
	maxPromptLen int
	outputLen    int
	width        int
	prefillLen   int

	promptLens []int
	tokens     [][]int
	promptMask [][]bool
	window     [][]int
}

// alignBatch lays prompts out into the shared grid. It validates the batch
// before any decoder work happens.
func alignBatch(prompts [][]int, opts Options, spec Spec) (*alignment, error) {
	if len(prompts) == 0 {
		return nil, &EmptyBatchError{}
	}
	if opts.OutputLen < 0 {
		return nil, &ConfigurationError{What: "output length", Requested: opts.OutputLen, Limit: 0}
	}

	minLen := len(prompts[0])
	maxLen := len(prompts[0])
	for _, p := range prompts[1:] {
		if len(p) < minLen {
			minLen = len(p)
		}
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}

	width := 1 + maxLen + opts.OutputLen
	if width > spec.MaxPosition {
		return nil, &ConfigurationError{What: "working width", Requested: width, Limit: spec.MaxPosition}
	}

	a := &alignment{
		batch:        len(prompts),
		minPromptLen: minLen,
		maxPromptLen: maxLen,
		outputLen:    opts.OutputLen,
		width:        width,
		prefillLen:   minLen + 1,
		promptLens:   make([]int, len(prompts)),
		tokens:       make([][]int, len(prompts)),
		promptMask:   make([][]bool, len(prompts)),
		window:       make([][]int, len(prompts)),
	}

	for b, p := range prompts {
		a.promptLens[b] = len(p)

		row := make([]int, width)
		for j := range row {
			row[j] = opts.Pad
		}
		row[0] = opts.SOS
		copy(row[1:], p)
		a.tokens[b] = row

		// Positions still covered by this example's prompt keep the
		// prompt token instead of a sampled one.
		mask := make([]bool, width)
		for j := 0; j <= len(p); j++ {
			mask[j] = true
		}
		a.promptMask[b] = mask

		win := make([]int, a.prefillLen)
		win[0] = opts.SOS
		copy(win[1:], p[:minLen])
		a.window[b] = win
	}
	return a, nil
}

// windowIDs flattens the prefill window batch-major: all of example 0's
// window tokens, then example 1's, and so on.
func (a *alignment) windowIDs() []int {
	ids := make([]int, 0, a.batch*a.prefillLen)
	for b := 0; b < a.batch; b++ {
		ids = append(ids, a.window[b]...)
	}
	return ids
}

// promptTokenCount is the total number of caller-supplied prompt tokens,
// excluding start tokens and padding.
func (a *alignment) promptTokenCount() int {
	n := 0
	for _, l := range a.promptLens {
		n += l
	}
	return n
}
