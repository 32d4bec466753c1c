package decode

// extract slices each example's continuation out of the shared grid. The
// continuation starts right after the example's own prompt (not at the
// batch-wide maximum), covers at most outputLen tokens, and stops before
// the first eos token. Every returned slice is non-nil.
func (a *alignment) extract(eos int) [][]int {
	out := make([][]int, a.batch)
	for b := 0; b < a.batch; b++ {
		start := 1 + a.promptLens[b]
		cont := make([]int, 0, a.outputLen)
		for j := start; j < start+a.outputLen && j < a.width; j++ {
			tok := a.tokens[b][j]
			if tok == eos {
				break
			}
			cont = append(cont, tok)
		}
		out[b] = cont
	}
	return out
}
