package decode

// causalMask is a static strictly-upper-triangular forbidden grid sized to
// the full working width. forbid[i*n+j] is true exactly when j > i, so a
// position may attend to itself and everything before it. The content never
// changes after construction; the decode loop only selects rows.
type causalMask struct {
	n      int
	forbid []bool
}

func newCausalMask(n int) *causalMask {
	m := &causalMask{n: n, forbid: make([]bool, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.forbid[i*n+j] = true
		}
	}
	return m
}

// row returns a view of the mask row for one absolute position.
func (m *causalMask) row(pos int) []bool {
	start := pos * m.n
	return m.forbid[start : start+m.n]
}

// rows selects one mask row per requested position, in order.
func (m *causalMask) rows(positions []int) [][]bool {
	out := make([][]bool, len(positions))
	for i, p := range positions {
		out[i] = m.row(p)
	}
	return out
}
