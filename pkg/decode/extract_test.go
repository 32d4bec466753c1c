package decode

import "testing"

func TestExtractCutsAtEOS(t *testing.T) {
	t.Parallel()
	a, err := alignBatch([][]int{{5, 6, 7}, {5, 6}}, testOpts(), testSpec())
	if err != nil {
		t.Fatalf("alignBatch: %v", err)
	}
	// Simulate a finished grid.
	copy(a.tokens[0], []int{1, 5, 6, 7, 9, 2, 9})
	copy(a.tokens[1], []int{1, 5, 6, 9, 9, 2, 9})

	out := a.extract(2)
	if len(out[0]) != 1 || out[0][0] != 9 {
		t.Fatalf("continuation 0: want [9], got %v", out[0])
	}
	if len(out[1]) != 2 || out[1][0] != 9 || out[1][1] != 9 {
		t.Fatalf("continuation 1: want [9 9], got %v", out[1])
	}
}

func TestExtractNoEOS(t *testing.T) {
	t.Parallel()
	a, err := alignBatch([][]int{{5}}, testOpts(), testSpec())
	if err != nil {
		t.Fatalf("alignBatch: %v", err)
	}
	copy(a.tokens[0], []int{1, 5, 8, 9, 10})

	out := a.extract(2)
	want := []int{8, 9, 10}
	if len(out[0]) != len(want) {
		t.Fatalf("want %v, got %v", want, out[0])
	}
	for i := range want {
		if out[0][i] != want[i] {
			t.Fatalf("want %v, got %v", want, out[0])
		}
	}
}

func TestExtractImmediateEOS(t *testing.T) {
	t.Parallel()
	a, err := alignBatch([][]int{{5}}, testOpts(), testSpec())
	if err != nil {
		t.Fatalf("alignBatch: %v", err)
	}
	copy(a.tokens[0], []int{1, 5, 2, 9, 9})

	out := a.extract(2)
	if out[0] == nil || len(out[0]) != 0 {
		t.Fatalf("want empty non-nil continuation, got %v", out[0])
	}
}
