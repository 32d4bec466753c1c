package decode

import (
	"errors"
	"testing"
)

func TestKVCachePutGet(t *testing.T) {
	t.Parallel()
	c := NewKVCache(testSpec(), 2, 4)
	k := []float32{1, 2, 3, 4}
	v := []float32{5, 6, 7, 8}
	if err := c.Put(0, 1, 1, 2, k, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	gotK := c.Key(0, 1, 1, c.Slot(2))
	gotV := c.Value(0, 1, 1, c.Slot(2))
	for i := range k {
		if gotK[i] != k[i] || gotV[i] != v[i] {
			t.Fatalf("readback mismatch: k=%v v=%v", gotK, gotV)
		}
	}
	if c.Filled != 3 {
		t.Fatalf("Filled: want 3, got %d", c.Filled)
	}
	// Other examples and heads stay untouched.
	other := c.Key(0, 0, 0, c.Slot(2))
	for i := range other {
		if other[i] != 0 {
			t.Fatalf("write leaked into another example's storage")
		}
	}
}

func TestKVCacheRolling(t *testing.T) {
	t.Parallel()
	c := NewKVCache(testSpec(), 1, 3)
	if c.Slot(0) != 0 || c.Slot(3) != 0 || c.Slot(5) != 2 {
		t.Fatalf("slot mapping wrong: %d %d %d", c.Slot(0), c.Slot(3), c.Slot(5))
	}
	if c.Window(2) != 0 {
		t.Fatalf("window before rollover should be 0, got %d", c.Window(2))
	}
	if c.Window(4) != 2 {
		t.Fatalf("window after rollover: want 2, got %d", c.Window(4))
	}

	k := []float32{1, 1, 1, 1}
	v := []float32{2, 2, 2, 2}
	if err := c.Put(0, 0, 0, 0, k, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	k2 := []float32{9, 9, 9, 9}
	if err := c.Put(0, 0, 0, 3, k2, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Position 3 reuses slot 0 and evicts position 0.
	got := c.Key(0, 0, 0, 0)
	if got[0] != 9 {
		t.Fatalf("rollover did not overwrite slot 0: %v", got)
	}
}

func TestKVCachePutShape(t *testing.T) {
	t.Parallel()
	c := NewKVCache(testSpec(), 1, 2)
	err := c.Put(0, 0, 0, 0, []float32{1, 2}, []float32{1, 2, 3, 4})
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("want ShapeError, got %v", err)
	}
}
