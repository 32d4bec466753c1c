package decode

// KVCache holds per-layer key and value history for one generation call.
//
// Each layer stores a flat batch × heads × capacity × headDim float32 buffer
// per tensor. Positions map to storage slots modulo Capacity, so a cache
// sized below the working width rolls over and the oldest entries are
// overwritten in place. Filled tracks the highest position written plus one.
type KVCache struct {
	Batch    int
	Heads    int
	HeadDim  int
	Capacity int
	Filled   int

	layers []layerKV
}

type layerKV struct {
	k []float32
	v []float32
}

// NewKVCache allocates a zeroed cache for every decoder layer.
func NewKVCache(spec Spec, batch, capacity int) *KVCache {
	c := &KVCache{
		Batch:    batch,
		Heads:    spec.NumKVHeads,
		HeadDim:  spec.HeadDim,
		Capacity: capacity,
		layers:   make([]layerKV, spec.NumLayers),
	}
	size := batch * c.Heads * capacity * c.HeadDim
	for i := range c.layers {
		c.layers[i] = layerKV{
			k: make([]float32, size),
			v: make([]float32, size),
		}
	}
	return c
}

// NumLayers returns the number of decoder layers the cache covers.
func (c *KVCache) NumLayers() int { return len(c.layers) }

// Slot maps an absolute position to its storage slot.
func (c *KVCache) Slot(pos int) int { return pos % c.Capacity }

// Window returns the earliest position still resident when attending from
// pos. With a cache at least as large as pos+1 this is zero; a rolling
// cache loses the oldest positions.
func (c *KVCache) Window(pos int) int {
	w := pos + 1 - c.Capacity
	if w < 0 {
		w = 0
	}
	return w
}

// Put writes one head's key and value vectors at pos for example b in the
// given layer. Both vectors must have length HeadDim.
func (c *KVCache) Put(layer, b, h, pos int, k, v []float32) error {
	if len(k) != c.HeadDim {
		return &ShapeError{What: "cache key vector length", Want: c.HeadDim, Got: len(k)}
	}
	if len(v) != c.HeadDim {
		return &ShapeError{What: "cache value vector length", Want: c.HeadDim, Got: len(v)}
	}
	off := c.offset(b, h, c.Slot(pos))
	copy(c.layers[layer].k[off:off+c.HeadDim], k)
	copy(c.layers[layer].v[off:off+c.HeadDim], v)
	if pos+1 > c.Filled {
		c.Filled = pos + 1
	}
	return nil
}

// Key returns a view of the cached key vector in the given slot.
func (c *KVCache) Key(layer, b, h, slot int) []float32 {
	off := c.offset(b, h, slot)
	return c.layers[layer].k[off : off+c.HeadDim]
}

// Value returns a view of the cached value vector in the given slot.
func (c *KVCache) Value(layer, b, h, slot int) []float32 {
	off := c.offset(b, h, slot)
	return c.layers[layer].v[off : off+c.HeadDim]
}

func (c *KVCache) offset(b, h, slot int) int {
	return ((b*c.Heads+h)*c.Capacity + slot) * c.HeadDim
}
