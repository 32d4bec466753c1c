// Package toy provides a small deterministic causal decoder for exercising
// the generation engine end to end without external weights. Weights are
// seeded pseudo-random, so the same seed always yields the same logits and
// the same greedy continuations.
package toy

import (
	"fmt"
	"math"

	"github.com/causalgen/causalgen/pkg/decode"
	"github.com/causalgen/causalgen/pkg/tensor"
)

// Decoder is a seeded multi-layer single-projection attention decoder. It
// implements both decode.Decoder and decode.Embedder.
type Decoder struct {
	spec decode.Spec

	emb tensor.Mat   // vocab x hidden
	wq  []tensor.Mat // per layer, hidden x hidden
	wk  []tensor.Mat
	wv  []tensor.Mat
	out tensor.Mat // hidden x vocab
}

// New builds a toy decoder for the given shape. The hidden size must equal
// NumKVHeads*HeadDim so query, key, and value vectors split evenly across
// heads.
func New(spec decode.Spec, seed int64) (*Decoder, error) {
	if spec.HiddenSize != spec.NumKVHeads*spec.HeadDim {
		return nil, fmt.Errorf("toy: hidden size %d != kv_heads*head_dim %d",
			spec.HiddenSize, spec.NumKVHeads*spec.HeadDim)
	}
	d := &Decoder{
		spec: spec,
		emb:  tensor.NewMat(spec.VocabSize, spec.HiddenSize),
		wq:   make([]tensor.Mat, spec.NumLayers),
		wk:   make([]tensor.Mat, spec.NumLayers),
		wv:   make([]tensor.Mat, spec.NumLayers),
		out:  tensor.NewMat(spec.HiddenSize, spec.VocabSize),
	}
	tensor.FillRand(&d.emb, seed)
	for l := 0; l < spec.NumLayers; l++ {
		d.wq[l] = tensor.NewMat(spec.HiddenSize, spec.HiddenSize)
		d.wk[l] = tensor.NewMat(spec.HiddenSize, spec.HiddenSize)
		d.wv[l] = tensor.NewMat(spec.HiddenSize, spec.HiddenSize)
		tensor.FillRand(&d.wq[l], seed+int64(3*l+1))
		tensor.FillRand(&d.wk[l], seed+int64(3*l+2))
		tensor.FillRand(&d.wv[l], seed+int64(3*l+3))
	}
	tensor.FillRand(&d.out, seed+int64(3*spec.NumLayers+1))
	return d, nil
}

func (d *Decoder) Spec() decode.Spec { return d.spec }

// Lookup maps ids into embedding rows. Ids outside the vocabulary,
// including the negative padding id, wrap modulo the vocabulary size so
// padded positions still produce a defined row.
func (d *Decoder) Lookup(ids []int) (*tensor.Mat, error) {
	m := tensor.NewMat(len(ids), d.spec.HiddenSize)
	for i, id := range ids {
		v := id % d.spec.VocabSize
		if v < 0 {
			v += d.spec.VocabSize
		}
		copy(m.Row(i), d.emb.Row(v))
	}
	return &m, nil
}

// Step runs causal attention for every (example, position) pair in the
// input, writing keys and values into the cache and attending over the
// resident history under the mask. Returns next-token logits.
func (d *Decoder) Step(in decode.StepInput) (*tensor.Mat, error) {
	t := len(in.Positions)
	if in.Embeddings.R != in.Batch*t {
		return nil, &decode.ShapeError{What: "toy step input rows", Want: in.Batch * t, Got: in.Embeddings.R}
	}
	if in.Embeddings.C != d.spec.HiddenSize {
		return nil, &decode.ShapeError{What: "toy step input columns", Want: d.spec.HiddenSize, Got: in.Embeddings.C}
	}
	if len(in.Mask) != t {
		return nil, &decode.ShapeError{What: "toy step mask rows", Want: t, Got: len(in.Mask)}
	}

	h := d.spec.NumKVHeads
	hd := d.spec.HeadDim
	scale := 1.0 / math.Sqrt(float64(hd))

	logits := tensor.NewMat(in.Batch*t, d.spec.VocabSize)
	q := make([]float32, d.spec.HiddenSize)
	k := make([]float32, d.spec.HiddenSize)
	v := make([]float32, d.spec.HiddenSize)
	attn := make([]float32, d.spec.HiddenSize)
	x := make([]float32, d.spec.HiddenSize)

	// Positions are processed in order so earlier positions of this call
	// are already cached when later ones attend.
	for ti := 0; ti < t; ti++ {
		pos := in.Positions[ti]
		maskRow := in.Mask[ti]
		for b := 0; b < in.Batch; b++ {
			copy(x, in.Embeddings.Row(b*t+ti))

			for l := 0; l < d.spec.NumLayers; l++ {
				vecMat(q, x, &d.wq[l])
				vecMat(k, x, &d.wk[l])
				vecMat(v, x, &d.wv[l])
				for head := 0; head < h; head++ {
					if err := in.Cache.Put(l, b, head, pos, k[head*hd:(head+1)*hd], v[head*hd:(head+1)*hd]); err != nil {
						return nil, err
					}
				}

				for i := range attn {
					attn[i] = 0
				}
				for head := 0; head < h; head++ {
					qh := q[head*hd : (head+1)*hd]
					lo := in.Cache.Window(pos)

					var maxScore float64 = math.Inf(-1)
					scores := make([]float64, 0, pos+1-lo)
					slots := make([]int, 0, pos+1-lo)
					for j := lo; j <= pos; j++ {
						if maskRow[j] {
							continue
						}
						kh := in.Cache.Key(l, b, head, in.Cache.Slot(j))
						var dot float64
						for i := 0; i < hd; i++ {
							dot += float64(qh[i]) * float64(kh[i])
						}
						dot *= scale
						scores = append(scores, dot)
						slots = append(slots, in.Cache.Slot(j))
						if dot > maxScore {
							maxScore = dot
						}
					}

					var sum float64
					for i := range scores {
						scores[i] = math.Exp(scores[i] - maxScore)
						sum += scores[i]
					}
					if sum == 0 {
						continue
					}
					for i, slot := range slots {
						w := float32(scores[i] / sum)
						vh := in.Cache.Value(l, b, head, slot)
						ah := attn[head*hd : (head+1)*hd]
						for c := 0; c < hd; c++ {
							ah[c] += w * vh[c]
						}
					}
				}

				for i := range x {
					x[i] += attn[i]
				}
			}

			vecMat(logits.Row(b*t+ti), x, &d.out)
		}
	}
	return &logits, nil
}

// vecMat computes dst = x * w for a row vector x and matrix w (len(x) rows,
// len(dst) columns).
func vecMat(dst, x []float32, w *tensor.Mat) {
	for c := range dst {
		dst[c] = 0
	}
	for r, xv := range x {
		if xv == 0 {
			continue
		}
		row := w.Row(r)
		for c := range dst {
			dst[c] += xv * row[c]
		}
	}
}
