// Package logits implements per-example token sampling over next-token
// logit vectors: greedy argmax, temperature scaling, top-k shortlisting,
// and nucleus (top-p) truncation.
package logits

import (
	"math"
	"math/rand"
)

// Params configures sampling for a single example.
//
// A Temperature of zero or below selects deterministic argmax decoding;
// argmax ties resolve to the lowest token id so repeated runs are
// reproducible. TopK values outside [1, vocab) and TopP values outside
// (0, 1) disable the respective filter.
type Params struct {
	Temperature float64
	TopP        float64
	TopK        int
}

// Sampler draws token ids from logit vectors. It reuses internal scratch
// buffers and is not safe for concurrent use; each generation call owns its
// own Sampler.
type Sampler struct {
	rng    *rand.Rand
	topIdx []int
	topVal []float64
	prob   []float64
}

// NewSampler returns a sampler seeded for reproducible draws.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample draws a single token id from the provided logits vector under p.
// The sample process involves the following steps:
//
//  1. If Temperature <= 0 the argmax index is returned (greedy).
//  2. Otherwise the logits are scaled by the inverse temperature and the
//     indices of the top k values are shortlisted.
//  3. Probabilities are computed in float64 with max subtraction, using a
//     softmax denominator over the whole vocabulary so shortlisting does
//     not inflate the shortlist's mass.
//  4. If TopP < 1, the shortlist is truncated where cumulative
//     full-vocabulary probability reaches TopP, and the survivors are
//     renormalized.
//  5. A random value drawn from [0,1) selects an index from the truncated
//     distribution.
//
// The shortlist is the probability-sorted prefix of the vocabulary, so the
// cut in step 4 yields exactly the nucleus intersected with the top-k set.
func (s *Sampler) Sample(logits []float32, p Params) int {
	if p.Temperature <= 0 {
		return argmax(logits)
	}

	k := p.TopK
	if k <= 0 || k > len(logits) {
		k = len(logits)
	}
	topP := p.TopP
	if topP <= 0 || topP > 1 {
		topP = 1
	}
	invTemp := 1.0 / p.Temperature

	topIdx, topVal := s.topK(logits, k, invTemp)
	if len(topVal) == 0 {
		return 0
	}

	// The shortlist is ordered descending, so its head is the global max.
	// The denominator runs over the whole vocabulary so prob holds true
	// probabilities, not mass renormalized to the shortlist.
	maxv := topVal[0]
	var denom float64
	for _, l := range logits {
		denom += math.Exp(float64(l)*invTemp - maxv)
	}

	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	for i := range topVal {
		prob[i] = math.Exp(topVal[i]-maxv) / denom
	}

	cut := len(prob)
	if topP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if c >= topP {
				cut = i + 1
				break
			}
		}
	}

	// Renormalize the surviving prefix and draw.
	var mass float64
	for i := 0; i < cut; i++ {
		mass += prob[i]
	}
	if mass == 0 {
		return topIdx[0]
	}
	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i] / mass
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

// argmax returns the index of the maximum value in the slice. Ties resolve
// to the lowest index. If the slice is empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest elements in logits,
// scaled by invTemp. The returned slices are ordered from largest to
// smallest by value; equal values keep the lower index first. This is an
// O(V*K) insertion algorithm suitable for small K.
func (s *Sampler) topK(logits []float32, k int, invTemp float64) ([]int, []float64) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float64, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := float64(l) * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
