package decode

import "fmt"

// ConfigurationError reports request options the engine cannot honor, such
// as a working width beyond the decoder's position range or a negative
// output length. It is returned before any decoder or embedder call is
// made.
type ConfigurationError struct {
	What      string
	Requested int
	Limit     int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("decode: %s: requested %d, limit %d", e.What, e.Requested, e.Limit)
}

// EmptyBatchError reports a generation request with no prompts.
type EmptyBatchError struct{}

func (e *EmptyBatchError) Error() string {
	return "decode: empty prompt batch"
}

// ShapeError reports a dimension mismatch between the engine's buffers and
// what a decoder, embedder, or cache write produced.
type ShapeError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("decode: %s: want %d, got %d", e.What, e.Want, e.Got)
}
