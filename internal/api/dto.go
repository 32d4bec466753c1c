package api

// GenerateRequest is the body of POST /v1/generate. Prompts are token id
// sequences without the start token. Sampling fields are pointers so the
// server can tell "absent" from zero and fall back to its configured
// defaults.
type GenerateRequest struct {
	Prompts     [][]int  `json:"prompts"`
	OutputLen   int      `json:"output_len"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	FullCache   bool     `json:"full_cache,omitempty"`
}

// GenerateResponse is the success body. Continuations holds one token id
// slice per prompt, in request order, already cut at end-of-sequence.
type GenerateResponse struct {
	ID            string  `json:"id"`
	Object        string  `json:"object"`
	CreatedAt     int64   `json:"created_at"`
	Continuations [][]int `json:"continuations"`
	Usage         Usage   `json:"usage"`
}

// Usage reports per-request decode statistics. OutputTokens counts tokens
// produced by sampling, not the requested budget.
type Usage struct {
	Steps           int     `json:"steps"`
	PromptTokens    int     `json:"prompt_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	DurationMillis  int64   `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// ResponseError is the error payload, nested under an "error" key.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
