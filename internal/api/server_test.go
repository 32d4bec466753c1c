package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/causalgen/causalgen/internal/config"
	"github.com/causalgen/causalgen/internal/toy"
)

func newTestEcho(t *testing.T, rateLimit float64, burst int) *echo.Echo {
	t.Helper()
	cfg := config.Config{
		VocabSize:   32,
		HiddenSize:  8,
		NumLayers:   1,
		NumKVHeads:  2,
		HeadDim:     4,
		MaxPosition: 64,
		SOSTokenID:  1,
		EOSTokenID:  2,
		PadTokenID:  -1,
		Seed:        11,
	}
	dec, err := toy.New(cfg.Spec(), cfg.Seed)
	if err != nil {
		t.Fatalf("toy.New: %v", err)
	}
	server := NewServer(ServerConfig{
		Config:    cfg,
		Decoder:   dec,
		Embedder:  dec,
		RateLimit: rateLimit,
		Burst:     burst,
	})
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateEndpoint(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0, 0)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompts": [[5,6,7],[5,6]], "output_len": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "gen_") {
		t.Fatalf("unexpected id: %q", resp.ID)
	}
	if resp.Object != "generation" {
		t.Fatalf("unexpected object: %q", resp.Object)
	}
	if len(resp.Continuations) != 2 {
		t.Fatalf("want 2 continuations, got %d", len(resp.Continuations))
	}
	for i, cont := range resp.Continuations {
		if len(cont) > 3 {
			t.Fatalf("continuation %d longer than output_len: %v", i, cont)
		}
	}
	if resp.Usage.Steps != 4 {
		t.Fatalf("usage steps: want 4, got %d", resp.Usage.Steps)
	}
	if resp.Usage.PromptTokens != 5 {
		t.Fatalf("usage prompt tokens: want 5, got %d", resp.Usage.PromptTokens)
	}
}

func TestGenerateEmptyBatchRejected(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0, 0)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompts": [], "output_len": 2}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid_request_error") {
		t.Fatalf("expected invalid_request_error, got %s", rec.Body.String())
	}
}

func TestGenerateBadJSONRejected(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0, 0)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompts": [[1,`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGenerateWidthLimitRejected(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0, 0)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompts": [[5,6]], "output_len": 100000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGenerateRateLimited(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0.001, 1)

	first := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompts": [[5]], "output_len": 1}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass: %d %s", first.Code, first.Body.String())
	}
	second := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompts": [[5]], "output_len": 1}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be throttled: %d", second.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, 0, 0)
	rec := doJSON(t, e, http.MethodGet, "/v1/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: got %d", rec.Code)
	}
}
