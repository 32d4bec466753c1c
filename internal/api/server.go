// Package api exposes the generation engine over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/causalgen/causalgen/internal/config"
	"github.com/causalgen/causalgen/internal/logger"
	"github.com/causalgen/causalgen/pkg/decode"
)

// ServerConfig wires a decoder and its configuration into the HTTP surface.
type ServerConfig struct {
	Config    config.Config
	Decoder   decode.Decoder
	Embedder  decode.Embedder
	RateLimit float64
	Burst     int
	Logger    logger.Logger
}

// Server handles generation requests against a single decoder instance.
type Server struct {
	cfg     ServerConfig
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
}

// NewServer builds a server. A zero RateLimit disables throttling.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Server{
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}
}

// Register mounts the API routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return writeTooManyRequests(c, "generation rate limit exceeded")
	}

	req, err := decodeBody[GenerateRequest](c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.OutputLen < 0 {
		return writeBadRequest(c, "output_len must not be negative")
	}

	opts := s.options(req)
	out, stats, err := decode.Generate(c.Request().Context(), s.cfg.Decoder, s.cfg.Embedder, req.Prompts, opts)
	if err != nil {
		var cfgErr *decode.ConfigurationError
		var emptyErr *decode.EmptyBatchError
		switch {
		case errors.As(err, &cfgErr), errors.As(err, &emptyErr):
			return writeBadRequest(c, err.Error())
		default:
			s.log.Error("generation failed", "error", err)
			return writeInternal(c, "generation failed")
		}
	}

	return c.JSON(http.StatusOK, GenerateResponse{
		ID:            "gen_" + uuid.NewString(),
		Object:        "generation",
		CreatedAt:     s.now().Unix(),
		Continuations: out,
		Usage: Usage{
			Steps:           stats.Steps,
			PromptTokens:    stats.PromptTokens,
			OutputTokens:    stats.TokensGenerated,
			DurationMillis:  stats.Duration.Milliseconds(),
			TokensPerSecond: stats.TPS,
		},
	})
}

// options resolves request sampling fields against the server defaults.
func (s *Server) options(req GenerateRequest) decode.Options {
	opts := decode.DefaultOptions()
	opts.SOS = s.cfg.Config.SOSTokenID
	opts.EOS = s.cfg.Config.EOSTokenID
	opts.Pad = s.cfg.Config.PadTokenID
	opts.Seed = s.cfg.Config.Seed
	opts.OutputLen = req.OutputLen
	opts.FullCache = req.FullCache
	opts.Logger = s.log

	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		opts.TopP = *req.TopP
	}
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	return opts
}
