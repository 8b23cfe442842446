// Package llm provides narrow capability interfaces over a language-model
// service: clause-pair classification for the matcher and free-form
// completion for risk narratives.
//
// Both capabilities are designed to degrade instead of failing the pipeline:
// callers treat any error as a zero-confidence signal, and a client built
// without an API key returns degraded values directly.
package llm

import (
	"context"
	"log/slog"
	"time"
)

// Opinion is the model's judgement on how well a document section matches a
// library clause.
type Opinion struct {
	// Confidence in [0,1] that the section and the clause cover the same terms.
	Confidence float64 `json:"confidence"`

	// Reasoning is a short human-readable trace for the score.
	Reasoning string `json:"reasoning"`

	// Position is the suggested playbook position (preferred/fallback/unacceptable).
	Position string `json:"position"`

	// Risk is the model's risk label (low/medium/high).
	Risk string `json:"risk"`
}

// Classifier scores a (section, clause) text pair.
type Classifier interface {
	Classify(ctx context.Context, sectionText, clauseText string) (Opinion, error)
}

// Completer answers a free-form prompt with text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures the language-model client.
type Config struct {
	// APIKey authenticates against the messages API. If empty, New returns a
	// disabled client whose Classify yields confidence 0 and whose Complete
	// returns an error the caller is expected to absorb.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model identifier sent with each request.
	Model string `json:"model" yaml:"model"`

	// Endpoint is the messages API base URL. Default: https://api.anthropic.com.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// MaxTokens caps the response length. Default: 1024.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout per HTTP request. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.anthropic.com"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service bundles both capabilities.
type Service interface {
	Classifier
	Completer
}

// New creates a Service from config. Without an API key the returned client
// is disabled: every Classify reports zero confidence with a reason.
func New(cfg Config) Service {
	cfg.defaults()
	if cfg.APIKey == "" {
		return disabled{}
	}
	return newMessagesClient(cfg)
}

// disabled is the no-model fallback.
type disabled struct{}

func (disabled) Classify(_ context.Context, _, _ string) (Opinion, error) {
	return Opinion{Reasoning: "model assistance disabled: no API key configured"}, nil
}

func (disabled) Complete(_ context.Context, _ string) (string, error) {
	return "", ErrDisabled
}

// ErrDisabled reports that no language-model backend is configured.
var ErrDisabled = errDisabled{}

type errDisabled struct{}

func (errDisabled) Error() string { return "llm: no backend configured" }
