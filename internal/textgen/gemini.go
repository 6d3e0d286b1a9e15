// Package textgen talks to the Gemini text generation API.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
)

const service = "gemini"

// Config configures the Gemini client. BaseURL is only set in tests.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	BaseURL string
}

// Gemini generates a single text completion per prompt.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewGemini creates a client. It does not contact the API.
func NewGemini(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout, log: logger.OrNop(log)}, nil
}

// Generate returns the model's text for prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", translate(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &upstream.Error{Kind: upstream.KindUpstream, Service: service, Err: errors.New("empty completion")}
	}
	g.log.Debugw("generation done", "model", g.model, "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

func translate(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &upstream.Error{Kind: upstream.KindUpstream, Service: service, StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &upstream.Error{Kind: upstream.KindUpstream, Service: service, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message, Err: err}
	}
	return upstream.Classify(service, err)
}
