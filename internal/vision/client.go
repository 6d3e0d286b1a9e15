// Package vision asks the environment-analysis service to describe what the
// cabin camera currently sees.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
)

const service = "vision"

// Config configures the analysis client.
type Config struct {
	URL              string
	DefaultStreamURL string
	Timeout          time.Duration
}

type analyzeRequest struct {
	VideoURL string `json:"video_url"`
}

type analyzeResponse struct {
	Success        *bool  `json:"success"`
	Description    string `json:"description"`
	FramesCaptured int    `json:"frames_captured"`
	Error          string `json:"error"`
}

// Client calls POST {URL}/analyze-environment.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *upstream.Breaker
	log     *zap.SugaredLogger
}

// New returns a client. breaker may be nil.
func New(cfg Config, client *http.Client, breaker *upstream.Breaker, log *zap.SugaredLogger) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		// capturing and analysing several frames is slow
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = upstream.NewHTTPClient()
	}
	return &Client{cfg: cfg, http: client, breaker: breaker, log: logger.OrNop(log)}
}

// Analyze returns a scene description for streamURL. An empty streamURL uses
// the configured default. When the service reports that it could not
// describe the scene, Analyze returns "" and a nil error; transport faults
// and deadlines are returned as *upstream.Error.
func (c *Client) Analyze(ctx context.Context, streamURL string) (string, error) {
	if streamURL == "" {
		streamURL = c.cfg.DefaultStreamURL
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(analyzeRequest{VideoURL: streamURL})
	if err != nil {
		return "", err
	}

	var out analyzeResponse
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/analyze-environment", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return upstream.Classify(service, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return upstream.Classify(service, fmt.Errorf("read body: %w", err))
		}
		decodeErr := json.Unmarshal(body, &out)
		// an explicit {"success": false} is an answer, whatever the status
		if decodeErr == nil && out.Success != nil && !*out.Success {
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return upstream.StatusError(service, resp.StatusCode, body)
		}
		if decodeErr != nil {
			return &upstream.Error{Kind: upstream.KindUpstream, Service: service, Body: upstream.Excerpt(body), Err: decodeErr}
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Do(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", err
	}

	if out.Success == nil || !*out.Success || strings.TrimSpace(out.Description) == "" {
		c.log.Warnw("vision analysis unavailable", "error", out.Error)
		return "", nil
	}
	c.log.Infow("vision analysis done", "frames", out.FramesCaptured)
	return strings.TrimSpace(out.Description), nil
}
