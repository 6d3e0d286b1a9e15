// Package tts synthesizes speech through the ElevenLabs API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
)

const service = "elevenlabs"

// Config configures the ElevenLabs client.
type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// VoiceSettings mirrors the voice_settings object of a synthesis request.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is tuned for a warm conversational voice.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.75,
	Style:           0.35,
	UseSpeakerBoost: true,
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// ElevenLabs is a speech synthesis client guarded by a circuit breaker.
type ElevenLabs struct {
	cfg     Config
	http    *http.Client
	breaker *upstream.Breaker
	log     *zap.SugaredLogger
}

// New returns a client. breaker may be nil.
func New(cfg Config, client *http.Client, breaker *upstream.Breaker, log *zap.SugaredLogger) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = upstream.NewHTTPClient()
	}
	return &ElevenLabs{cfg: cfg, http: client, breaker: breaker, log: logger.OrNop(log)}
}

// VoiceID is the voice used for synthesis; it also keys the speech cache.
func (e *ElevenLabs) VoiceID() string { return e.cfg.VoiceID }

// Synthesize returns MP3 audio for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &upstream.Error{Kind: upstream.KindUpstream, Service: service, Err: errors.New("empty text")}
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: DefaultVoiceSettings,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.cfg.BaseURL, url.PathEscape(e.cfg.VoiceID))

	var audio []byte
	err = e.call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("xi-api-key", e.cfg.APIKey)

		audio, err = upstream.Do(ctx, e.http, service, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &upstream.Error{Kind: upstream.KindUpstream, Service: service, Err: errors.New("empty audio")}
	}
	e.log.Debugw("speech synthesized", "bytes", len(audio), "chars", len(text))
	return audio, nil
}

// Voices returns the provider's voice listing unmodified.
func (e *ElevenLabs) Voices(ctx context.Context) (json.RawMessage, error) {
	var body []byte
	err := e.call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, e.cfg.BaseURL+"/v1/voices", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("xi-api-key", e.cfg.APIKey)

		body, err = upstream.Do(ctx, e.http, service, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &upstream.Error{Kind: upstream.KindUpstream, Service: service, Body: upstream.Excerpt(body), Err: errors.New("invalid JSON")}
	}
	return json.RawMessage(body), nil
}

func (e *ElevenLabs) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if e.breaker == nil {
		return fn(ctx)
	}
	return e.breaker.Do(func() error { return fn(ctx) })
}
