// Package pipeline turns a user's chat message into avatar replies: it
// gates on credentials, optionally consults the camera, generates text,
// extracts the message list and enriches every message with speech and
// mouth cues, substituting a fixed fallback wherever a step fails.
package pipeline

import (
	"context"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PaulBabatuyi/copassenger-api/internal/cache"
	"github.com/PaulBabatuyi/copassenger-api/internal/lipsync"
	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/metrics"
)

// DefaultMaxReplies caps how many generated messages are enriched and returned.
const DefaultMaxReplies = 3

// TextGenerator produces raw model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SpeechSynthesizer turns text into MP3 audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	VoiceID() string
}

// PhonemeExtractor derives mouth cues from MP3 audio.
type PhonemeExtractor interface {
	Extract(ctx context.Context, audio []byte) (*lipsync.Timing, error)
}

// VisionAnalyzer describes the scene visible on a video stream.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, streamURL string) (string, error)
}

// SpeechCache stores enrichment results by voice and text.
type SpeechCache interface {
	Get(ctx context.Context, voice, text string) (*cache.Entry, error)
	Set(ctx context.Context, voice, text string, e *cache.Entry) error
}

// Options configures an Orchestrator.
type Options struct {
	// CredentialsConfigured is false when the text or speech API key is
	// missing; every request then gets the API-key reply set.
	CredentialsConfigured bool
	// AudioDir holds the canned assets and the fallback cue document.
	AudioDir   string
	MaxReplies int
	Workers    int
}

// Deps are the adapters the orchestrator calls. Vision and Cache are optional.
type Deps struct {
	Generator   TextGenerator
	Synthesizer SpeechSynthesizer
	Extractor   PhonemeExtractor
	Vision      VisionAnalyzer
	Cache       SpeechCache
	Metrics     *metrics.Metrics
	Log         *zap.SugaredLogger
}

// Request is one chat turn.
type Request struct {
	Message  string
	VideoURL string
}

// Orchestrator runs the chat pipeline. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	opts Options
	deps Deps
	log  *zap.SugaredLogger
}

// New returns an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	if opts.MaxReplies <= 0 {
		opts.MaxReplies = DefaultMaxReplies
	}
	if opts.Workers <= 0 {
		opts.Workers = opts.MaxReplies
	}
	if deps.Generator == nil || deps.Synthesizer == nil || deps.Extractor == nil {
		opts.CredentialsConfigured = false
	}
	return &Orchestrator{opts: opts, deps: deps, log: logger.OrNop(deps.Log)}
}

// Respond produces the replies for req. It always returns a well-formed,
// non-empty reply list; the error is reserved for a cancelled context.
func (o *Orchestrator) Respond(ctx context.Context, req Request) ([]Reply, error) {
	if !o.opts.CredentialsConfigured {
		o.deps.Metrics.Fallback(metrics.StageCredentials)
		replies, err := loadCanned(o.opts.AudioDir, apiKeyLines, apiKeyDegraded)
		if err != nil {
			o.log.Warnw("api key reply assets unavailable", "error", err)
		}
		return replies, nil
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		replies, err := loadCanned(o.opts.AudioDir, introLines, introDegraded)
		if err != nil {
			o.log.Warnw("intro reply assets unavailable", "error", err)
		}
		return replies, nil
	}

	if o.deps.Vision != nil && ShouldTriggerVision(message) {
		message = o.lookAround(ctx, req.VideoURL)
	}

	raw, err := o.deps.Generator.Generate(ctx, BuildPrompt(message, o.opts.MaxReplies))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.log.Errorw("text generation failed", "error", err)
		o.deps.Metrics.Fallback(metrics.StageGeneration)
		return []Reply{fallbackReply(o.opts.AudioDir, ConnectivityText)}, nil
	}

	generated, method, err := ExtractMessages(raw)
	if err != nil || len(generated) == 0 {
		o.log.Warnw("could not extract messages", "error", err, "raw", excerpt(raw))
		o.deps.Metrics.Fallback(metrics.StageParse)
		return []Reply{fallbackReply(o.opts.AudioDir, ParseErrorText)}, nil
	}
	o.log.Debugw("messages extracted", "method", method, "count", len(generated))

	if len(generated) > o.opts.MaxReplies {
		o.log.Warnw("model returned too many messages; truncating", "count", len(generated), "max", o.opts.MaxReplies)
		generated = generated[:o.opts.MaxReplies]
	}

	replies := o.enrich(ctx, generated)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.deps.Metrics.RepliesProduced(len(replies))
	return replies, nil
}

// lookAround returns the prompt that replaces a vision-triggering message.
func (o *Orchestrator) lookAround(ctx context.Context, streamURL string) string {
	o.log.Infow("triggering vision analysis")
	desc, err := o.deps.Vision.Analyze(ctx, streamURL)
	switch {
	case err != nil:
		o.log.Warnw("vision analysis failed", "error", err)
		o.deps.Metrics.Vision("error")
	case desc == "":
		o.deps.Metrics.Vision("unavailable")
	default:
		o.deps.Metrics.Vision("described")
	}
	return visionPrompt(desc)
}

// enrich attaches audio and cues to every message. Messages are handled
// concurrently but each result lands at its own index, so order is kept.
func (o *Orchestrator) enrich(ctx context.Context, generated []GeneratedMessage) []Reply {
	replies := make([]Reply, len(generated))

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, m := range generated {
		g.Go(func() error {
			replies[i] = o.enrichOne(ctx, i, m)
			return nil
		})
	}
	_ = g.Wait()
	return replies
}

func (o *Orchestrator) enrichOne(ctx context.Context, i int, m GeneratedMessage) Reply {
	reply := Reply{
		Text:             m.Text,
		FacialExpression: m.FacialExpression,
		Animation:        m.Animation,
	}
	if reply.FacialExpression == "" {
		reply.FacialExpression = "default"
	}
	if reply.Animation == "" {
		reply.Animation = "Talking_0"
	}

	audio, timing, err := o.speak(ctx, m.Text)
	if err != nil {
		o.log.Errorw("message enrichment failed", "index", i, "error", err)
		return fallbackReply(o.opts.AudioDir, SpeechErrorText)
	}
	reply.Audio = base64.StdEncoding.EncodeToString(audio)
	reply.Lipsync = timing
	return reply
}

// speak synthesizes text and extracts its cues, consulting the cache first.
func (o *Orchestrator) speak(ctx context.Context, text string) ([]byte, *lipsync.Timing, error) {
	voice := o.deps.Synthesizer.VoiceID()

	if o.deps.Cache != nil {
		e, err := o.deps.Cache.Get(ctx, voice, text)
		switch {
		case err != nil:
			o.log.Warnw("speech cache lookup failed", "error", err)
			o.deps.Metrics.Cache("error")
		case e != nil && len(e.Audio) > 0 && e.Timing != nil:
			o.deps.Metrics.Cache("hit")
			return e.Audio, e.Timing, nil
		default:
			o.deps.Metrics.Cache("miss")
		}
	}

	audio, err := o.deps.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		o.deps.Metrics.Fallback(metrics.StageSpeech)
		return nil, nil, err
	}
	timing, err := o.deps.Extractor.Extract(ctx, audio)
	if err != nil {
		o.deps.Metrics.Fallback(metrics.StageLipSync)
		return nil, nil, err
	}

	if o.deps.Cache != nil {
		if err := o.deps.Cache.Set(ctx, voice, text, &cache.Entry{Audio: audio, Timing: timing}); err != nil {
			o.log.Warnw("speech cache store failed", "error", err)
		}
	}
	return audio, timing, nil
}

func excerpt(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
