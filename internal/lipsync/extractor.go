package lipsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
)

// Config locates the external tools.
type Config struct {
	FFmpegPath  string
	RhubarbPath string
	WorkDir     string
	Timeout     time.Duration
}

// Extractor converts MP3 speech into a Timing by running ffmpeg then Rhubarb.
// Each call works in its own directory so concurrent calls never share files.
type Extractor struct {
	cfg Config
	log *zap.SugaredLogger
}

// NewExtractor returns an Extractor. Zero values fall back to tools on PATH.
func NewExtractor(cfg Config, log *zap.SugaredLogger) *Extractor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.RhubarbPath == "" {
		cfg.RhubarbPath = "rhubarb"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Extractor{cfg: cfg, log: logger.OrNop(log)}
}

// Extract returns mouth cues for the given MP3 bytes.
func (e *Extractor) Extract(ctx context.Context, mp3 []byte) (*Timing, error) {
	if len(mp3) == 0 {
		return nil, upstream.ToolError("ffmpeg", 0, nil, errors.New("empty audio"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	dir := filepath.Join(e.cfg.WorkDir, "lipsync-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "speech.mp3")
	wav := filepath.Join(dir, "speech.wav")
	out := filepath.Join(dir, "speech.json")

	if err := os.WriteFile(in, mp3, 0o644); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}

	start := time.Now()
	if err := e.run(ctx, "ffmpeg", e.cfg.FFmpegPath, "-y", "-i", in, wav); err != nil {
		return nil, err
	}
	e.log.Debugw("conversion done", "elapsed", time.Since(start))

	if err := e.run(ctx, "rhubarb", e.cfg.RhubarbPath, "-f", "json", "-o", out, wav, "-r", "phonetic"); err != nil {
		return nil, err
	}
	e.log.Debugw("lip sync done", "elapsed", time.Since(start))

	t, err := ReadFile(out)
	if err != nil {
		return nil, upstream.ToolError("rhubarb", 0, nil, err)
	}
	if err := t.Validate(); err != nil {
		return nil, upstream.ToolError("rhubarb", 0, nil, err)
	}
	return t, nil
}

func (e *Extractor) run(ctx context.Context, name, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &upstream.Error{Kind: upstream.KindTimeout, Service: name, Err: ctxErr}
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return upstream.ToolError(name, code, stderr.Bytes(), err)
}
