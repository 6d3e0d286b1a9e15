// Package lipsync produces mouth-shape timing documents for synthesized
// speech and owns the fallback document used when extraction fails.
package lipsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FallbackFile is the name of the fallback document inside the audio dir.
const FallbackFile = "fallback.json"

// Metadata describes the audio a Timing was extracted from.
type Metadata struct {
	SoundFile string  `json:"soundFile"`
	Duration  float64 `json:"duration"`
}

// Cue is one mouth shape held from Start to End, in seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Timing is a phoneme timing document in Rhubarb's JSON export format.
type Timing struct {
	Metadata  Metadata `json:"metadata"`
	MouthCues []Cue    `json:"mouthCues"`
}

// ErrInvalidTiming is returned by Validate.
var ErrInvalidTiming = errors.New("invalid timing document")

// Validate checks that cue starts never go backwards and no cue ends before it starts.
func (t *Timing) Validate() error {
	prev := 0.0
	for i, c := range t.MouthCues {
		if c.Start < prev {
			return fmt.Errorf("%w: cue %d starts at %.2f before %.2f", ErrInvalidTiming, i, c.Start, prev)
		}
		if c.End < c.Start {
			return fmt.Errorf("%w: cue %d ends before it starts", ErrInvalidTiming, i)
		}
		prev = c.Start
	}
	return nil
}

// Fallback returns the built-in one second placeholder document.
func Fallback() *Timing {
	return &Timing{
		Metadata: Metadata{SoundFile: "fallback.wav", Duration: 1.0},
		MouthCues: []Cue{
			{Start: 0.0, End: 0.2, Value: "X"},
			{Start: 0.2, End: 0.4, Value: "A"},
			{Start: 0.4, End: 0.6, Value: "B"},
			{Start: 0.6, End: 0.8, Value: "C"},
			{Start: 0.8, End: 1.0, Value: "A"},
			{Start: 1.0, End: 1.0, Value: "X"},
		},
	}
}

// minimal is served when the fallback file itself cannot be read.
func minimal() *Timing {
	return &Timing{
		Metadata: Metadata{SoundFile: "fallback.wav", Duration: 1.0},
		MouthCues: []Cue{
			{Start: 0.0, End: 0.5, Value: "X"},
			{Start: 0.5, End: 1.0, Value: "A"},
			{Start: 1.0, End: 1.0, Value: "X"},
		},
	}
}

// ReadFile decodes a timing document from disk.
func ReadFile(path string) (*Timing, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Timing
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &t, nil
}

// LoadFallback reads the fallback document from dir. It never fails: an
// unreadable or invalid file degrades to a minimal three-cue document.
func LoadFallback(dir string) *Timing {
	t, err := ReadFile(filepath.Join(dir, FallbackFile))
	if err != nil || t.Validate() != nil {
		return minimal()
	}
	return t
}

// EnsureFallback writes the fallback document into dir unless one exists.
// With overwrite set it always rewrites the file.
func EnsureFallback(dir string, overwrite bool) (string, error) {
	path := filepath.Join(dir, FallbackFile)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	b, err := json.MarshalIndent(Fallback(), "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write fallback: %w", err)
	}
	return path, nil
}
