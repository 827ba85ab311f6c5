// Package voice defines the text-to-speech capability consumed by the
// orchestrator.
package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Request is the normalized input for one voiceover call. Language is a
// canonical BCP-47 tag or empty for the provider default.
type Request struct {
	Model    string
	Text     string
	Voice    string
	Language string
	TraceID  string
}

// Result is the normalized output of one voiceover call.
type Result struct {
	URL             string
	DurationSeconds float64
	Meta            map[string]any
}

// Generator is the contract implemented by all voiceover providers.
type Generator interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// Synthetic produces deterministic placeholder audio.
type Synthetic struct {
	BaseURL string
	Delay   time.Duration
}

// NewSynthetic constructs a synthetic voiceover generator.
func NewSynthetic(baseURL string) *Synthetic {
	return &Synthetic{BaseURL: baseURL}
}

func (s *Synthetic) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	sum := sha256.Sum256([]byte(req.Model + "|" + req.Voice + "|" + req.Text))
	key := hex.EncodeToString(sum[:8])
	// Rough reading speed of ~15 characters per second.
	duration := float64(len(req.Text)) / 15
	if duration < 1 {
		duration = 1
	}
	return &Result{
		URL:             fmt.Sprintf("%s/audio/%s.mp3", s.BaseURL, key),
		DurationSeconds: duration,
		Meta:            map[string]any{"provider": "synthetic", "model": req.Model, "voice": req.Voice},
	}, nil
}

var _ Generator = (*Synthetic)(nil)
