// Package video defines the image-to-video capability consumed by the
// orchestrator.
package video

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Request is the normalized input for one video generation call. ImageURL is
// the conditioning frame produced by the image stage.
type Request struct {
	Model           string
	ImageURL        string
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	TraceID         string
}

// Result is the normalized output of one video generation call.
type Result struct {
	URL             string
	DurationSeconds float64
	Width           int
	Height          int
	Meta            map[string]any
}

// Generator is the contract implemented by all video providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Synthetic produces deterministic placeholder clips.
type Synthetic struct {
	BaseURL string
	Delay   time.Duration
}

// NewSynthetic constructs a synthetic video generator.
func NewSynthetic(baseURL string) *Synthetic {
	return &Synthetic{BaseURL: baseURL}
}

func (s *Synthetic) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	sum := sha256.Sum256([]byte(req.Model + "|" + req.ImageURL + "|" + req.Prompt))
	key := hex.EncodeToString(sum[:8])
	return &Result{
		URL:             fmt.Sprintf("%s/clips/%s.mp4", s.BaseURL, key),
		DurationSeconds: float64(req.DurationSeconds),
		Width:           req.Width,
		Height:          req.Height,
		Meta:            map[string]any{"provider": "synthetic", "model": req.Model},
	}, nil
}

var _ Generator = (*Synthetic)(nil)
