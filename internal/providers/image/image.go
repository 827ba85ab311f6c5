// Package image defines the text-to-image capability consumed by the
// orchestrator. Real vendor integrations implement Generator; the synthetic
// generator keeps the service runnable without API keys.
package image

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Request is the normalized input for one image generation call.
type Request struct {
	Model   string
	Prompt  string
	Width   int
	Height  int
	Style   string
	TraceID string
}

// Result is the normalized output of one image generation call.
type Result struct {
	URL    string
	Width  int
	Height int
	Meta   map[string]any
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Synthetic produces deterministic placeholder assets.
type Synthetic struct {
	BaseURL string
	Delay   time.Duration
}

// NewSynthetic constructs a synthetic image generator.
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
	sum := sha256.Sum256([]byte(req.Model + "|" + req.Prompt + "|" + req.Style))
	key := hex.EncodeToString(sum[:8])
	return &Result{
		URL:    fmt.Sprintf("%s/images/%s.png", s.BaseURL, key),
		Width:  req.Width,
		Height: req.Height,
		Meta:   map[string]any{"provider": "synthetic", "model": req.Model},
	}, nil
}

var _ Generator = (*Synthetic)(nil)
