// Package cache lets identical generation requests reuse an earlier artifact
// instead of paying for a new adapter call. A hit produces a cached job with
// zero charge.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"videoforge/internal/domain"
)

// Key derives a stable cache key from the stage, model and call parameters.
// Map keys are sorted by the JSON encoder, so equal params yield equal keys.
func Key(nodeType domain.NodeType, model string, params map[string]any) string {
	payload, err := json.Marshal(params)
	if err != nil {
		payload = nil
	}
	sum := sha256.Sum256(append([]byte(string(nodeType)+"|"+model+"|"), payload...))
	return hex.EncodeToString(sum[:])
}

// ArtifactCache is a process-local artifact index.
type ArtifactCache struct {
	mu      sync.RWMutex
	entries map[string]domain.Artifact
}

// New creates an empty cache.
func New() *ArtifactCache {
	return &ArtifactCache{entries: make(map[string]domain.Artifact)}
}

// Lookup returns the artifact stored under key, if any.
func (c *ArtifactCache) Lookup(key string) (*domain.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	cp := a
	return &cp, true
}

// Store records an artifact under key, replacing any previous entry.
func (c *ArtifactCache) Store(key string, artifact *domain.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *artifact
}
