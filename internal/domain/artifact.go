package domain

import "time"

// ArtifactKind enumerates produced media types.
type ArtifactKind string

const (
	ArtifactKindImage ArtifactKind = "image"
	ArtifactKindVideo ArtifactKind = "video"
	ArtifactKindAudio ArtifactKind = "audio"
)

// Artifact is a media file produced by a completed job. Failed jobs never get one.
type Artifact struct {
	ID              string
	UserID          string
	RunID           string
	JobID           string
	Kind            ArtifactKind
	URL             string
	Bytes           int64
	DurationSeconds float64
	Width           int
	Height          int
	ProviderMeta    []byte
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}
