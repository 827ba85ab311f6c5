package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// SceneModels carries optional per-scene model overrides.
type SceneModels struct {
	Image string `json:"image,omitempty"`
	Video string `json:"video,omitempty"`
}

// Scene is one planned shot: its prompt, target length and optional styling.
type Scene struct {
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	DurationSeconds int          `json:"durationSeconds"`
	StylePreset     string       `json:"stylePreset,omitempty"`
	Models          *SceneModels `json:"models,omitempty"`
}

// VoiceoverPlan describes the optional narration track.
type VoiceoverPlan struct {
	Script   string `json:"script"`
	Voice    string `json:"voice"`
	Language string `json:"language,omitempty"`
}

// RecommendedModels names the model to use per stage unless a scene overrides it.
type RecommendedModels struct {
	Image     string `json:"image"`
	Video     string `json:"video"`
	Voiceover string `json:"voiceover,omitempty"`
}

// WorkflowPlan is the planner's structured output. The orchestrator treats an
// accepted plan as read-only; a frozen snapshot is stored with the Run.
type WorkflowPlan struct {
	Scenes           []Scene           `json:"scenes"`
	Voiceover        *VoiceoverPlan    `json:"voiceover,omitempty"`
	EstimatedCredits float64           `json:"estimatedCredits"`
	Models           RecommendedModels `json:"recommendedModels"`
	Transition       string            `json:"transition,omitempty"`
	Resolution       string            `json:"resolution,omitempty"`
}

// Clone returns a deep copy so a snapshot cannot alias the caller's plan.
func (p WorkflowPlan) Clone() WorkflowPlan {
	out := p
	out.Scenes = make([]Scene, len(p.Scenes))
	copy(out.Scenes, p.Scenes)
	for i, s := range p.Scenes {
		if s.Models != nil {
			m := *s.Models
			out.Scenes[i].Models = &m
		}
	}
	if p.Voiceover != nil {
		v := *p.Voiceover
		out.Voiceover = &v
	}
	return out
}

// Validate checks structural soundness and canonicalizes the voiceover language
// to a BCP-47 tag. It does not touch pricing; unknown models surface later.
func (p *WorkflowPlan) Validate() error {
	if len(p.Scenes) == 0 {
		return fmt.Errorf("%w: plan has no scenes", ErrInvalidPlan)
	}
	seen := make(map[string]struct{}, len(p.Scenes))
	for i, s := range p.Scenes {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: scene %d missing id", ErrInvalidPlan, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate scene id %q", ErrInvalidPlan, s.ID)
		}
		seen[s.ID] = struct{}{}
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("%w: scene %q missing description", ErrInvalidPlan, s.ID)
		}
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("%w: scene %q duration must be positive", ErrInvalidPlan, s.ID)
		}
	}
	if p.EstimatedCredits < 0 {
		return fmt.Errorf("%w: negative estimated credits", ErrInvalidPlan)
	}
	if p.Voiceover != nil {
		if strings.TrimSpace(p.Voiceover.Script) == "" {
			return fmt.Errorf("%w: voiceover script is empty", ErrInvalidPlan)
		}
		if lang := strings.TrimSpace(p.Voiceover.Language); lang != "" {
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("%w: voiceover language %q: %v", ErrInvalidPlan, lang, err)
			}
			p.Voiceover.Language = tag.String()
		}
	}
	return nil
}

// ImageModel resolves the image model for a scene, honoring overrides.
func (p WorkflowPlan) ImageModel(s Scene) string {
	if s.Models != nil && s.Models.Image != "" {
		return s.Models.Image
	}
	return p.Models.Image
}

// VideoModel resolves the video model for a scene, honoring overrides.
func (p WorkflowPlan) VideoModel(s Scene) string {
	if s.Models != nil && s.Models.Video != "" {
		return s.Models.Video
	}
	return p.Models.Video
}
