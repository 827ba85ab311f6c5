// Package pricing is the single source of truth for generation costs. The same
// cost functions produce plan estimates and ledger deductions; divergence
// between the two is a correctness bug, not a tuning knob.
package pricing

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"videoforge/internal/domain"
)

// UnitsPerCredit is the fixed-point scale: 1 credit = 10 micro-units.
const UnitsPerCredit = 10

// CreditsToUnits converts decimal credits to ledger micro-units, rounding to
// the nearest unit.
func CreditsToUnits(credits float64) int64 {
	return int64(math.Round(credits * UnitsPerCredit))
}

// UnitsToCredits converts ledger micro-units back to decimal credits.
func UnitsToCredits(units int64) float64 {
	return float64(units) / UnitsPerCredit
}

// Table holds per-model prices in decimal credits. Video prices are per second
// of requested footage; image and voiceover prices are per call.
type Table struct {
	Image          map[string]float64 `yaml:"image"`
	VideoPerSecond map[string]float64 `yaml:"video_per_second"`
	Voiceover      map[string]float64 `yaml:"voiceover"`
	Merge          float64            `yaml:"merge"`
}

// DefaultTable returns the built-in price list.
func DefaultTable() Table {
	return Table{
		Image: map[string]float64{
			"flux-schnell": 1,
			"flux-pro":     5,
			"sdxl":         2,
		},
		VideoPerSecond: map[string]float64{
			"kling-v1":    2,
			"runway-gen3": 4,
			"luma-ray":    3,
		},
		Voiceover: map[string]float64{
			"eleven-multilingual-v2": 5,
			"openai-tts-1":           2,
		},
		Merge: 10,
	}
}

// LoadTable reads a YAML price table from path. Missing sections fall back to
// the defaults so an override file only needs to name what it changes.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read pricing table: %w", err)
	}
	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Table{}, fmt.Errorf("parse pricing table: %w", err)
	}
	if len(override.Image) > 0 {
		t.Image = override.Image
	}
	if len(override.VideoPerSecond) > 0 {
		t.VideoPerSecond = override.VideoPerSecond
	}
	if len(override.Voiceover) > 0 {
		t.Voiceover = override.Voiceover
	}
	if override.Merge > 0 {
		t.Merge = override.Merge
	}
	return t, nil
}

// ImageCost prices one image generation call in micro-units.
func (t Table) ImageCost(model string) (int64, error) {
	price, ok := t.Image[model]
	if !ok {
		return 0, fmt.Errorf("%w: image model %q", domain.ErrUnknownModel, model)
	}
	return CreditsToUnits(price), nil
}

// VideoCost prices one video generation call of the given length in micro-units.
func (t Table) VideoCost(model string, seconds int) (int64, error) {
	price, ok := t.VideoPerSecond[model]
	if !ok {
		return 0, fmt.Errorf("%w: video model %q", domain.ErrUnknownModel, model)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("video duration must be positive, got %d", seconds)
	}
	return CreditsToUnits(price * float64(seconds)), nil
}

// VoiceoverCost prices one voiceover call in micro-units.
func (t Table) VoiceoverCost(model string) (int64, error) {
	price, ok := t.Voiceover[model]
	if !ok {
		return 0, fmt.Errorf("%w: voiceover model %q", domain.ErrUnknownModel, model)
	}
	return CreditsToUnits(price), nil
}

// MergeCost prices one render-merge call in micro-units.
func (t Table) MergeCost() int64 {
	return CreditsToUnits(t.Merge)
}

// EstimatePlan computes the full cost of a plan in micro-units from the same
// functions used for deduction.
func EstimatePlan(t Table, plan domain.WorkflowPlan) (int64, error) {
	var total int64
	for _, scene := range plan.Scenes {
		imgCost, err := t.ImageCost(plan.ImageModel(scene))
		if err != nil {
			return 0, err
		}
		vidCost, err := t.VideoCost(plan.VideoModel(scene), scene.DurationSeconds)
		if err != nil {
			return 0, err
		}
		total += imgCost + vidCost
	}
	if plan.Voiceover != nil {
		voCost, err := t.VoiceoverCost(plan.Models.Voiceover)
		if err != nil {
			return 0, err
		}
		total += voCost
	}
	total += t.MergeCost()
	return total, nil
}
