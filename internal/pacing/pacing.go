// Package pacing plans speaking rate, emphasis, tone, and surrounding
// silence per script segment.
package pacing

import (
	"context"

	"github.com/cantolabs/canto-core/internal/script"
)

// Emphasis levels understood by synthesis providers.
type Emphasis string

const (
	EmphasisReduced Emphasis = "reduced"
	EmphasisNormal  Emphasis = "normal"
	EmphasisStrong  Emphasis = "strong"
)

// Directive controls how one segment is spoken. Rate is a multiplier around
// 1.0; silences are inserted around the synthesized audio during assembly.
type Directive struct {
	SceneID         string   `json:"scene_id"`
	Rate            float64  `json:"rate"`
	Emphasis        Emphasis `json:"emphasis"`
	Tone            string   `json:"tone"`
	LeadSilenceMS   int64    `json:"lead_silence_ms"`
	TrailSilenceMS  int64    `json:"trail_silence_ms"`
	HasTrailSilence bool     `json:"-"`
}

// Planner produces one directive per script segment, keyed by scene id.
type Planner interface {
	Plan(ctx context.Context, s script.Script, baseRate float64) (map[string]Directive, error)
}

const (
	minRate = 0.7
	maxRate = 1.3
)

func clampRate(rate float64) float64 {
	if rate < minRate {
		return minRate
	}
	if rate > maxRate {
		return maxRate
	}
	return rate
}
