package pacing

import (
	"context"

	"github.com/cantolabs/canto-core/internal/script"
)

// roleDefaults maps a content role to its fixed pacing profile.
var roleDefaults = map[script.Role]Directive{
	script.RoleIntro:      {Rate: 1.0, Emphasis: EmphasisNormal, Tone: "warm", LeadSilenceMS: 0, TrailSilenceMS: 300},
	script.RoleProblem:    {Rate: 0.95, Emphasis: EmphasisStrong, Tone: "serious", LeadSilenceMS: 150, TrailSilenceMS: 250},
	script.RoleSolution:   {Rate: 1.0, Emphasis: EmphasisNormal, Tone: "confident", LeadSilenceMS: 100, TrailSilenceMS: 200},
	script.RoleMetric:     {Rate: 0.9, Emphasis: EmphasisStrong, Tone: "emphatic", LeadSilenceMS: 150, TrailSilenceMS: 300},
	script.RoleCTA:        {Rate: 0.95, Emphasis: EmphasisStrong, Tone: "energetic", LeadSilenceMS: 200, TrailSilenceMS: 0},
	script.RoleTransition: {Rate: 1.1, Emphasis: EmphasisReduced, Tone: "neutral", LeadSilenceMS: 50, TrailSilenceMS: 150},
}

// Analyzer is the deterministic planner: a fixed table of per-role defaults
// scaled by the caller's base rate.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Plan(_ context.Context, s script.Script, baseRate float64) (map[string]Directive, error) {
	if baseRate <= 0 {
		baseRate = 1.0
	}
	directives := make(map[string]Directive, len(s.Segments))
	for _, seg := range s.Segments {
		d, ok := roleDefaults[seg.Role]
		if !ok {
			d = roleDefaults[script.RoleSolution]
		}
		d.SceneID = seg.SceneID
		d.Rate = clampRate(d.Rate * baseRate)
		d.HasTrailSilence = true
		directives[seg.SceneID] = d
	}
	return directives, nil
}
