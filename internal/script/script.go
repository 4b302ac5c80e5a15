// Package script models the narration script the synthesis pipeline speaks.
// Scene ids are the join key correlating script segments, pacing directives,
// synthesized audio, and timing entries across pipeline stages.
package script

import (
	"fmt"
	"strings"

	"github.com/cantolabs/canto-core/internal/audio"
)

// Role drives default pacing for a segment.
type Role string

const (
	RoleIntro      Role = "intro"
	RoleProblem    Role = "problem"
	RoleSolution   Role = "solution"
	RoleMetric     Role = "metric"
	RoleCTA        Role = "cta"
	RoleTransition Role = "transition"
)

// Segment is one spoken unit of the script.
type Segment struct {
	SceneID             string
	Text                string
	Role                Role
	EstimatedDurationMS int64
}

// Script is an ordered sequence of segments.
type Script struct {
	Segments []Segment
}

// Brief is the content outline a script can be built from.
type Brief struct {
	Title        string
	Summary      string
	Problems     []string
	Solutions    []string
	Metrics      []string
	CallToAction string
}

// FromBrief builds a script from a content brief: an intro from title and
// summary, one segment per populated role, and an optional call to action.
func FromBrief(b Brief) Script {
	var segments []Segment

	add := func(id string, role Role, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		segments = append(segments, Segment{
			SceneID:             id,
			Text:                text,
			Role:                role,
			EstimatedDurationMS: audio.EstimateDuration(text, 150),
		})
	}

	add("intro", RoleIntro, strings.TrimSpace(b.Title+". "+b.Summary))
	add("problem", RoleProblem, strings.Join(b.Problems, " "))
	add("solution", RoleSolution, strings.Join(b.Solutions, " "))
	add("metric", RoleMetric, strings.Join(b.Metrics, " "))
	add("cta", RoleCTA, b.CallToAction)

	return Script{Segments: segments}
}

// Scene is one unit of an externally supplied video plan.
type Scene struct {
	ID             string
	Narration      string
	DurationFrames int
}

// FromScenePlan adapts a scene plan into a script. Scenes without narration
// are skipped; roles are inferred from position among the narrated scenes.
func FromScenePlan(scenes []Scene) (Script, error) {
	var narrated []Scene
	for _, s := range scenes {
		if strings.TrimSpace(s.Narration) != "" {
			narrated = append(narrated, s)
		}
	}

	segments := make([]Segment, 0, len(narrated))
	for i, s := range narrated {
		if s.ID == "" {
			return Script{}, fmt.Errorf("scene at position %d has no id", i)
		}
		text := strings.TrimSpace(s.Narration)
		segments = append(segments, Segment{
			SceneID:             s.ID,
			Text:                text,
			Role:                inferRole(i, len(narrated)),
			EstimatedDurationMS: audio.EstimateDuration(text, 150),
		})
	}
	return Script{Segments: segments}, nil
}

// inferRole maps a position to a content role: first is the intro, last the
// call to action, and in longer plans the second leads with the problem and
// the second-to-last lands the metric.
func inferRole(index, total int) Role {
	switch {
	case index == 0:
		return RoleIntro
	case index == total-1:
		return RoleCTA
	case total >= 4 && index == 1:
		return RoleProblem
	case total >= 4 && index == total-2:
		return RoleMetric
	default:
		return RoleSolution
	}
}
