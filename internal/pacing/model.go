package pacing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cantolabs/canto-core/internal/chat"
	"github.com/cantolabs/canto-core/internal/script"
)

// ModelPlanner asks a chat model for per-segment directives and falls back to
// the deterministic analyzer when the model is unavailable or returns
// something unusable. Planning never fails the caller.
type ModelPlanner struct {
	generator chat.Generator
	fallback  *Analyzer
	logger    *slog.Logger
}

func NewModelPlanner(generator chat.Generator, logger *slog.Logger) *ModelPlanner {
	return &ModelPlanner{
		generator: generator,
		fallback:  NewAnalyzer(),
		logger:    logger.With(slog.String("component", "pacing-planner")),
	}
}

const planSystemPrompt = `You are a voice direction assistant. Given narration segments, respond with a JSON array where each element has: scene_id, rate (0.7-1.3), emphasis (reduced|normal|strong), tone (one word), lead_silence_ms, trail_silence_ms. Respond with JSON only.`

func (p *ModelPlanner) Plan(ctx context.Context, s script.Script, baseRate float64) (map[string]Directive, error) {
	if p.generator == nil {
		return p.fallback.Plan(ctx, s, baseRate)
	}
	directives, err := p.planWithModel(ctx, s, baseRate)
	if err != nil {
		p.logger.Warn("model pacing failed, using heuristic defaults", slog.String("error", err.Error()))
		return p.fallback.Plan(ctx, s, baseRate)
	}
	return directives, nil
}

func (p *ModelPlanner) planWithModel(ctx context.Context, s script.Script, baseRate float64) (map[string]Directive, error) {
	var prompt strings.Builder
	prompt.WriteString("Plan pacing for these segments:\n")
	for _, seg := range s.Segments {
		fmt.Fprintf(&prompt, "- scene_id=%s role=%s text=%q\n", seg.SceneID, seg.Role, seg.Text)
	}

	reply, err := p.generator.Chat(ctx, chat.Request{
		Messages: []chat.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: prompt.String()},
		},
		Temperature:    0.2,
		ResponseFormat: "json",
	})
	if err != nil {
		return nil, err
	}

	var raw []Directive
	if err := json.Unmarshal([]byte(extractJSON(reply)), &raw); err != nil {
		return nil, fmt.Errorf("decode pacing reply: %w", err)
	}

	if baseRate <= 0 {
		baseRate = 1.0
	}
	directives := make(map[string]Directive, len(s.Segments))
	for _, d := range raw {
		if d.SceneID == "" {
			continue
		}
		if d.Rate <= 0 {
			d.Rate = 1.0
		}
		switch d.Emphasis {
		case EmphasisReduced, EmphasisNormal, EmphasisStrong:
		default:
			d.Emphasis = EmphasisNormal
		}
		d.Rate = clampRate(d.Rate * baseRate)
		d.HasTrailSilence = d.TrailSilenceMS > 0
		directives[d.SceneID] = d
	}

	// every segment must end up with a directive or the plan is unusable
	for _, seg := range s.Segments {
		if _, ok := directives[seg.SceneID]; !ok {
			return nil, fmt.Errorf("model plan missing scene %q", seg.SceneID)
		}
	}
	return directives, nil
}

// extractJSON strips any prose the model wrapped around the JSON array.
func extractJSON(reply string) string {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return reply
}
