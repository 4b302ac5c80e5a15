package timing

// Action classifies how a scene should absorb a voice/scene duration gap.
type Action string

const (
	ActionNoChange    Action = "no_change"
	ActionExtendScene Action = "extend_scene"
	ActionAdjustRate  Action = "adjust_rate"
	ActionPadSilence  Action = "pad_silence"
)

// Adjustment records the negotiation outcome for one scene.
type Adjustment struct {
	SceneID        string  `json:"scene_id"`
	OriginalFrames int     `json:"original_frames"`
	VoiceFrames    int     `json:"voice_frames"`
	Action         Action  `json:"action"`
	SuggestedRate  float64 `json:"suggested_rate,omitempty"`
	FinalFrames    int     `json:"final_frames"`
}

// NegotiationResult pairs the per-scene adjustments with the updated map.
type NegotiationResult struct {
	Adjustments []Adjustment
	Map         Map
}

// Negotiator decides, per scene, whether the voice track fits the originally
// planned scene duration and what to do when it does not.
type Negotiator struct {
	// Overrun/underrun tolerances as voice/scene frame ratios.
	OverrunThreshold  float64
	ExtendThreshold   float64
	UnderrunThreshold float64
	MaxRate           float64
	MinRate           float64
}

func NewNegotiator() *Negotiator {
	return &Negotiator{
		OverrunThreshold:  1.1,
		ExtendThreshold:   1.3,
		UnderrunThreshold: 0.7,
		MaxRate:           1.3,
		MinRate:           0.8,
	}
}

// Negotiate compares each timing entry against the original scene duration
// (frames, keyed by scene id). Scenes absent from originalFrames pass
// through unchanged.
func (n *Negotiator) Negotiate(m Map, originalFrames map[string]int) NegotiationResult {
	result := NegotiationResult{
		Adjustments: make([]Adjustment, 0, len(m.Entries)),
		Map:         Map{TotalDurationMS: m.TotalDurationMS, FPS: m.FPS, Entries: make([]Entry, 0, len(m.Entries))},
	}

	for _, e := range m.Entries {
		adj := Adjustment{
			SceneID:     e.SceneID,
			VoiceFrames: e.DurationFrames,
			Action:      ActionNoChange,
			FinalFrames: e.RecommendedSceneFrames,
		}

		original, ok := originalFrames[e.SceneID]
		if ok && original > 0 && e.DurationFrames > 0 {
			adj.OriginalFrames = original
			ratio := float64(e.DurationFrames) / float64(original)
			switch {
			case ratio >= n.ExtendThreshold:
				// voice overruns too far to talk faster; the scene grows
				adj.Action = ActionExtendScene
				adj.SuggestedRate = n.MaxRate
				adj.FinalFrames = e.RecommendedSceneFrames
			case ratio > n.OverrunThreshold:
				adj.Action = ActionAdjustRate
				adj.SuggestedRate = ratio
				adj.FinalFrames = original
			case ratio < n.UnderrunThreshold:
				adj.Action = ActionPadSilence
				adj.SuggestedRate = ratio
				if adj.SuggestedRate < n.MinRate {
					adj.SuggestedRate = n.MinRate
				}
				// the original plan wins; silence fills the gap
				adj.FinalFrames = original
			}
		}

		e.RecommendedSceneFrames = adj.FinalFrames
		result.Adjustments = append(result.Adjustments, adj)
		result.Map.Entries = append(result.Map.Entries, e)
	}
	return result
}
