// Package timing reconciles synthesized speech durations against a
// frame-based video timeline.
package timing

// WordTiming is a word-level timestamp pair inside one segment.
type WordTiming struct {
	Word    string `json:"word"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// TimedSegment is the per-scene input to timing calculation: real synthesis
// duration keyed by the scene id that joins the pipeline stages.
type TimedSegment struct {
	SceneID     string
	DurationMS  int64
	WordTimings []WordTiming
}

// Entry is one scene's row of the timing map.
type Entry struct {
	SceneID                string       `json:"scene_id"`
	DurationMS             int64        `json:"duration_ms"`
	DurationFrames         int          `json:"duration_frames"`
	RecommendedSceneFrames int          `json:"recommended_scene_frames"`
	WordTimings            []WordTiming `json:"word_timings,omitempty"`
}

// Map tells a video renderer how long each scene must be to fit narration.
// It is derived wholesale; regenerate rather than edit.
type Map struct {
	TotalDurationMS int64   `json:"total_duration_ms"`
	FPS             int     `json:"fps"`
	Entries         []Entry `json:"entries"`
}

// DefaultBreathingRoom pads recommended scene durations so cuts do not land
// on the last syllable.
const DefaultBreathingRoom = 1.15

// Calculator derives timing maps at a fixed frame rate.
type Calculator struct {
	BreathingRoom float64
}

func NewCalculator() *Calculator {
	return &Calculator{BreathingRoom: DefaultBreathingRoom}
}

// Build produces a timing map for the given segments at fps.
func (c *Calculator) Build(segments []TimedSegment, fps int) Map {
	factor := c.BreathingRoom
	if factor <= 0 {
		factor = DefaultBreathingRoom
	}
	m := Map{FPS: fps, Entries: make([]Entry, 0, len(segments))}
	for _, seg := range segments {
		frames := framesForDuration(seg.DurationMS, fps)
		m.Entries = append(m.Entries, Entry{
			SceneID:                seg.SceneID,
			DurationMS:             seg.DurationMS,
			DurationFrames:         frames,
			RecommendedSceneFrames: ceilMul(frames, factor),
			WordTimings:            seg.WordTimings,
		})
		m.TotalDurationMS += seg.DurationMS
	}
	return m
}

// RecalculateForFPS rebuilds frame counts at a new frame rate while keeping
// each entry's recommended-to-actual ratio, so proportions survive the
// change even when the entry was previously negotiated away from the
// default breathing room.
func (c *Calculator) RecalculateForFPS(m Map, fps int) Map {
	out := Map{TotalDurationMS: m.TotalDurationMS, FPS: fps, Entries: make([]Entry, 0, len(m.Entries))}
	for _, e := range m.Entries {
		frames := framesForDuration(e.DurationMS, fps)
		ratio := c.BreathingRoom
		if e.DurationFrames > 0 && e.RecommendedSceneFrames > 0 {
			ratio = float64(e.RecommendedSceneFrames) / float64(e.DurationFrames)
		}
		out.Entries = append(out.Entries, Entry{
			SceneID:                e.SceneID,
			DurationMS:             e.DurationMS,
			DurationFrames:         frames,
			RecommendedSceneFrames: ceilMul(frames, ratio),
			WordTimings:            e.WordTimings,
		})
	}
	return out
}

func framesForDuration(durationMS int64, fps int) int {
	if durationMS <= 0 || fps <= 0 {
		return 0
	}
	return int((durationMS*int64(fps) + 999) / 1000)
}

func ceilMul(frames int, factor float64) int {
	scaled := float64(frames) * factor
	out := int(scaled)
	if scaled > float64(out) {
		out++
	}
	return out
}
