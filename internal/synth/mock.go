package synth

import (
	"context"
	"strings"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/timing"
)

type mockSynth struct {
	format     audio.Format
	sampleRate int
	channels   int
}

// NewMockSynth returns a deterministic synthesizer: silence sized by the
// duration estimate, with evenly spaced word timings.
func NewMockSynth(format audio.Format, sampleRate, channels int) Synthesizer {
	return &mockSynth{format: format, sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	rate := req.Rate
	if rate <= 0 {
		rate = 1.0
	}
	durationMS := int64(float64(audio.EstimateDuration(req.Text, 150)) / rate)
	words := strings.Fields(req.Text)

	var timings []timing.WordTiming
	if len(words) > 0 && durationMS > 0 {
		per := durationMS / int64(len(words))
		for i, w := range words {
			start := int64(i) * per
			timings = append(timings, timing.WordTiming{Word: w, StartMS: start, EndMS: start + per})
		}
	}
	return Result{
		Audio:       audio.Silence(durationMS, m.format, m.sampleRate, m.channels),
		WordTimings: timings,
	}, nil
}
