package synth

import (
	"context"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/timing"
)

// Request contains parameters to synthesize one segment of speech.
type Request struct {
	Text      string
	VoiceID   string
	Language  string
	Style     string
	Stability float64
	Rate      float64
	Emphasis  string
}

// Result is the audio a provider produced for one request.
type Result struct {
	Audio       audio.Data
	WordTimings []timing.WordTiming
}

// Synthesizer is the contract for producing speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}
