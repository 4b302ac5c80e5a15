package transcribe

import (
	"context"
	"errors"

	"github.com/cantolabs/canto-core/internal/audio"
)

// ErrStreamingUnsupported is returned when a stream is requested from a
// recognizer that only supports whole-buffer transcription.
var ErrStreamingUnsupported = errors.New("recognizer does not support streaming transcription")

// Segment is one timed span of transcribed speech.
type Segment struct {
	Text         string  `json:"text"`
	StartMS      int64   `json:"start_ms"`
	EndMS        int64   `json:"end_ms"`
	SpeakerID    string  `json:"speaker_id,omitempty"`
	SpeakerLabel string  `json:"speaker_label,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Result aggregates a full transcript. Speakers is populated only when
// diarization was requested.
type Result struct {
	Text       string         `json:"text"`
	Segments   []Segment      `json:"segments"`
	Language   string         `json:"language,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Speakers   []SpeakerStats `json:"speakers,omitempty"`
}

// SpeakerStats summarizes one diarized speaker.
type SpeakerStats struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	SegmentCount  int    `json:"segment_count"`
	TotalSpeechMS int64  `json:"total_speech_ms"`
}

// Project wraps a transcript with its optional derived artifacts.
type Project struct {
	Transcript Result         `json:"transcript"`
	Subtitles  string         `json:"subtitles,omitempty"`
	Speakers   []SpeakerStats `json:"speakers,omitempty"`
}

// Request describes one transcription call.
type Request struct {
	Audio           audio.Data
	Language        string
	Diarize         bool
	SpeakerCount    int
	WordTimestamps  bool
	VocabularyHints []string
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// StreamingRecognizer is implemented by backends that can emit segments
// incrementally as audio chunks arrive.
type StreamingRecognizer interface {
	Recognizer
	TranscribeStream(ctx context.Context, chunks <-chan audio.Data, req Request) (<-chan Segment, <-chan error)
}
