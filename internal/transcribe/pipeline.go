package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cantolabs/canto-core/internal/audio"
)

// DefaultMaxChunkMS bounds how much audio goes to the provider per call.
const DefaultMaxChunkMS int64 = 5 * 60 * 1000

// Transcriber orchestrates chunked transcription: splitting, sequential
// per-chunk recognition with cumulative timestamp offsetting, diarization
// labeling, and subtitle rendering.
type Transcriber struct {
	recognizer Recognizer
	maxChunkMS int64
	logger     *slog.Logger
}

func NewTranscriber(recognizer Recognizer, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		recognizer: recognizer,
		maxChunkMS: DefaultMaxChunkMS,
		logger:     logger.With(slog.String("component", "transcriber")),
	}
}

// SetMaxChunkDuration overrides the split threshold. Zero restores the default.
func (t *Transcriber) SetMaxChunkDuration(ms int64) {
	if ms <= 0 {
		ms = DefaultMaxChunkMS
	}
	t.maxChunkMS = ms
}

// Transcribe runs the full pipeline over one audio buffer. Chunks are
// transcribed strictly in sequence: each chunk's timestamps are shifted by
// the cumulative duration of everything before it.
func (t *Transcriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	chunks := splitChunks(req.Audio, t.maxChunkMS)

	combined := Result{Language: req.Language}
	var offsetMS int64
	for i, chunk := range chunks {
		chunkReq := req
		chunkReq.Audio = chunk
		res, err := t.recognizer.Transcribe(ctx, chunkReq)
		if err != nil {
			return Result{}, fmt.Errorf("transcribe chunk %d: %w", i, err)
		}
		for _, seg := range res.Segments {
			seg.StartMS += offsetMS
			seg.EndMS += offsetMS
			combined.Segments = append(combined.Segments, seg)
		}
		if combined.Language == "" {
			combined.Language = res.Language
		}
		duration := res.DurationMS
		if duration == 0 {
			duration = chunk.DurationMS
		}
		offsetMS += duration
	}
	combined.DurationMS = offsetMS

	texts := make([]string, 0, len(combined.Segments))
	for _, seg := range combined.Segments {
		texts = append(texts, seg.Text)
	}
	combined.Text = strings.Join(texts, " ")

	if req.Diarize {
		combined.Segments, combined.Speakers = MapSpeakers(combined.Segments)
	}
	return combined, nil
}

// Project transcribes and renders the requested subtitle format ("" skips
// subtitles). Speaker stats are included when diarization was requested.
func (t *Transcriber) Project(ctx context.Context, req Request, subtitleFormat SubtitleFormat) (Project, error) {
	result, err := t.Transcribe(ctx, req)
	if err != nil {
		return Project{}, err
	}
	project := Project{Transcript: result, Speakers: result.Speakers}
	switch subtitleFormat {
	case SubtitleNone:
	case SubtitleSRT:
		project.Subtitles = FormatSRT(result.Segments, req.Diarize)
	case SubtitleVTT:
		project.Subtitles = FormatVTT(result.Segments, req.Diarize)
	default:
		return Project{}, fmt.Errorf("unknown subtitle format %q", subtitleFormat)
	}
	return project, nil
}

// Stream produces segments lazily as audio chunks arrive. The sequence is
// finite, ordered, and non-restartable. Recognizers without native streaming
// support fail immediately.
func (t *Transcriber) Stream(ctx context.Context, chunks <-chan audio.Data, req Request) (<-chan Segment, <-chan error) {
	streamer, ok := t.recognizer.(StreamingRecognizer)
	if !ok {
		segs := make(chan Segment)
		errs := make(chan error, 1)
		close(segs)
		errs <- ErrStreamingUnsupported
		close(errs)
		return segs, errs
	}
	return streamer.TranscribeStream(ctx, chunks, req)
}

// splitChunks slices the buffer proportionally by byte offset when its
// duration exceeds the threshold, aligning cuts to whole sample frames.
func splitChunks(a audio.Data, maxChunkMS int64) []audio.Data {
	if a.DurationMS <= maxChunkMS || a.DurationMS == 0 || len(a.PCM) == 0 {
		return []audio.Data{a}
	}

	frameBytes := 2 * a.Channels
	if frameBytes <= 0 {
		frameBytes = 2
	}
	bytesPerMS := float64(len(a.PCM)) / float64(a.DurationMS)

	var chunks []audio.Data
	for startMS := int64(0); startMS < a.DurationMS; startMS += maxChunkMS {
		endMS := startMS + maxChunkMS
		if endMS > a.DurationMS {
			endMS = a.DurationMS
		}
		startByte := alignDown(int(float64(startMS)*bytesPerMS), frameBytes)
		endByte := alignDown(int(float64(endMS)*bytesPerMS), frameBytes)
		if endMS == a.DurationMS {
			endByte = len(a.PCM)
		}
		chunks = append(chunks, audio.Data{
			PCM:        a.PCM[startByte:endByte],
			Format:     a.Format,
			SampleRate: a.SampleRate,
			DurationMS: endMS - startMS,
			Channels:   a.Channels,
		})
	}
	return chunks
}

func alignDown(n, align int) int {
	return n - n%align
}
