package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cantolabs/canto-core/internal/audio"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// chunkRecorder reports one segment spanning each chunk it sees.
type chunkRecorder struct {
	calls []int64
}

func (c *chunkRecorder) Transcribe(_ context.Context, req Request) (Result, error) {
	c.calls = append(c.calls, req.Audio.DurationMS)
	return Result{
		Text:       "chunk",
		DurationMS: req.Audio.DurationMS,
		Segments: []Segment{
			{Text: "chunk", StartMS: 0, EndMS: req.Audio.DurationMS, SpeakerID: "spk-a"},
		},
	}, nil
}

func TestTranscribeSingleChunkPassThrough(t *testing.T) {
	rec := &chunkRecorder{}
	tr := NewTranscriber(rec, newLogger())
	res, err := tr.Transcribe(context.Background(), Request{Audio: audio.Silence(1000, audio.FormatWAV, 16000, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(rec.calls))
	}
	if res.DurationMS != 1000 || len(res.Segments) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTranscribeSplitsAndOffsets(t *testing.T) {
	rec := &chunkRecorder{}
	tr := NewTranscriber(rec, newLogger())
	tr.SetMaxChunkDuration(1000)

	res, err := tr.Transcribe(context.Background(), Request{Audio: audio.Silence(2500, audio.FormatWAV, 16000, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(rec.calls))
	}
	if rec.calls[0] != 1000 || rec.calls[1] != 1000 || rec.calls[2] != 500 {
		t.Fatalf("unexpected chunk durations: %v", rec.calls)
	}
	// second chunk's segment shifted by the first chunk's duration, and so on
	if res.Segments[1].StartMS != 1000 || res.Segments[1].EndMS != 2000 {
		t.Fatalf("second segment not offset: %+v", res.Segments[1])
	}
	if res.Segments[2].StartMS != 2000 || res.Segments[2].EndMS != 2500 {
		t.Fatalf("third segment not offset: %+v", res.Segments[2])
	}
	if res.DurationMS != 2500 {
		t.Fatalf("expected combined duration 2500, got %d", res.DurationMS)
	}
}

func TestTranscribeDiarizePopulatesSpeakerStats(t *testing.T) {
	rec := &chunkRecorder{}
	tr := NewTranscriber(rec, newLogger())
	tr.SetMaxChunkDuration(1000)

	res, err := tr.Transcribe(context.Background(), Request{
		Audio:   audio.Silence(2500, audio.FormatWAV, 16000, 1),
		Diarize: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Speakers) != 1 {
		t.Fatalf("expected one speaker, got %+v", res.Speakers)
	}
	// stats aggregate over the already-offset segments of all three chunks
	sp := res.Speakers[0]
	if sp.Label != "Speaker 1" || sp.SegmentCount != 3 || sp.TotalSpeechMS != 2500 {
		t.Fatalf("unexpected speaker stats: %+v", sp)
	}
	for i, seg := range res.Segments {
		if seg.SpeakerLabel != "Speaker 1" {
			t.Fatalf("segment %d not labeled: %+v", i, seg)
		}
	}
}

func TestProjectReusesTranscriptSpeakers(t *testing.T) {
	tr := NewTranscriber(&chunkRecorder{}, newLogger())
	project, err := tr.Project(context.Background(), Request{
		Audio:   audio.Silence(1000, audio.FormatWAV, 16000, 1),
		Diarize: true,
	}, SubtitleNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(project.Speakers) != len(project.Transcript.Speakers) {
		t.Fatalf("roster diverged: %+v vs %+v", project.Speakers, project.Transcript.Speakers)
	}
	if project.Speakers[0].SegmentCount != 1 || project.Speakers[0].TotalSpeechMS != 1000 {
		t.Fatalf("unexpected roster entry: %+v", project.Speakers[0])
	}
}

type failingRecognizer struct{ after int }

func (f *failingRecognizer) Transcribe(context.Context, Request) (Result, error) {
	if f.after <= 0 {
		return Result{}, errors.New("backend unavailable")
	}
	f.after--
	return Result{DurationMS: 1000, Segments: []Segment{{Text: "ok", EndMS: 1000}}}, nil
}

func TestTranscribeChunkFailureAbortsWhole(t *testing.T) {
	tr := NewTranscriber(&failingRecognizer{after: 1}, newLogger())
	tr.SetMaxChunkDuration(1000)
	_, err := tr.Transcribe(context.Background(), Request{Audio: audio.Silence(2000, audio.FormatWAV, 16000, 1)})
	if err == nil {
		t.Fatal("expected failure to propagate")
	}
}

func TestProjectWithDiarizationAndSubtitles(t *testing.T) {
	tr := NewTranscriber(&chunkRecorder{}, newLogger())
	project, err := tr.Project(context.Background(), Request{
		Audio:   audio.Silence(1500, audio.FormatWAV, 16000, 1),
		Diarize: true,
	}, SubtitleSRT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(project.Speakers) != 1 || project.Speakers[0].Label != "Speaker 1" {
		t.Fatalf("unexpected roster: %+v", project.Speakers)
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nSpeaker 1: chunk"
	if project.Subtitles != want {
		t.Fatalf("unexpected subtitles:\n%q\nwant:\n%q", project.Subtitles, want)
	}
}

func TestStreamUnsupported(t *testing.T) {
	tr := NewTranscriber(&chunkRecorder{}, newLogger())
	in := make(chan audio.Data)
	close(in)
	segs, errs := tr.Stream(context.Background(), in, Request{})
	for range segs {
		t.Fatal("expected no segments")
	}
	if err := <-errs; !errors.Is(err, ErrStreamingUnsupported) {
		t.Fatalf("expected ErrStreamingUnsupported, got %v", err)
	}
}

// streamingStub emits one segment per chunk.
type streamingStub struct{ chunkRecorder }

func (s *streamingStub) TranscribeStream(ctx context.Context, chunks <-chan audio.Data, _ Request) (<-chan Segment, <-chan error) {
	segs := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segs)
		defer close(errs)
		var offset int64
		for chunk := range chunks {
			select {
			case segs <- Segment{Text: "part", StartMS: offset, EndMS: offset + chunk.DurationMS}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			offset += chunk.DurationMS
		}
	}()
	return segs, errs
}

func TestStreamDelegatesToStreamingRecognizer(t *testing.T) {
	tr := NewTranscriber(&streamingStub{}, newLogger())
	in := make(chan audio.Data, 2)
	in <- audio.Silence(500, audio.FormatWAV, 16000, 1)
	in <- audio.Silence(700, audio.FormatWAV, 16000, 1)
	close(in)

	segs, errs := tr.Stream(context.Background(), in, Request{})
	var got []Segment
	for seg := range segs {
		got = append(got, seg)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 streamed segments, got %d", len(got))
	}
	if got[1].StartMS != 500 || got[1].EndMS != 1200 {
		t.Fatalf("streamed offsets wrong: %+v", got[1])
	}
}
