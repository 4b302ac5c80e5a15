package audio

import (
	"fmt"
	"strings"
)

// Format tags the container/codec of an audio buffer. Only the metadata is
// tracked here; transcoding is a capability of the surrounding deployment.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatPCM  Format = "pcm"
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
)

const (
	DefaultSampleRate = 44100
	DefaultChannels   = 1

	// bytesPerSample is fixed: the pipeline works in 16-bit audio.
	bytesPerSample = 2
)

// Data is an immutable audio buffer plus the metadata needed to interpret it.
// It passes through the pipeline by value; nothing mutates a buffer after
// creation.
type Data struct {
	PCM        []byte
	Format     Format
	SampleRate int
	DurationMS int64
	Channels   int
}

// Silence produces a zero-filled PCM-consistent buffer of the given duration.
func Silence(durationMS int64, format Format, sampleRate, channels int) Data {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	samples := (int64(sampleRate)*durationMS + 999) / 1000
	return Data{
		PCM:        make([]byte, samples*bytesPerSample*int64(channels)),
		Format:     format,
		SampleRate: sampleRate,
		DurationMS: durationMS,
		Channels:   channels,
	}
}

// Concatenate joins segments in order. All inputs must share format and
// sample rate; the channel count of the first segment carries through.
func Concatenate(segments ...Data) (Data, error) {
	if len(segments) == 0 {
		return Data{Format: FormatWAV, SampleRate: DefaultSampleRate, Channels: DefaultChannels}, nil
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	first := segments[0]
	var total int
	var durationMS int64
	for i, seg := range segments {
		if seg.Format != first.Format {
			return Data{}, fmt.Errorf("%w: segment %d has format %q, want %q", ErrFormatMismatch, i, seg.Format, first.Format)
		}
		if seg.SampleRate != first.SampleRate {
			return Data{}, fmt.Errorf("%w: segment %d has sample rate %d, want %d", ErrSampleRateMismatch, i, seg.SampleRate, first.SampleRate)
		}
		total += len(seg.PCM)
		durationMS += seg.DurationMS
	}

	out := make([]byte, 0, total)
	for _, seg := range segments {
		out = append(out, seg.PCM...)
	}
	return Data{
		PCM:        out,
		Format:     first.Format,
		SampleRate: first.SampleRate,
		DurationMS: durationMS,
		Channels:   first.Channels,
	}, nil
}

// ConversionSupported reports whether Convert may re-tag from one format to
// another. Identity is always supported; everything else is limited to the
// PCM-derived pair, since re-tagging a compressed buffer would lie about its
// contents.
func ConversionSupported(from, to Format) bool {
	if from == to {
		return true
	}
	pcmDerived := func(f Format) bool { return f == FormatWAV || f == FormatPCM }
	return pcmDerived(from) && pcmDerived(to)
}

// Convert re-tags the format metadata. The buffer is never transcoded here.
func Convert(d Data, target Format) (Data, error) {
	if d.Format == target {
		return d, nil
	}
	if !ConversionSupported(d.Format, target) {
		return Data{}, fmt.Errorf("unsupported conversion from %q to %q", d.Format, target)
	}
	d.Format = target
	return d, nil
}

// EstimateDuration guesses how long text takes to speak at the given pace.
// It is a planning heuristic only; real synthesis duration always wins.
func EstimateDuration(text string, wordsPerMinute int) int64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	ms := int64(words) * 60000
	wpm := int64(wordsPerMinute)
	return (ms + wpm - 1) / wpm
}
