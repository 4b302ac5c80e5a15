package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes d as a 16-bit PCM WAV stream. The go-audio encoder needs
// an io.WriteSeeker to patch the RIFF header, so the result is buffered.
func EncodeWAV(w io.Writer, d Data) error {
	if len(d.PCM)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned to 16-bit samples (%d bytes)", len(d.PCM))
	}
	samples := make([]int, len(d.PCM)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(d.PCM[i*2:])))
	}
	buffer := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: d.Channels, SampleRate: d.SampleRate},
		Data:   samples,
	}

	var seekable writeSeekBuffer
	enc := wav.NewEncoder(&seekable, d.SampleRate, 16, d.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	_, err := w.Write(seekable.buf.Bytes())
	return err
}

// DecodeWAV reads a 16-bit PCM WAV stream into Data.
func DecodeWAV(r io.ReadSeeker) (Data, error) {
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Data{}, fmt.Errorf("decode wav: %w", err)
	}
	if !dec.IsValidFile() {
		return Data{}, fmt.Errorf("not a valid wav file")
	}
	sampleRate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	var durationMS int64
	if sampleRate > 0 && channels > 0 {
		frames := int64(len(buf.Data) / channels)
		durationMS = frames * 1000 / int64(sampleRate)
	}
	return Data{
		PCM:        pcm,
		Format:     FormatWAV,
		SampleRate: sampleRate,
		DurationMS: durationMS,
		Channels:   channels,
	}, nil
}

// writeSeekBuffer adapts bytes.Buffer to the WriteSeeker the wav encoder
// wants. Seeks only ever target offsets inside the written region.
type writeSeekBuffer struct {
	buf bytes.Buffer
	pos int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	if w.pos < w.buf.Len() {
		n := copy(w.buf.Bytes()[w.pos:], p)
		w.pos += n
		if n < len(p) {
			m, err := w.buf.Write(p[n:])
			w.pos += m
			return n + m, err
		}
		return n, nil
	}
	n, err := w.buf.Write(p)
	w.pos += n
	return n, err
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = w.pos + int(offset)
	case io.SeekEnd:
		next = w.buf.Len() + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 || next > w.buf.Len() {
		return 0, fmt.Errorf("seek out of range: %d", next)
	}
	w.pos = next
	return int64(next), nil
}
