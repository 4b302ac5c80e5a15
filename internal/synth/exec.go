package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/timing"
)

type execSynth struct {
	cmd        []string
	format     audio.Format
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Language   string  `json:"language,omitempty"`
	Style      string  `json:"style,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Emphasis   string  `json:"emphasis,omitempty"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type execWordTiming struct {
	Word    string `json:"word"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

type execResponse struct {
	PCMBase64   string           `json:"pcm_base64"`
	DurationMS  int64            `json:"duration_ms"`
	WordTimings []execWordTiming `json:"word_timings,omitempty"`
}

// NewExecSynth wraps a subprocess speaking JSON over stdin/stdout as a
// synthesis provider.
func NewExecSynth(command string, format audio.Format, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args, format: format, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.VoiceID,
		Language:   req.Language,
		Style:      req.Style,
		Rate:       req.Rate,
		Emphasis:   req.Emphasis,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("synth command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode synth response: %w", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Result{}, fmt.Errorf("decode synth pcm: %w", err)
	}

	durationMS := resp.DurationMS
	if durationMS == 0 && e.sampleRate > 0 && e.channels > 0 {
		durationMS = int64(len(pcm)) * 1000 / int64(e.sampleRate*e.channels*2)
	}

	timings := make([]timing.WordTiming, 0, len(resp.WordTimings))
	for _, wt := range resp.WordTimings {
		timings = append(timings, timing.WordTiming{Word: wt.Word, StartMS: wt.StartMS, EndMS: wt.EndMS})
	}

	return Result{
		Audio: audio.Data{
			PCM:        pcm,
			Format:     e.format,
			SampleRate: e.sampleRate,
			DurationMS: durationMS,
			Channels:   e.channels,
		},
		WordTimings: timings,
	}, nil
}
