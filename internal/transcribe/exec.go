package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/cantolabs/canto-core/internal/audio"
)

type execRecognizer struct {
	cmd       []string
	modelPath string
	mu        sync.Mutex
}

type execSegment struct {
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type execResult struct {
	Text       string        `json:"text"`
	Language   string        `json:"language,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	Segments   []execSegment `json:"segments"`
}

// NewExecRecognizer wraps a subprocess as an STT provider. Audio is handed
// over as a temporary WAV file; the subprocess answers with JSON on stdout.
func NewExecRecognizer(command, modelPath string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, modelPath: modelPath}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, req Request) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp("", "canto_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.EncodeWAV(file, req.Audio); err != nil {
		return Result{}, err
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.modelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.modelPath)
	}
	if req.Language != "" {
		cmdArgs = append(cmdArgs, "--language", req.Language)
	}
	if req.Diarize {
		cmdArgs = append(cmdArgs, "--diarize")
		if req.SpeakerCount > 0 {
			cmdArgs = append(cmdArgs, "--speakers", strconv.Itoa(req.SpeakerCount))
		}
	}
	if req.WordTimestamps {
		cmdArgs = append(cmdArgs, "--word-timestamps")
	}
	for _, hint := range req.VocabularyHints {
		cmdArgs = append(cmdArgs, "--hint", hint)
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode stt response: %w", err)
	}

	result := Result{
		Text:       resp.Text,
		Language:   resp.Language,
		DurationMS: resp.DurationMS,
		Segments:   make([]Segment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:       seg.Text,
			StartMS:    seg.StartMS,
			EndMS:      seg.EndMS,
			SpeakerID:  seg.Speaker,
			Confidence: seg.Confidence,
		})
	}
	if result.DurationMS == 0 {
		result.DurationMS = req.Audio.DurationMS
	}
	return result, nil
}
