package transcribe

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer { return &mockRecognizer{} }

func (m *mockRecognizer) Transcribe(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := fmt.Sprintf("[transcript of %d bytes]", len(req.Audio.PCM))
	return Result{
		Text:       text,
		Language:   req.Language,
		DurationMS: req.Audio.DurationMS,
		Segments: []Segment{
			{Text: text, StartMS: 0, EndMS: req.Audio.DurationMS},
		},
	}, nil
}
