package convo

import (
	"context"

	"github.com/cantolabs/canto-core/internal/audio"
)

// SessionConfig parameterizes a provider-side conversational session.
type SessionConfig struct {
	SessionID    string
	VoiceID      string
	Language     string
	SystemPrompt string
}

// ProviderSession is a live session with a natively full-duplex
// conversational provider. Events is an ordered, single-consumer stream;
// it closes when the session ends.
type ProviderSession interface {
	SendAudio(ctx context.Context, chunk audio.Data) error
	SendText(ctx context.Context, text string) error
	Interrupt(ctx context.Context) error
	Events() <-chan Event
	Close() error
}

// FullDuplexProvider is implemented by conversational capabilities that
// manage turn taking themselves. When absent, the engine falls back to the
// orchestrator.
type FullDuplexProvider interface {
	StartSession(ctx context.Context, cfg SessionConfig) (ProviderSession, error)
}

// Engine drains one session's ordered event stream through the two
// independent reducers: the state projection and the transcript builder.
type Engine struct {
	state   State
	builder *TranscriptBuilder
}

func NewEngine() *Engine {
	return &Engine{state: NewState(), builder: NewTranscriptBuilder()}
}

// Apply folds one event through both reducers. Events must be applied in
// stream order by a single consumer.
func (e *Engine) Apply(event Event) {
	e.state = Reduce(e.state, event)
	e.builder.Observe(event)
}

// Drain consumes the stream until it closes or ctx is cancelled. Either way
// the engine ends in StatusEnded with whatever transcript was built; a turn
// left open by cancellation stays unterminated.
func (e *Engine) Drain(ctx context.Context, events <-chan Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				e.end()
				return
			}
			e.Apply(event)
		case <-ctx.Done():
			e.end()
			return
		}
	}
}

func (e *Engine) end() {
	if e.state.Status != StatusEnded {
		e.state = Reduce(e.state, Event{Type: EventSessionEnded, OffsetMS: e.state.DurationMS})
	}
}

// State returns the current session projection.
func (e *Engine) State() State { return e.state }

// Transcript returns the ordered turns built so far.
func (e *Engine) Transcript() []Turn { return e.builder.Turns() }
