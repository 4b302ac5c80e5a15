package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/chat"
	"github.com/cantolabs/canto-core/internal/synth"
	"github.com/cantolabs/canto-core/internal/transcribe"
)

// Orchestrator is the fallback response path for providers without native
// full-duplex support: it chains STT, chat, and TTS per user turn and emits
// the resulting session events in order. History accumulates across turns
// until Reset.
type Orchestrator struct {
	transcriber  *transcribe.Transcriber
	generator    chat.Generator
	synthesizer  synth.Synthesizer
	systemPrompt string
	voiceID      string
	language     string
	history      []chat.Message
	logger       *slog.Logger
}

func NewOrchestrator(
	transcriber *transcribe.Transcriber,
	generator chat.Generator,
	synthesizer synth.Synthesizer,
	systemPrompt, voiceID, language string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		transcriber:  transcriber,
		generator:    generator,
		synthesizer:  synthesizer,
		systemPrompt: systemPrompt,
		voiceID:      voiceID,
		language:     language,
		logger:       logger.With(slog.String("component", "convo-orchestrator")),
	}
}

// Respond handles one completed user turn: transcribe the captured audio,
// generate a reply conditioned on the system prompt and full history, and
// synthesize it. Events are emitted in the fixed order
// user-speech-ended, transcript(user), agent-speech-started, agent-audio,
// agent-speech-ended, transcript(agent). A nil emit error from every step is
// required; any capability failure aborts the turn.
func (o *Orchestrator) Respond(ctx context.Context, sessionID string, userAudio audio.Data, offsetMS int64, emit func(Event) error) error {
	sttResult, err := o.transcriber.Transcribe(ctx, transcribe.Request{Audio: userAudio, Language: o.language})
	if err != nil {
		return fmt.Errorf("transcribe user turn: %w", err)
	}
	userText := strings.TrimSpace(sttResult.Text)

	if err := emit(Event{Type: EventUserSpeechEnded, SessionID: sessionID, OffsetMS: offsetMS}); err != nil {
		return err
	}
	if err := emit(Event{Type: EventTranscript, SessionID: sessionID, OffsetMS: offsetMS, Role: RoleUser, Text: userText}); err != nil {
		return err
	}

	o.history = append(o.history, chat.Message{Role: "user", Content: userText})

	messages := make([]chat.Message, 0, len(o.history)+1)
	if o.systemPrompt != "" {
		messages = append(messages, chat.Message{Role: "system", Content: o.systemPrompt})
	}
	messages = append(messages, o.history...)

	reply, err := o.generator.Chat(ctx, chat.Request{Messages: messages})
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	o.history = append(o.history, chat.Message{Role: "assistant", Content: reply})

	synthResult, err := o.synthesizer.Synthesize(ctx, synth.Request{Text: reply, VoiceID: o.voiceID, Language: o.language})
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}

	agentEndMS := offsetMS + synthResult.Audio.DurationMS
	sequence := []Event{
		{Type: EventAgentSpeechStarted, SessionID: sessionID, OffsetMS: offsetMS, Role: RoleAgent},
		{Type: EventAgentAudio, SessionID: sessionID, OffsetMS: offsetMS, Role: RoleAgent, Audio: synthResult.Audio},
		{Type: EventAgentSpeechEnded, SessionID: sessionID, OffsetMS: agentEndMS, Role: RoleAgent},
		{Type: EventTranscript, SessionID: sessionID, OffsetMS: agentEndMS, Role: RoleAgent, Text: reply},
	}
	for _, e := range sequence {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

// History returns the accumulated conversation history.
func (o *Orchestrator) History() []chat.Message {
	out := make([]chat.Message, len(o.history))
	copy(out, o.history)
	return out
}

// Reset clears the conversation history.
func (o *Orchestrator) Reset() {
	o.history = nil
}
