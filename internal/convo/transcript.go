package convo

// ToolCall records a tool invocation made during a turn.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
}

// Turn is one contiguous span of speech by a single party.
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	StartMS   int64      `json:"start_ms"`
	EndMS     int64      `json:"end_ms"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// TranscriptBuilder folds the session event stream into ordered turns. A
// turn opens on a speech-started event and closes on the matching
// speech-ended; transcript text attaches to the newest turn of its role
// that has none yet (the fallback orchestrator emits text after the turn
// closes).
//
// A session closed mid-turn leaves that turn with EndMS zero. That is
// deliberate: the unterminated turn is the raw signal that the speaker was
// interrupted, and synthesizing an end timestamp would erase it.
type TranscriptBuilder struct {
	turns []Turn
	open  map[Role]int // role -> index into turns, -1 when closed
}

func NewTranscriptBuilder() *TranscriptBuilder {
	return &TranscriptBuilder{open: map[Role]int{RoleUser: -1, RoleAgent: -1}}
}

// Observe folds one event into the transcript. Events must arrive in
// stream order.
func (b *TranscriptBuilder) Observe(e Event) {
	switch e.Type {
	case EventUserSpeechStarted:
		b.openTurn(RoleUser, e.OffsetMS)
	case EventAgentSpeechStarted:
		b.openTurn(RoleAgent, e.OffsetMS)
	case EventUserSpeechEnded:
		b.closeTurn(RoleUser, e.OffsetMS)
	case EventAgentSpeechEnded:
		b.closeTurn(RoleAgent, e.OffsetMS)
	case EventTranscript:
		b.attachText(e.Role, e.Text)
	}
}

// Turns returns the transcript built so far, in order.
func (b *TranscriptBuilder) Turns() []Turn {
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

func (b *TranscriptBuilder) openTurn(role Role, offsetMS int64) {
	b.turns = append(b.turns, Turn{Role: role, StartMS: offsetMS})
	b.open[role] = len(b.turns) - 1
}

func (b *TranscriptBuilder) closeTurn(role Role, offsetMS int64) {
	idx := b.open[role]
	if idx < 0 {
		return
	}
	b.turns[idx].EndMS = offsetMS
	b.open[role] = -1
}

func (b *TranscriptBuilder) attachText(role Role, text string) {
	if text == "" {
		return
	}
	for i := len(b.turns) - 1; i >= 0; i-- {
		if b.turns[i].Role == role && b.turns[i].Text == "" {
			b.turns[i].Text = text
			return
		}
	}
}
