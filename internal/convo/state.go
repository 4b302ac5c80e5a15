package convo

import "strings"

// Status is the session-level lifecycle state.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusUserTurn   Status = "user_turn"
	StatusAgentTurn  Status = "agent_turn"
	StatusPaused     Status = "paused"
	StatusEnded      Status = "ended"
)

// State is the session projection derived from the event stream. It is
// mutated exclusively by Reduce.
type State struct {
	Status         Status
	CurrentSpeaker Role
	TurnCount      int
	DurationMS     int64
	TranscriptText string
}

// NewState returns the initial projection.
func NewState() State {
	return State{Status: StatusConnecting}
}

// Reduce folds one event into the state. Events must be applied in stream
// order; the reduction is stateful over that order.
func Reduce(s State, e Event) State {
	if e.OffsetMS > s.DurationMS {
		s.DurationMS = e.OffsetMS
	}
	switch e.Type {
	case EventSessionStarted:
		s.Status = StatusActive
	case EventSessionPaused:
		if s.Status == StatusActive {
			s.Status = StatusPaused
		}
	case EventSessionResumed:
		if s.Status == StatusPaused {
			s.Status = StatusActive
		}
	case EventUserSpeechStarted:
		s.Status = StatusUserTurn
		s.CurrentSpeaker = RoleUser
	case EventAgentSpeechStarted:
		s.Status = StatusAgentTurn
		s.CurrentSpeaker = RoleAgent
	case EventUserSpeechEnded, EventAgentSpeechEnded:
		if s.Status == StatusUserTurn || s.Status == StatusAgentTurn {
			s.Status = StatusActive
		}
		s.CurrentSpeaker = ""
		s.TurnCount++
	case EventTranscript:
		if e.Text != "" {
			if s.TranscriptText != "" {
				s.TranscriptText += "\n"
			}
			s.TranscriptText += string(e.Role) + ": " + strings.TrimSpace(e.Text)
		}
	case EventSessionEnded:
		s.Status = StatusEnded
		s.CurrentSpeaker = ""
	}
	return s
}
