// Package convo implements the conversational session engine: an ordered
// event stream folded into a session state projection and an append-only
// transcript, with voice-activity turn detection and a fallback
// STT-chat-TTS response orchestrator for providers without native
// full-duplex support.
package convo

import "github.com/cantolabs/canto-core/internal/audio"

// Role identifies which party a turn or transcript belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// EventType tags the session event union.
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventSessionPaused      EventType = "session_paused"
	EventSessionResumed     EventType = "session_resumed"
	EventUserSpeechStarted  EventType = "user_speech_started"
	EventUserSpeechEnded    EventType = "user_speech_ended"
	EventAgentSpeechStarted EventType = "agent_speech_started"
	EventAgentSpeechEnded   EventType = "agent_speech_ended"
	EventAgentAudio         EventType = "agent_audio"
	EventTranscript         EventType = "transcript"
	EventSessionEnded       EventType = "session_ended"
)

// Event is one entry of a session's ordered event stream. Offsets are
// milliseconds since session start. Only the fields relevant to the type are
// populated: Role and Text for transcripts, Audio for agent audio.
type Event struct {
	Type      EventType  `json:"type"`
	SessionID string     `json:"session_id"`
	OffsetMS  int64      `json:"offset_ms"`
	Role      Role       `json:"role,omitempty"`
	Text      string     `json:"text,omitempty"`
	Audio     audio.Data `json:"-"`
}
