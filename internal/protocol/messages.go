package protocol

import "time"

// AudioFrame represents PCM audio streamed from edge devices into a
// conversational session.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SessionEvent is a conversational session event broadcast on the bus.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	OffsetMS  int64     `json:"offset_ms"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentAudioChunk carries synthesized reply audio back to the edge.
type AgentAudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SynthesisScene is one scene-plan entry of a synthesis request.
type SynthesisScene struct {
	ID             string `json:"id"`
	Narration      string `json:"narration"`
	DurationFrames int    `json:"duration_frames,omitempty"`
}

// SynthesisRequest asks the synthesis service to turn a scene plan into a
// narration track. Voice and fps fall back to the node's configuration
// when omitted.
type SynthesisRequest struct {
	RequestID string           `json:"request_id"`
	Scenes    []SynthesisScene `json:"scenes"`
	VoiceID   string           `json:"voice_id,omitempty"`
	Language  string           `json:"language,omitempty"`
	FPS       int              `json:"fps,omitempty"`
}

// TimingEntry is one scene's row of the rendered timing map.
type TimingEntry struct {
	SceneID                string `json:"scene_id"`
	DurationMS             int64  `json:"duration_ms"`
	DurationFrames         int    `json:"duration_frames"`
	RecommendedSceneFrames int    `json:"recommended_scene_frames"`
}

// SynthesisResult carries the assembled track as WAV plus the timing map.
// Error is set instead of the payload when the run failed.
type SynthesisResult struct {
	RequestID  string        `json:"request_id"`
	WAVBase64  string        `json:"wav_base64,omitempty"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	FPS        int           `json:"fps,omitempty"`
	Timing     []TimingEntry `json:"timing,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// TranscribeRequest asks the transcription service to process a WAV buffer.
type TranscribeRequest struct {
	RequestID      string `json:"request_id"`
	WAVBase64      string `json:"wav_base64"`
	Language       string `json:"language,omitempty"`
	Diarize        bool   `json:"diarize,omitempty"`
	SpeakerCount   int    `json:"speaker_count,omitempty"`
	SubtitleFormat string `json:"subtitle_format,omitempty"`
}

// TranscriptSegment is one timed span of the transcript on the wire.
type TranscriptSegment struct {
	Text         string `json:"text"`
	StartMS      int64  `json:"start_ms"`
	EndMS        int64  `json:"end_ms"`
	SpeakerLabel string `json:"speaker_label,omitempty"`
}

// SpeakerSummary is one diarized speaker's roster entry.
type SpeakerSummary struct {
	Label         string `json:"label"`
	SegmentCount  int    `json:"segment_count"`
	TotalSpeechMS int64  `json:"total_speech_ms"`
}

// TranscribeResult is the transcription service's reply.
type TranscribeResult struct {
	RequestID string              `json:"request_id"`
	Text      string              `json:"text,omitempty"`
	Segments  []TranscriptSegment `json:"segments,omitempty"`
	Speakers  []SpeakerSummary    `json:"speakers,omitempty"`
	Subtitles string              `json:"subtitles,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// ChatRequest asks the chat service for one completion.
type ChatRequest struct {
	RequestID   string  `json:"request_id"`
	SessionID   string  `json:"session_id,omitempty"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ChatResponse is the chat service's reply.
type ChatResponse struct {
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix  = "convo.audio"
	SubjectSessionEvents     = "convo.session.events"
	SubjectAgentAudio        = "convo.agent.audio"
	SubjectSynthesisRequest  = "media.synthesize.request"
	SubjectSynthesisResult   = "media.synthesize.result"
	SubjectTranscribeRequest = "media.transcribe.request"
	SubjectTranscribeResult  = "media.transcribe.result"
	SubjectChatRequest       = "chat.request"
	SubjectChatResponse      = "chat.response"
)
