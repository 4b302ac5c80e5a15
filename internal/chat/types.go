package chat

import "context"

// Message is one entry of a conversation history.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request describes a chat completion call.
type Request struct {
	Messages       []Message
	Model          string
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "" or "json"
}

// Generator is the pluggable conversational text-generation backend.
type Generator interface {
	Chat(ctx context.Context, req Request) (string, error)
}
