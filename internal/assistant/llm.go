// Package assistant answers customer questions and drafts staff replies
// with a large language model. The model is an opaque collaborator; this
// package only shapes the venue context it is given.
package assistant

import "context"

// Conversation roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a provider-neutral completion request. System holds instruction
// blocks sent ahead of the conversation.
type Prompt struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

// Usage counts tokens billed for one completion.
type Usage struct {
	PromptTokens int
	OutputTokens int
}

func (u Usage) Total() int { return u.PromptTokens + u.OutputTokens }

// Completion is the model's reply.
type Completion struct {
	Text       string
	StopReason string
	Usage      Usage
}

// LLMClient completes a chat.
type LLMClient interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}
