package domain

import "context"

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// Gateway is the uniform model invocation boundary. An empty string with a
// nil error means the provider answered with no text.
type Gateway interface {
	Invoke(ctx context.Context, model string, messages []Message, temperature float64) (string, error)
}
