// Package llm routes natural-language queries to an ordered list of
// interchangeable language-model backends with per-attempt timeouts and
// deterministic fallback.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend is one language-model provider. Implementations are stateless
// apart from credentials and safe to reuse across calls.
type Backend interface {
	Name() string
	Query(ctx context.Context, messages []Message) (string, error)
}
