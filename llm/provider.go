// Package llm adapts hosted chat models to the research oracle.
//
// Every backend speaks the same small dialect: a conversation of
// ChatMessage values in, one LLMResponse out. Tool calls and tool results
// travel inside the conversation, so a backend only has to translate them
// to its wire format and back. Failures are reported as *ProviderError so
// callers can tell a transient outage from a rejected request.
package llm

import "context"

// Provider is one chat model behind a vendor API.
type Provider interface {
	// Name is the canonical provider name, e.g. "anthropic".
	Name() string

	Model() string

	// Chat completes the conversation. An empty tools slice means the model
	// may not request tool calls, even if earlier turns contain some.
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
