// Package oracle is the client of the reasoning oracle: one completion
// request per call, with the research tool offered only when the caller
// still has depth budget.
//
// Information Hiding:
// - Provider selection and tool encoding hidden behind Complete
// - Provider failures normalized to model.ErrOracleUnavailable
package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richinex/spindle/internal/logging"
	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/tools"
)

// Client sends conversations to a provider.
type Client struct {
	provider llm.Provider
	tools    []llm.ToolDefinition
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for provider failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRegistry replaces the offered tools with the registry's definitions.
func WithRegistry(r *tools.Registry) Option {
	return func(c *Client) { c.tools = r.Definitions() }
}

// New creates a client offering the research tool.
func New(provider llm.Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		tools:    tools.Default().Definitions(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete requests one reply. When toolsEnabled is false no tool
// definitions are sent, so the reply can only be a summary.
func (c *Client) Complete(ctx context.Context, conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error) {
	var offered []llm.ToolDefinition
	if toolsEnabled {
		offered = c.tools
	}

	// prefer the invocation-scoped logger the engine stores in ctx
	logger := logging.FromContextOr(ctx, c.logger)

	resp, err := c.provider.Chat(ctx, conversation, offered)
	if err != nil {
		attrs := []any{"provider", c.provider.Name(), "model", c.provider.Model(), "error", err}
		if pe, ok := llm.AsProviderError(err); ok && pe.RateLimited() {
			logger.Warn("oracle rate limited", attrs...)
		} else {
			logger.Error("oracle request failed", attrs...)
		}
		return llm.LLMResponse{}, fmt.Errorf("%w: %w", model.ErrOracleUnavailable, err)
	}

	logger.Debug("oracle replied",
		"provider", c.provider.Name(),
		"tool_calls", len(resp.ToolCalls),
		"tools_enabled", toolsEnabled,
	)
	return resp, nil
}
