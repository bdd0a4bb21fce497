// Anthropic backend on the Messages API. The system prompt travels outside
// the message list and tool traffic is encoded as tool_use and tool_result
// content blocks.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the Claude oracle backend.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	return &AnthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	turns, system := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    turns,
		Temperature: anthropic.Float(p.temperature),
	}
	if len(tools) > 0 {
		params.Tools = convertToAnthropicTools(tools)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, &ProviderError{Provider: p.Name(), StatusCode: anthropicStatus(err), Err: err}
	}
	return decodeAnthropicMessage(msg), nil
}

// decodeAnthropicMessage concatenates text blocks and collects tool_use blocks.
func decodeAnthropicMessage(msg *anthropic.Message) LLMResponse {
	var (
		out  LLMResponse
		text strings.Builder
	)
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: v.ID, Name: v.Name, Arguments: args})
		}
	}
	out.Content = text.String()

	in, gen := msg.Usage.InputTokens, msg.Usage.OutputTokens
	if in > 0 || gen > 0 {
		out.Usage = &TokenUsage{
			PromptTokens:     uint32(in),
			CompletionTokens: uint32(gen),
			TotalTokens:      uint32(in + gen),
		}
	}
	return out
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// convertToAnthropicMessages converts our ChatMessage to Anthropic format.
// The system message is returned separately. Consecutive tool results are
// grouped into a single user turn, as the Messages API expects all results
// for one assistant turn together.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == RoleTool {
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flushResults()

		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			param := anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
			}
			if msg.Content != "" {
				param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			anthropicMessages = append(anthropicMessages, param)
		}
	}
	flushResults()

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		// Extract properties and required from the full schema
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

var _ Provider = (*AnthropicProvider)(nil)
