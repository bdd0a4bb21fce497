// OpenAI and DeepSeek backends, both served by go-openai against the
// Chat Completions API.

package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// chatCompletions talks to an OpenAI-compatible Chat Completions endpoint.
// OpenAI and DeepSeek differ only in base URL and in which token limit
// field the endpoint honours.
type chatCompletions struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	// completionLimit sends max_completion_tokens instead of max_tokens.
	completionLimit bool
}

func (c *chatCompletions) Name() string  { return c.name }
func (c *chatCompletions) Model() string { return c.model }

// Chat sends the conversation with the given tool definitions.
func (c *chatCompletions) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertToOpenAIMessages(messages),
		Temperature: c.temperature,
		Tools:       convertToOpenAITools(tools),
	}
	if c.completionLimit {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}
	return createOpenAICompletion(ctx, c.name, c.client, req)
}

// OpenAIProvider is the OpenAI oracle backend.
type OpenAIProvider struct{ chatCompletions }

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{chatCompletions{
		name:        "openai",
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}}
}

// DeepSeekProvider is the DeepSeek oracle backend. DeepSeek serves an
// OpenAI-compatible API, so tool calls and usage arrive in the same shape.
type DeepSeekProvider struct{ chatCompletions }

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL
	return &DeepSeekProvider{chatCompletions{
		name:            "deepseek",
		client:          openai.NewClientWithConfig(config),
		model:           model,
		maxTokens:       int(maxTokens),
		temperature:     temperature,
		completionLimit: true,
	}}
}

// createOpenAICompletion runs a request against any OpenAI-compatible endpoint.
func createOpenAICompletion(ctx context.Context, provider string, client *openai.Client, req openai.ChatCompletionRequest) (LLMResponse, error) {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, &ProviderError{Provider: provider, StatusCode: openAIStatus(err), Err: err}
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		// Convert OpenAI tool calls to our format
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// openAIStatus extracts the HTTP status from go-openai errors.
func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// convertToOpenAIMessages handles plain messages, tool calls and tool responses.
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
// Returns nil for no tools so the field is omitted from the request.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*DeepSeekProvider)(nil)
)
