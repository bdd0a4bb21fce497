// Gemini backend on google.golang.org/genai. Gemini may omit function call
// ids; missing ones are synthesized from the call name and position so tool
// results can still be matched to their calls.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider is the Gemini oracle backend.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	config    genai.GenerateContentConfig
	clientErr error
}

// NewGeminiProvider creates a new Gemini provider. Client construction
// errors are kept and reported by Chat, so the factory signature stays
// uniform across backends.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		model: model,
		config: genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(maxTokens),
		},
	}
	p.client, p.clientErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if p.clientErr != nil {
		p.clientErr = fmt.Errorf("failed to initialize Gemini client: %w", p.clientErr)
	}
	return p
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if p.clientErr != nil {
		return LLMResponse{}, &ProviderError{Provider: p.Name(), Err: p.clientErr}
	}

	contents, system := convertToGeminiMessages(messages)
	config := p.config
	config.Tools = convertToGeminiTools(tools)
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &config)
	if err != nil {
		return LLMResponse{}, &ProviderError{Provider: p.Name(), StatusCode: geminiStatus(err), Err: err}
	}
	return decodeGeminiResponse(resp), nil
}

// geminiStatus extracts the HTTP status from genai API errors.
func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

// decodeGeminiResponse reads the first candidate. Function calls without an
// id get "<name>_<index>" so their results can be matched back.
func decodeGeminiResponse(resp *genai.GenerateContentResponse) LLMResponse {
	var out LLMResponse
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
			call := part.FunctionCall
			if call == nil {
				continue
			}
			id := call.ID
			if id == "" {
				id = fmt.Sprintf("%s_%d", call.Name, len(out.ToolCalls))
			}
			args, _ := json.Marshal(call.Args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: call.Name, Arguments: args})
		}
		out.Content = text.String()
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &TokenUsage{
			PromptTokens:     uint32(u.PromptTokenCount),
			CompletionTokens: uint32(u.CandidatesTokenCount),
			TotalTokens:      uint32(u.TotalTokenCount),
		}
	}
	return out
}

// convertToGeminiMessages converts our ChatMessage to Gemini format.
// Extracts system message and returns it separately.
func convertToGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
				continue
			}
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: args,
					},
				})
			}
			contents = append(contents, content)
		case RoleTool:
			// Gemini expects tool results as user turns
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

// convertToGeminiTools converts tool definitions to Gemini format.
func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertToGeminiSchema(t.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertToGeminiSchema converts a JSON schema object to Gemini format.
func convertToGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{
		Type: genai.TypeObject,
	}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}

	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				schema.Properties[name] = convertToGeminiSchema(propMap)
			}
		}
	}

	// Gemini requires 'items' for arrays
	if schema.Type == genai.TypeArray {
		if items, ok := params["items"].(map[string]interface{}); ok {
			schema.Items = convertToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	return schema
}

var geminiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// mapToGeminiType maps a JSON schema type name; unknown names become strings.
func mapToGeminiType(t string) genai.Type {
	if gt, ok := geminiTypes[t]; ok {
		return gt
	}
	return genai.TypeString
}

var _ Provider = (*GeminiProvider)(nil)
