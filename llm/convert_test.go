package llm

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"
)

func researchConversation() []ChatMessage {
	calls := []ToolCall{
		{ID: "call_1", Name: "research", Arguments: json.RawMessage(`{"topic":"Supervised"}`)},
		{ID: "call_2", Name: "research", Arguments: json.RawMessage(`{"topic":"Unsupervised"}`)},
	}
	return []ChatMessage{
		SystemMessage("decompose"),
		UserMessage("Machine Learning"),
		AssistantMessage("", calls),
		ToolResultMessage(calls[0], "labels"),
		ToolResultMessage(calls[1], "clusters"),
	}
}

func TestConvertToOpenAIMessagesCarriesToolCalls(t *testing.T) {
	msgs := convertToOpenAIMessages(researchConversation())
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}

	assistant := msgs[2]
	if len(assistant.ToolCalls) != 2 {
		t.Fatalf("assistant tool calls = %d, want 2", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[1].Function.Arguments != `{"topic":"Unsupervised"}` {
		t.Errorf("arguments = %q", assistant.ToolCalls[1].Function.Arguments)
	}

	if msgs[3].Role != RoleTool || msgs[3].ToolCallID != "call_1" {
		t.Errorf("first tool result = %+v", msgs[3])
	}
	if msgs[4].ToolCallID != "call_2" || msgs[4].Content != "clusters" {
		t.Errorf("second tool result = %+v", msgs[4])
	}
}

func TestConvertToOpenAIToolsEmpty(t *testing.T) {
	if got := convertToOpenAITools(nil); got != nil {
		t.Errorf("expected nil tools, got %v", got)
	}
}

func TestConvertToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs, system := convertToAnthropicMessages(researchConversation())
	if system != "decompose" {
		t.Errorf("system = %q", system)
	}
	// user, assistant, one user turn holding both results
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}

	assistant := msgs[1]
	if len(assistant.Content) != 2 {
		t.Fatalf("assistant blocks = %d, want 2 tool_use blocks", len(assistant.Content))
	}
	if assistant.Content[0].OfToolUse == nil || assistant.Content[0].OfToolUse.ID != "call_1" {
		t.Errorf("first block = %+v", assistant.Content[0])
	}

	results := msgs[2]
	if len(results.Content) != 2 {
		t.Fatalf("result blocks = %d, want 2", len(results.Content))
	}
	for i, want := range []string{"call_1", "call_2"} {
		block := results.Content[i].OfToolResult
		if block == nil {
			t.Fatalf("block %d is not a tool result", i)
		}
		if block.ToolUseID != want {
			t.Errorf("block %d tool_use_id = %q, want %q", i, block.ToolUseID, want)
		}
	}
}

func TestConvertToGeminiMessagesFunctionResponses(t *testing.T) {
	contents, system := convertToGeminiMessages(researchConversation())
	if system != "decompose" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 4 {
		t.Fatalf("len = %d, want 4", len(contents))
	}

	model := contents[1]
	if model.Role != genai.RoleModel || len(model.Parts) != 2 {
		t.Fatalf("model turn = %+v", model)
	}
	if model.Parts[0].FunctionCall.Args["topic"] != "Supervised" {
		t.Errorf("args = %v", model.Parts[0].FunctionCall.Args)
	}

	resp := contents[3].Parts[0].FunctionResponse
	if resp == nil {
		t.Fatal("expected function response")
	}
	if resp.ID != "call_2" || resp.Name != "research" || resp.Response["result"] != "clusters" {
		t.Errorf("function response = %+v", resp)
	}
}

func TestConvertToGeminiSchemaRequired(t *testing.T) {
	schema := convertToGeminiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{"type": "string", "description": "subtopic"},
		},
		"required": []string{"topic"},
	})

	if schema.Type != genai.TypeObject {
		t.Errorf("type = %v", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "topic" {
		t.Errorf("required = %v", schema.Required)
	}
	if schema.Properties["topic"].Type != genai.TypeString {
		t.Errorf("topic type = %v", schema.Properties["topic"].Type)
	}
}

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		status      int
		rateLimited bool
		retryable   bool
	}{
		{0, false, true},
		{400, false, false},
		{401, false, false},
		{429, true, true},
		{500, false, true},
		{503, false, true},
	}

	for _, tt := range tests {
		e := &ProviderError{Provider: "openai", StatusCode: tt.status}
		if e.RateLimited() != tt.rateLimited {
			t.Errorf("status %d: RateLimited = %v", tt.status, e.RateLimited())
		}
		if e.Retryable() != tt.retryable {
			t.Errorf("status %d: Retryable = %v", tt.status, e.Retryable())
		}
	}
}

func TestParseProviderType(t *testing.T) {
	tests := map[string]ProviderType{
		"openai":   ProviderOpenAI,
		"Claude":   ProviderAnthropic,
		"deepseek": ProviderDeepSeek,
		"GOOGLE":   ProviderGemini,
	}
	for in, want := range tests {
		got, err := ParseProviderType(in)
		if err != nil || got != want {
			t.Errorf("ParseProviderType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseProviderType("llama"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDecodeGeminiResponseSynthesizesCallIDs(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "splitting "},
				{FunctionCall: &genai.FunctionCall{Name: "research", Args: map[string]any{"topic": "Optics"}}},
				{FunctionCall: &genai.FunctionCall{ID: "given", Name: "research", Args: map[string]any{"topic": "Waves"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}

	out := decodeGeminiResponse(resp)
	if out.Content != "splitting " {
		t.Errorf("content = %q", out.Content)
	}
	if len(out.ToolCalls) != 2 || out.ToolCalls[0].ID != "research_0" || out.ToolCalls[1].ID != "given" {
		t.Fatalf("tool calls = %+v", out.ToolCalls)
	}
	if string(out.ToolCalls[0].Arguments) != `{"topic":"Optics"}` {
		t.Errorf("arguments = %s", out.ToolCalls[0].Arguments)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 5 {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestDecodeGeminiResponseEmpty(t *testing.T) {
	out := decodeGeminiResponse(&genai.GenerateContentResponse{})
	if out.Content != "" || out.ToolCalls != nil || out.Usage != nil {
		t.Errorf("expected empty response, got %+v", out)
	}
}
