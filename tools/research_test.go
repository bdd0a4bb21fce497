package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    string
		wantErr bool
	}{
		{name: "valid topic", args: `{"topic":"Supervised Learning"}`, want: "Supervised Learning"},
		{name: "empty topic accepted", args: `{"topic":""}`, want: ""},
		{name: "extra fields ignored", args: `{"topic":"RL","why":"broad"}`, want: "RL"},
		{name: "invalid json", args: `{invalid}`, wantErr: true},
		{name: "missing topic", args: `{"subject":"x"}`, wantErr: true},
		{name: "numeric topic", args: `{"topic":42}`, wantErr: true},
		{name: "null topic", args: `{"topic":null}`, wantErr: false, want: ""},
		{name: "array payload", args: `["topic"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := llm.ToolCall{ID: "call_1", Name: ResearchToolName, Arguments: json.RawMessage(tt.args)}
			got, err := ParseTopic(call)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTopic() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, model.ErrMalformedToolArguments) {
					t.Errorf("error %v is not ErrMalformedToolArguments", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseTopic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResearchToolValidate(t *testing.T) {
	tool := NewResearchTool()
	if err := tool.Validate(json.RawMessage(`{"topic":"Ensemble Methods"}`)); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	err := tool.Validate(json.RawMessage(`{}`))
	if !errors.Is(err, model.ErrMalformedToolArguments) {
		t.Errorf("Validate() error = %v, want ErrMalformedToolArguments", err)
	}
}

func TestResearchToolDefinition(t *testing.T) {
	def := NewResearchTool().Metadata().Definition()
	if def.Name != "research" {
		t.Errorf("Name = %q, want research", def.Name)
	}
	required, ok := def.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "topic" {
		t.Errorf("required = %v", def.Parameters["required"])
	}
	props := def.Parameters["properties"].(map[string]interface{})
	topic := props["topic"].(map[string]interface{})
	if topic["type"] != "string" {
		t.Errorf("topic type = %v", topic["type"])
	}
}

func TestRegistry(t *testing.T) {
	r := Default()
	if _, ok := r.Get(ResearchToolName); !ok {
		t.Fatal("default registry has no research tool")
	}
	if err := r.Register(NewResearchTool()); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	defs := r.Definitions()
	if len(defs) != 1 || defs[0].Name != ResearchToolName {
		t.Errorf("Definitions() = %+v", defs)
	}
	if got := Definitions([]Tool{NewResearchTool()}); len(got) != 1 {
		t.Errorf("Definitions() len = %d", len(got))
	}
}
