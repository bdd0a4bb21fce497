// Package tools describes the tools offered to the reasoning oracle.
//
// Information Hiding:
// - Parameter schemas hidden behind ToolMetadata
// - Provider-neutral JSON schema encoding hidden in Definition
// - Argument decoding and validation internalized per tool
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/spindle/llm"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Definition encodes the metadata as a JSON-schema tool definition.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	props := make(map[string]interface{}, len(m.Parameters))
	required := []string{}
	for _, p := range m.Parameters {
		props[p.Name] = map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Tool is a capability the oracle may request. Execution is owned by the
// caller (the research coordinator runs children); tools only describe
// themselves and check their arguments.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Validate validates arguments before they are acted upon.
	Validate(args json.RawMessage) error
}

// Definitions converts tools to provider-neutral definitions, keeping order.
func Definitions(tools []Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Metadata().Definition()
	}
	return defs
}
