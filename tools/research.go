package tools

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

// ResearchToolName is the only tool name the decomposer acts on.
const ResearchToolName = "research"

// ResearchTool asks for a subtopic to be researched by a child invocation.
type ResearchTool struct{}

// NewResearchTool returns the research tool descriptor.
func NewResearchTool() *ResearchTool {
	return &ResearchTool{}
}

func (t *ResearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        ResearchToolName,
		Description: "Research a given topic",
		Parameters: []ToolParameter{
			{Name: "topic", ParamType: "string", Description: "The topic to research", Required: true},
		},
	}
}

func (t *ResearchTool) Validate(args json.RawMessage) error {
	if _, err := decodeTopic(args); err != nil {
		return model.Errorf(model.ErrMalformedToolArguments, "%v", err)
	}
	return nil
}

// ParseTopic extracts the topic from a research tool call.
// An empty topic is accepted here; the child invocation rejects it.
func ParseTopic(call llm.ToolCall) (string, error) {
	topic, err := decodeTopic(call.Arguments)
	if err != nil {
		return "", model.Errorf(model.ErrMalformedToolArguments, "tool call %s: %v", call.ID, err)
	}
	return topic, nil
}

func decodeTopic(args json.RawMessage) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	raw, ok := fields["topic"]
	if !ok {
		return "", fmt.Errorf("missing field %q", "topic")
	}
	var topic string
	if err := json.Unmarshal(raw, &topic); err != nil {
		return "", fmt.Errorf("field %q must be a string", "topic")
	}
	return topic, nil
}

var _ Tool = (*ResearchTool)(nil)
