package temporal

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/richinex/spindle/llm"
)

// Oracle produces the next reply of a conversation.
type Oracle interface {
	Complete(ctx context.Context, conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error)
}

// CompleteInput is the argument of the Complete activity.
type CompleteInput struct {
	Conversation []llm.ChatMessage `json:"conversation"`
	ToolsEnabled bool              `json:"tools_enabled"`
}

// Activities are the side effects of the research workflow.
type Activities struct {
	Oracle Oracle
}

// Complete asks the oracle for one reply.
func (a *Activities) Complete(ctx context.Context, in CompleteInput) (llm.LLMResponse, error) {
	info := activity.GetInfo(ctx)
	activity.GetLogger(ctx).Debug("oracle call",
		"workflow_id", info.WorkflowExecution.ID,
		"attempt", info.Attempt,
		"tools_enabled", in.ToolsEnabled,
	)

	resp, err := a.Oracle.Complete(ctx, in.Conversation, in.ToolsEnabled)
	if err != nil {
		return llm.LLMResponse{}, toApplicationError(err)
	}
	return resp, nil
}
