// Package temporal runs research on Temporal: one workflow per invocation,
// one activity per oracle call and one child workflow per subtopic.
//
// Information Hiding:
// - Mapping of research.Invocation onto workflow.Context hidden here
// - Error kinds cross the Temporal boundary as ApplicationError types
// - Child workflow ids derived from the parent id, so trees are addressable
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/research"
)

// Registered names.
const (
	WorkflowName     = "research"
	CompleteActivity = "complete"
)

// Defaults for activity execution.
const (
	DefaultActivityTimeout = 2 * time.Minute
	DefaultMaxAttempts     = 1
	retryInitialInterval   = 100 * time.Millisecond
	retryMaximumInterval   = 5 * time.Second
)

// Workflows holds the research workflow and its execution settings.
type Workflows struct {
	ActivityTimeout time.Duration
	MaxAttempts     int32
	Research        []research.Option
}

// activityOptions mirrors the local step policy: exponential backoff
// from 100ms capped at 5s.
func (w *Workflows) activityOptions() workflow.ActivityOptions {
	timeout := w.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        retryInitialInterval,
			BackoffCoefficient:     2,
			MaximumInterval:        retryMaximumInterval,
			MaximumAttempts:        attempts,
			NonRetryableErrorTypes: nonRetryableKinds,
		},
	}
}

// Run is the research workflow. Its workflow id is the invocation id.
func (w *Workflows) Run(ctx workflow.Context, req model.Request) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, w.activityOptions())
	inv := &workflowInvocation{
		ctx:    ctx,
		id:     workflow.GetInfo(ctx).WorkflowExecution.ID,
		logger: workflow.GetLogger(ctx),
	}
	inv.logger.Info("research workflow started", "topic", req.Topic, "depth", req.Depth)

	result, err := research.Research(inv, req, w.Research...)
	if err != nil {
		inv.logger.Error("research workflow failed", "topic", req.Topic, "error", err)
		return "", toApplicationError(err)
	}
	return result, nil
}

// workflowInvocation adapts a workflow.Context to research.Invocation.
// Activities and children share one sequence, as in the local journal.
type workflowInvocation struct {
	ctx    workflow.Context
	id     string
	logger research.Logger
	seq    int
}

func (i *workflowInvocation) ID() string { return i.id }

func (i *workflowInvocation) Logger() research.Logger { return i.logger }

func (i *workflowInvocation) Complete(conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error) {
	i.seq++
	var resp llm.LLMResponse
	in := CompleteInput{Conversation: conversation, ToolsEnabled: toolsEnabled}
	if err := workflow.ExecuteActivity(i.ctx, CompleteActivity, in).Get(i.ctx, &resp); err != nil {
		err = fromTemporal(err)
		// timeouts and cancellations carry no kind
		if model.KindName(err) == "" {
			err = fmt.Errorf("%w: %w", model.ErrOracleUnavailable, err)
		}
		return llm.LLMResponse{}, &model.StepError{Step: CompleteActivity, Cause: err}
	}
	return resp, nil
}

func (i *workflowInvocation) Begin(req model.Request) research.Handle {
	i.seq++
	childCtx := workflow.WithChildOptions(i.ctx, workflow.ChildWorkflowOptions{
		WorkflowID: fmt.Sprintf("%s/%d", i.id, i.seq),
	})
	return &childHandle{
		ctx:    i.ctx,
		future: workflow.ExecuteChildWorkflow(childCtx, WorkflowName, req),
	}
}

// childHandle waits on a child workflow.
type childHandle struct {
	ctx     workflow.Context
	future  workflow.ChildWorkflowFuture
	awaited bool
}

func (h *childHandle) Await() (string, error) {
	if h.awaited {
		return "", model.Errorf(model.ErrInvariantViolation, "child awaited twice")
	}
	h.awaited = true

	var result string
	if err := h.future.Get(h.ctx, &result); err != nil {
		return "", fromTemporal(err)
	}
	return result, nil
}

var _ research.Invocation = (*workflowInvocation)(nil)
