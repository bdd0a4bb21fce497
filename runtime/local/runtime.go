// Package local runs research on the in-process durable engine.
//
// Information Hiding:
// - Mapping of research.Invocation onto durable.Context hidden here
// - Oracle calls become the journaled step "complete"; children become
//   durable child invocations of the same handler
package local

import (
	"context"
	"log/slog"
	"time"

	"github.com/richinex/spindle/durable"
	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/research"
)

// HandlerName is the registered name of the research computation.
const HandlerName = "research"

// CompleteStep is the journal name of an oracle call.
const CompleteStep = "complete"

// Oracle produces the next reply of a conversation.
type Oracle interface {
	Complete(ctx context.Context, conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error)
}

// Runtime binds the research engine to a durable engine and an oracle.
type Runtime struct {
	engine   *durable.Engine
	oracle   Oracle
	research []research.Option
	metrics  *Metrics
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithResearchOptions passes options to every decomposer.
func WithResearchOptions(opts ...research.Option) Option {
	return func(r *Runtime) { r.research = append(r.research, opts...) }
}

// New registers the research handler on engine.
func New(engine *durable.Engine, oracle Oracle, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		engine:  engine,
		oracle:  oracle,
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := engine.Register(HandlerName, r.handle); err != nil {
		return nil, err
	}
	return r, nil
}

// Run researches req as the root invocation id, resuming it if it exists.
func (r *Runtime) Run(ctx context.Context, id string, req model.Request) (string, error) {
	start := time.Now()
	defer func() { r.metrics.TotalDuration.Add(int64(time.Since(start))) }()
	return r.engine.Run(ctx, HandlerName, id, req)
}

// Tree returns the invocation records under root id.
func (r *Runtime) Tree(ctx context.Context, id string) ([]*model.InvocationRecord, error) {
	return r.engine.Tree(ctx, id)
}

// Metrics returns the runtime's counters.
func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

func (r *Runtime) handle(c *durable.Context, req model.Request) (string, error) {
	r.metrics.Invocations.Add(1)
	r.metrics.recordLevel(c.ID())
	return research.Research(&invocation{c: c, rt: r}, req, r.research...)
}

// RetryableOracleError is a durable.StepPolicy filter that retries only
// provider failures that may succeed on resend.
func RetryableOracleError(err error) bool {
	if pe, ok := llm.AsProviderError(err); ok {
		return pe.Retryable()
	}
	return true
}

type completeArgs struct {
	Conversation []llm.ChatMessage `json:"conversation"`
	ToolsEnabled bool              `json:"tools_enabled"`
}

// invocation adapts a durable.Context to research.Invocation.
type invocation struct {
	c  *durable.Context
	rt *Runtime
}

func (i *invocation) ID() string { return i.c.ID() }

func (i *invocation) Logger() research.Logger { return i.c.Logger() }

func (i *invocation) Complete(conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error) {
	args := completeArgs{Conversation: conversation, ToolsEnabled: toolsEnabled}
	return durable.RunStep(i.c, CompleteStep, args, func(ctx context.Context) (llm.LLMResponse, error) {
		i.rt.metrics.OracleCalls.Add(1)
		resp, err := i.rt.oracle.Complete(ctx, conversation, toolsEnabled)
		if err != nil {
			return llm.LLMResponse{}, err
		}
		i.rt.metrics.recordUsage(resp.Usage)
		return resp, nil
	})
}

func (i *invocation) Begin(req model.Request) research.Handle {
	return i.c.Begin(HandlerName, req)
}

var (
	_ research.Invocation = (*invocation)(nil)
	_ research.Logger     = (*slog.Logger)(nil)
)
