package research

import (
	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

// ToolInvocation is a research tool call with its parsed topic.
type ToolInvocation struct {
	Call  llm.ToolCall
	Topic string
}

// Pending pairs an in-flight child with the tool call that requested it.
// A Pending is resolved exactly once by FanIn.
type Pending struct {
	Invocation ToolInvocation
	handle     Handle
	resolved   bool
}

// Outcome is a resolved child, tagged with its originating tool call.
type Outcome struct {
	Invocation ToolInvocation
	Result     string
}

// Coordinator launches and collects the children of one decomposition step.
type Coordinator struct{}

// FanOut begins one child per invocation, in order, at the given depth.
// Every child is started before any is awaited.
func (Coordinator) FanOut(inv Invocation, invocations []ToolInvocation, depth int) []*Pending {
	pending := make([]*Pending, len(invocations))
	for i, ti := range invocations {
		pending[i] = &Pending{
			Invocation: ti,
			handle:     inv.Begin(model.Request{Topic: ti.Topic, Depth: depth}),
		}
	}
	return pending
}

// FanIn awaits every pending child in creation order. The first failure
// aborts collection and is returned as a *model.ChildError; outcomes
// gathered before it are discarded.
func (Coordinator) FanIn(pending []*Pending) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(pending))
	for _, p := range pending {
		if p.resolved {
			return nil, model.Errorf(model.ErrInvariantViolation, "child for tool call %s awaited twice", p.Invocation.Call.ID)
		}
		p.resolved = true

		result, err := p.handle.Await()
		if err != nil {
			return nil, &model.ChildError{Topic: p.Invocation.Topic, Cause: err}
		}
		outcomes = append(outcomes, Outcome{Invocation: p.Invocation, Result: result})
	}
	return outcomes, nil
}
