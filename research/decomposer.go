package research

import (
	"fmt"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/tools"
)

// DefaultMaxRounds bounds oracle rounds per invocation.
const DefaultMaxRounds = 8

// State is a decomposer state.
type State int

const (
	StateInit State = iota
	StateAwaitingOracle
	StateTerminal
	StateDecomposing
	StateAwaitingChildren
	StateDone
)

var stateNames = [...]string{"init", "awaiting_oracle", "terminal", "decomposing", "awaiting_children", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// validTransitions lists the successors allowed from each state.
var validTransitions = map[State][]State{
	StateInit:             {StateAwaitingOracle},
	StateAwaitingOracle:   {StateTerminal, StateDecomposing},
	StateTerminal:         {StateDone},
	StateDecomposing:      {StateAwaitingChildren},
	StateAwaitingChildren: {StateAwaitingOracle},
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithMaxRounds overrides DefaultMaxRounds. Values below 1 are ignored.
func WithMaxRounds(n int) Option {
	return func(d *Decomposer) {
		if n > 0 {
			d.maxRounds = n
		}
	}
}

// Decomposer drives the research of one topic. It is single use.
type Decomposer struct {
	inv          Invocation
	req          model.Request
	maxRounds    int
	coord        Coordinator
	state        State
	rounds       int
	conversation []llm.ChatMessage
	log          Logger
}

// NewDecomposer creates a decomposer for req running on inv.
func NewDecomposer(inv Invocation, req model.Request, opts ...Option) *Decomposer {
	d := &Decomposer{
		inv:       inv,
		req:       req,
		maxRounds: DefaultMaxRounds,
		state:     StateInit,
		log:       inv.Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Research runs a decomposer to completion. It is the handler registered
// under the name "research" on every substrate.
func Research(inv Invocation, req model.Request, opts ...Option) (string, error) {
	return NewDecomposer(inv, req, opts...).Run()
}

// State returns the current state.
func (d *Decomposer) State() State {
	return d.state
}

// Conversation returns a copy of the conversation so far.
func (d *Decomposer) Conversation() []llm.ChatMessage {
	return append([]llm.ChatMessage(nil), d.conversation...)
}

func (d *Decomposer) transition(to State) error {
	for _, next := range validTransitions[d.state] {
		if next == to {
			d.state = to
			return nil
		}
	}
	return model.Errorf(model.ErrInvariantViolation, "decomposer cannot move from %s to %s", d.state, to)
}

// Run executes the state machine until it returns a summary or fails.
func (d *Decomposer) Run() (string, error) {
	if d.state != StateInit {
		return "", model.Errorf(model.ErrInvariantViolation, "decomposer already run (state %s)", d.state)
	}
	if err := d.req.Validate(); err != nil {
		return "", err
	}

	d.log.Info("research started", "invocation", d.inv.ID(), "topic", d.req.Topic, "depth", d.req.Depth)
	d.conversation = InitialConversation(d.req.Topic)
	if err := d.transition(StateAwaitingOracle); err != nil {
		return "", err
	}

	for {
		if d.rounds >= d.maxRounds {
			return "", model.Errorf(model.ErrInvariantViolation, "oracle rounds exhausted after %d rounds", d.rounds)
		}
		d.rounds++

		reply, err := d.inv.Complete(d.conversation, d.req.Depth > 0)
		if err != nil {
			return "", err
		}
		d.conversation = append(d.conversation, reply.Message())

		if len(reply.ToolCalls) == 0 {
			if err := d.transition(StateTerminal); err != nil {
				return "", err
			}
			if err := d.transition(StateDone); err != nil {
				return "", err
			}
			d.log.Info("research completed", "invocation", d.inv.ID(), "rounds", d.rounds)
			return reply.Content, nil
		}

		if err := d.transition(StateDecomposing); err != nil {
			return "", err
		}
		invocations, err := d.subtopics(reply.ToolCalls)
		if err != nil {
			return "", err
		}

		if err := d.transition(StateAwaitingChildren); err != nil {
			return "", err
		}
		d.log.Debug("fanning out", "invocation", d.inv.ID(), "children", len(invocations), "child_depth", d.req.Depth-1)
		pending := d.coord.FanOut(d.inv, invocations, d.req.Depth-1)
		outcomes, err := d.coord.FanIn(pending)
		if err != nil {
			return "", err
		}
		for _, o := range outcomes {
			d.conversation = append(d.conversation, llm.ToolResultMessage(o.Invocation.Call, o.Result))
		}
		d.answerIgnored(reply.ToolCalls)

		if err := d.transition(StateAwaitingOracle); err != nil {
			return "", err
		}
	}
}

// subtopics keeps research calls in reply order and parses their topics.
func (d *Decomposer) subtopics(calls []llm.ToolCall) ([]ToolInvocation, error) {
	if d.req.Depth <= 0 {
		return nil, model.Errorf(model.ErrInvariantViolation, "decomposition requested at depth %d", d.req.Depth)
	}

	var out []ToolInvocation
	for _, call := range calls {
		if call.Name != tools.ResearchToolName {
			d.log.Warn("ignoring unknown tool", "invocation", d.inv.ID(), "tool", call.Name, "call_id", call.ID)
			continue
		}
		topic, err := tools.ParseTopic(call)
		if err != nil {
			return nil, err
		}
		out = append(out, ToolInvocation{Call: call, Topic: topic})
	}

	if len(out) == 0 {
		return nil, model.Errorf(model.ErrInvariantViolation, "decomposition requested with no research subtopics")
	}
	return out, nil
}

// answerIgnored appends a result for each unknown tool call so the
// conversation stays well formed for providers that require one reply
// per call.
func (d *Decomposer) answerIgnored(calls []llm.ToolCall) {
	for _, call := range calls {
		if call.Name == tools.ResearchToolName {
			continue
		}
		d.conversation = append(d.conversation, llm.ToolResultMessage(call, fmt.Sprintf("unknown tool %q ignored", call.Name)))
	}
}
