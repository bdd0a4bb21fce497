// Package research implements the depth-bounded recursive research engine:
// a decomposer state machine that either summarizes a topic or splits it
// into subtopics researched by child invocations.
//
// Information Hiding:
// - The execution substrate is hidden behind Invocation and Handle
// - Conversation construction and tool-call filtering hidden in Decomposer
// - Child bookkeeping hidden in Coordinator
//
// The engine takes no context.Context and starts no goroutines. Everything
// that blocks, persists or fans out goes through Invocation, so the same code
// runs on the local substrate and inside a Temporal workflow.
package research

import (
	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

// Invocation is one running research computation as seen by the engine.
type Invocation interface {
	// ID identifies this invocation within the substrate.
	ID() string

	// Logger returns a replay-safe logger scoped to this invocation.
	Logger() Logger

	// Complete asks the oracle for the next reply as a durable step.
	// A replayed step returns its recorded reply without calling the oracle.
	Complete(conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error)

	// Begin starts a child research invocation and returns without waiting.
	Begin(req model.Request) Handle
}

// Handle refers to a child invocation that may still be running.
type Handle interface {
	// Await suspends the caller until the child finishes.
	Await() (string, error)
}

// Logger is the logging surface the engine needs. Both *slog.Logger and
// Temporal's workflow logger satisfy it.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}
