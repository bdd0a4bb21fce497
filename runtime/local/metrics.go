package local

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/richinex/spindle/llm"
)

// Metrics tracks execution statistics of one runtime.
type Metrics struct {
	OracleCalls      atomic.Int64 // oracle requests actually sent (replays excluded)
	Invocations      atomic.Int64 // invocations entered, root included
	MaxLevel         atomic.Int64 // deepest nesting level reached, root is 0
	PromptTokens     atomic.Int64
	CompletionTokens atomic.Int64
	TotalDuration    atomic.Int64 // nanoseconds spent in Run
}

func (m *Metrics) recordUsage(u *llm.TokenUsage) {
	if u == nil {
		return
	}
	m.PromptTokens.Add(int64(u.PromptTokens))
	m.CompletionTokens.Add(int64(u.CompletionTokens))
}

// recordLevel raises MaxLevel to the level of invocation id.
func (m *Metrics) recordLevel(id string) {
	level := int64(strings.Count(id, "/"))
	for {
		current := m.MaxLevel.Load()
		if level <= current {
			return
		}
		if m.MaxLevel.CompareAndSwap(current, level) {
			return
		}
	}
}

// String returns a human-readable summary.
func (m *Metrics) String() string {
	duration := time.Duration(m.TotalDuration.Load())
	return fmt.Sprintf(
		"Oracle calls: %d | Invocations: %d | Max level: %d | Tokens: %d in / %d out | Duration: %s",
		m.OracleCalls.Load(),
		m.Invocations.Load(),
		m.MaxLevel.Load(),
		m.PromptTokens.Load(),
		m.CompletionTokens.Load(),
		duration.Round(time.Millisecond),
	)
}
