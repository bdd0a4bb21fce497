package research

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

// oracleFunc scripts the oracle by topic and depth, not call order.
type oracleFunc func(topic string, depth int, conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error)

// recorder is shared by a fake invocation tree.
type recorder struct {
	mu       sync.Mutex
	events   []string
	oracle   []oracleCall
	children []model.Request
}

type oracleCall struct {
	Topic        string
	Depth        int
	ToolsEnabled bool
}

func (r *recorder) event(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// fakeInvocation runs children synchronously when they are awaited.
type fakeInvocation struct {
	id     string
	req    model.Request
	oracle oracleFunc
	rec    *recorder
	seq    int
	last   []llm.ChatMessage
}

func newFake(req model.Request, oracle oracleFunc) *fakeInvocation {
	return &fakeInvocation{id: "root", req: req, oracle: oracle, rec: &recorder{}}
}

func (f *fakeInvocation) ID() string { return f.id }

func (f *fakeInvocation) Logger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeInvocation) Complete(conversation []llm.ChatMessage, toolsEnabled bool) (llm.LLMResponse, error) {
	f.rec.mu.Lock()
	f.rec.oracle = append(f.rec.oracle, oracleCall{Topic: f.req.Topic, Depth: f.req.Depth, ToolsEnabled: toolsEnabled})
	f.rec.mu.Unlock()
	f.last = append([]llm.ChatMessage(nil), conversation...)
	return f.oracle(f.req.Topic, f.req.Depth, conversation, toolsEnabled)
}

func (f *fakeInvocation) Begin(req model.Request) Handle {
	f.seq++
	child := &fakeInvocation{
		id:     fmt.Sprintf("%s/%d", f.id, f.seq),
		req:    req,
		oracle: f.oracle,
		rec:    f.rec,
	}
	f.rec.mu.Lock()
	f.rec.children = append(f.rec.children, req)
	f.rec.mu.Unlock()
	f.rec.event("begin %s", req.Topic)
	return &lazyHandle{child: child}
}

type lazyHandle struct {
	child *fakeInvocation
}

func (h *lazyHandle) Await() (string, error) {
	h.child.rec.event("await %s", h.child.req.Topic)
	return Research(h.child, h.child.req)
}

// chanHandle resolves when the test closes done.
type chanHandle struct {
	done   chan struct{}
	result string
	err    error
	onWait func()
}

func (h *chanHandle) Await() (string, error) {
	if h.onWait != nil {
		h.onWait()
	}
	<-h.done
	return h.result, h.err
}

func researchCall(id, topic string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"topic": topic})
	return llm.ToolCall{ID: id, Name: "research", Arguments: args}
}

func decompose(topics ...string) llm.LLMResponse {
	calls := make([]llm.ToolCall, len(topics))
	for i, t := range topics {
		calls[i] = researchCall(fmt.Sprintf("call_%d", i+1), t)
	}
	return llm.LLMResponse{ToolCalls: calls}
}

func summary(content string) llm.LLMResponse {
	return llm.LLMResponse{Content: content}
}

// toolResults returns the tool messages of a conversation.
func toolResults(conv []llm.ChatMessage) []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, m := range conv {
		if m.Role == llm.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

// hasToolResults reports whether the conversation already holds child results.
func hasToolResults(conv []llm.ChatMessage) bool {
	return len(toolResults(conv)) > 0
}

// combine joins tool results the way a summarizing oracle might.
func combine(conv []llm.ChatMessage) string {
	var parts []string
	for _, m := range toolResults(conv) {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " + ")
}
