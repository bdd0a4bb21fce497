package research

import (
	"errors"
	"testing"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

func pendingFor(topics []string, handles []Handle) []*Pending {
	out := make([]*Pending, len(topics))
	for i, topic := range topics {
		out[i] = &Pending{
			Invocation: ToolInvocation{Call: llm.ToolCall{ID: topic}, Topic: topic},
			handle:     handles[i],
		}
	}
	return out
}

func TestFanInPreservesCreationOrder(t *testing.T) {
	a := &chanHandle{done: make(chan struct{}), result: "A"}
	b := &chanHandle{done: make(chan struct{}), result: "B"}
	awaitingA := make(chan struct{})
	a.onWait = func() { close(awaitingA) }

	type result struct {
		outcomes []Outcome
		err      error
	}
	resCh := make(chan result, 1)
	go func() {
		outcomes, err := Coordinator{}.FanIn(pendingFor([]string{"a", "b"}, []Handle{a, b}))
		resCh <- result{outcomes, err}
	}()

	// B finishes first, A later
	<-awaitingA
	close(b.done)
	close(a.done)

	res := <-resCh
	if res.err != nil {
		t.Fatalf("FanIn() error = %v", res.err)
	}
	if len(res.outcomes) != 2 || res.outcomes[0].Result != "A" || res.outcomes[1].Result != "B" {
		t.Errorf("outcomes = %+v, want A then B", res.outcomes)
	}
}

func TestFanInChildFailureDiscardsPartialResults(t *testing.T) {
	ok := &chanHandle{done: make(chan struct{}), result: "fine"}
	bad := &chanHandle{done: make(chan struct{}), err: model.ErrOracleUnavailable}
	never := &chanHandle{done: make(chan struct{})}
	close(ok.done)
	close(bad.done)

	outcomes, err := Coordinator{}.FanIn(pendingFor([]string{"ok", "bad", "never"}, []Handle{ok, bad, never}))
	if outcomes != nil {
		t.Errorf("outcomes = %+v, want nil", outcomes)
	}

	var ce *model.ChildError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *model.ChildError", err)
	}
	if ce.Topic != "bad" {
		t.Errorf("Topic = %q, want bad", ce.Topic)
	}
	if !errors.Is(err, model.ErrOracleUnavailable) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestFanInRejectsSecondAwait(t *testing.T) {
	h := &chanHandle{done: make(chan struct{}), result: "once"}
	close(h.done)
	pending := pendingFor([]string{"x"}, []Handle{h})

	if _, err := (Coordinator{}).FanIn(pending); err != nil {
		t.Fatalf("first FanIn() error = %v", err)
	}
	_, err := Coordinator{}.FanIn(pending)
	if !errors.Is(err, model.ErrInvariantViolation) {
		t.Errorf("second FanIn() error = %v, want ErrInvariantViolation", err)
	}
}

func TestFanOutStartsChildrenAtGivenDepth(t *testing.T) {
	f := newFake(model.Request{Topic: "root", Depth: 3}, nil)
	invs := []ToolInvocation{{Topic: "one"}, {Topic: "two"}}

	pending := Coordinator{}.FanOut(f, invs, 2)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	for i, req := range f.rec.children {
		if req.Depth != 2 || req.Topic != invs[i].Topic {
			t.Errorf("child %d = %+v", i, req)
		}
	}
	if pending[1].Invocation.Topic != "two" {
		t.Errorf("pending order = %+v", pending)
	}
}
