package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/richinex/spindle/model"
)

// Context is the handle a running handler uses to reach the substrate.
// It belongs to one invocation and must only be used from that
// invocation's goroutine.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *Engine
	rec    *model.InvocationRecord
	logger *slog.Logger
	replay map[int]model.StepEntry
	seq    int
	wg     sync.WaitGroup
}

func newContext(parent context.Context, e *Engine, rec *model.InvocationRecord, steps []model.StepEntry, logger *slog.Logger) *Context {
	ctx, cancel := context.WithCancel(parent)
	replay := make(map[int]model.StepEntry, len(steps))
	for _, s := range steps {
		replay[s.Seq] = s
	}
	return &Context{
		ctx:    ctx,
		cancel: cancel,
		engine: e,
		rec:    rec,
		logger: logger,
		replay: replay,
	}
}

// Context returns the cancellation context of the invocation.
func (c *Context) Context() context.Context { return c.ctx }

// ID returns the invocation id.
func (c *Context) ID() string { return c.rec.ID }

// Logger returns a logger scoped to the invocation.
func (c *Context) Logger() *slog.Logger { return c.logger }

func (c *Context) nextSeq() int {
	c.seq++
	return c.seq
}

// shutdown cancels children that were never awaited and waits for them.
func (c *Context) shutdown() {
	c.cancel()
	c.wg.Wait()
}

// Begin starts the named handler as a child invocation and returns at once.
// The child id is the parent id plus the call-site sequence number, so a
// resumed parent re-attaches to the same child.
func (c *Context) Begin(name string, req model.Request) *Handle {
	seq := c.nextSeq()
	childID := fmt.Sprintf("%s/%d", c.rec.ID, seq)
	h := &Handle{id: childID, topic: req.Topic, parent: c, done: make(chan struct{})}

	if err := c.journalBegin(seq, name, childID, req); err != nil {
		h.err = err
		close(h.done)
		return h
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(h.done)
		h.result, h.err = c.engine.invoke(c.ctx, name, childID, c.rec.ID, req)
	}()
	return h
}

// journalBegin records the child start as a step so that replay can detect
// a handler that no longer begins the same child at this call site.
func (c *Context) journalBegin(seq int, name, childID string, req model.Request) error {
	stepName := "begin " + name
	args, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode child request: %w", err)
	}
	fp := Fingerprint(stepName, args)

	if entry, ok := c.replay[seq]; ok {
		if entry.Name != stepName || entry.Fingerprint != fp {
			return model.Errorf(model.ErrNonDeterministic, "call %d of %s: journaled %q, replayed %q", seq, c.rec.ID, entry.Name, stepName)
		}
		return nil
	}

	output, _ := json.Marshal(childID)
	return c.engine.journal.AppendStep(c.ctx, model.StepEntry{
		InvocationID: c.rec.ID,
		Seq:          seq,
		Name:         stepName,
		Fingerprint:  fp,
		Output:       output,
		CreatedAt:    c.engine.now(),
	})
}

// setStatus persists a suspended/running flip; failures are logged only.
func (c *Context) setStatus(to model.InvocationStatus) {
	if c.rec.Status == to {
		return
	}
	if err := c.rec.Transition(to, c.engine.now()); err != nil {
		c.logger.Warn("status change rejected", "to", to, "error", err)
		return
	}
	if err := c.engine.journal.SaveInvocation(context.WithoutCancel(c.ctx), c.rec); err != nil {
		c.logger.Warn("failed to save status", "to", to, "error", err)
	}
}

// Handle refers to a child invocation started by Begin.
type Handle struct {
	id      string
	topic   string
	parent  *Context
	done    chan struct{}
	result  string
	err     error
	awaited atomic.Bool
}

// ID returns the child invocation id.
func (h *Handle) ID() string { return h.id }

// Await blocks until the child finishes. The parent is marked suspended
// while it waits. A handle can be awaited once.
func (h *Handle) Await() (string, error) {
	if !h.awaited.CompareAndSwap(false, true) {
		return "", model.Errorf(model.ErrInvariantViolation, "child %s awaited twice", h.id)
	}

	select {
	case <-h.done:
	default:
		h.parent.setStatus(model.StatusSuspended)
		<-h.done
		h.parent.setStatus(model.StatusRunning)
	}
	return h.result, h.err
}
