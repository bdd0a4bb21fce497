// Package durable is the local execution substrate: a registry of named
// handlers, journaled steps that are never re-executed once they succeed,
// and child invocations running on their own goroutines.
//
// Information Hiding:
// - Journal layout and replay bookkeeping hidden behind Context
// - Goroutine and channel management for children hidden behind Handle
// - Invocation lifecycle (running, suspended, completed, failed) owned here,
//   never by handlers
//
// Resumption is replay: re-running an invocation id re-executes its handler
// from the top, serving journaled steps from the journal and re-attaching
// to children by their deterministic ids.
package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/richinex/spindle/internal/idgen"
	"github.com/richinex/spindle/internal/logging"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/storage"
	"github.com/richinex/spindle/tracing"
)

// Handler is the entry function of a named computation.
type Handler func(ictx *Context, req model.Request) (string, error)

// Engine runs registered handlers against a journal.
type Engine struct {
	journal storage.Journal
	logger  *slog.Logger
	policy  StepPolicy
	now     func() time.Time

	mu       sync.Mutex
	handlers map[string]Handler
	active   map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithStepPolicy sets the retry policy applied to every step.
func WithStepPolicy(p StepPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine persisting to journal.
func NewEngine(journal storage.Journal, opts ...Option) *Engine {
	e := &Engine{
		journal:  journal,
		logger:   slog.Default(),
		policy:   DefaultStepPolicy(),
		now:      time.Now,
		handlers: make(map[string]Handler),
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register maps a computation name to its handler. Names are registered once.
func (e *Engine) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("register: name and handler are required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.handlers[name]; exists {
		return fmt.Errorf("handler '%s' already registered", name)
	}
	e.handlers[name] = h
	return nil
}

// Run invokes the named handler as a root invocation identified by id.
// If id already completed, the recorded result is returned without running
// anything; otherwise the invocation resumes from its journal.
func (e *Engine) Run(ctx context.Context, name, id string, req model.Request) (string, error) {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return "", model.Errorf(model.ErrInvalidID, "root id %q must be non-empty and contain no '/'", id)
	}
	return e.invoke(ctx, name, id, "", req)
}

// Tree returns the records of a root invocation and its descendants.
func (e *Engine) Tree(ctx context.Context, id string) ([]*model.InvocationRecord, error) {
	return e.journal.ListTree(ctx, id)
}

func (e *Engine) handler(name string) (Handler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handlers[name]
	return h, ok
}

func (e *Engine) acquire(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[id]; busy {
		return model.Errorf(model.ErrInvariantViolation, "invocation %q is already running", id)
	}
	e.active[id] = struct{}{}
	return nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

func (e *Engine) invoke(ctx context.Context, name, id, parentID string, req model.Request) (string, error) {
	h, ok := e.handler(name)
	if !ok {
		return "", fmt.Errorf("no handler registered for %q", name)
	}
	if err := e.acquire(id); err != nil {
		return "", err
	}
	defer e.release(id)

	rec, err := e.begin(ctx, name, id, parentID, req)
	if err != nil {
		return "", err
	}
	logger := logging.WithInvocation(e.logger, id)
	if rec.Status == model.StatusCompleted {
		logger.Debug("invocation already completed")
		return resultOf(rec), nil
	}

	steps, err := e.journal.LoadSteps(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load journal of %q: %w", id, err)
	}

	ctx = logging.IntoContext(ctx, logger)
	ctx, span := tracing.StartSpan(ctx, "invocation "+name)
	span.WithAttributes(map[string]string{"invocation.id": id, "topic": req.Topic}).
		WithInt("depth", req.Depth).
		WithInt("journaled_steps", len(steps))

	ictx := newContext(ctx, e, rec, steps, logger)
	logger.Info("invocation started", "topic", req.Topic, "depth", req.Depth, "attempt", rec.Attempt, "replay", len(steps))

	result, runErr := h(ictx, req)
	ictx.shutdown()

	if err := e.finish(ctx, rec, result, runErr); err != nil {
		logger.Error("failed to record invocation outcome", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		logger.Warn("invocation failed", "error", runErr)
	} else {
		logger.Info("invocation completed")
	}
	tracing.EndSpan(span, runErr)
	return result, runErr
}

// begin loads or creates the record and marks it running for a new attempt.
func (e *Engine) begin(ctx context.Context, name, id, parentID string, req model.Request) (*model.InvocationRecord, error) {
	now := e.now()
	rec, err := e.journal.LoadInvocation(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		rec = &model.InvocationRecord{
			ID:        id,
			ParentID:  parentID,
			Name:      name,
			Topic:     req.Topic,
			Depth:     req.Depth,
			Status:    model.StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return nil, fmt.Errorf("load invocation %q: %w", id, err)
	case rec.Name != name || rec.Topic != req.Topic || rec.Depth != req.Depth:
		return nil, model.Errorf(model.ErrNonDeterministic,
			"invocation %q was started as %s(%q, %d), resumed as %s(%q, %d)",
			id, rec.Name, rec.Topic, rec.Depth, name, req.Topic, req.Depth)
	case rec.Status == model.StatusCompleted:
		return rec, nil
	case rec.Status != model.StatusRunning:
		if err := rec.Transition(model.StatusRunning, now); err != nil {
			return nil, err
		}
	}

	rec.Attempt = idgen.New()
	rec.Error = ""
	rec.UpdatedAt = now
	if err := e.journal.SaveInvocation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) finish(ctx context.Context, rec *model.InvocationRecord, result string, runErr error) error {
	// the outcome is recorded even when ctx was cancelled
	ctx = context.WithoutCancel(ctx)
	now := e.now()
	if runErr != nil {
		if err := rec.Transition(model.StatusFailed, now); err != nil {
			return err
		}
		rec.Error = runErr.Error()
	} else {
		if err := rec.Transition(model.StatusCompleted, now); err != nil {
			return err
		}
		rec.Result = &result
	}
	return e.journal.SaveInvocation(ctx, rec)
}

func resultOf(rec *model.InvocationRecord) string {
	if rec.Result == nil {
		return ""
	}
	return *rec.Result
}
