package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/richinex/spindle/model"
)

// InMemoryJournal implements Journal using maps.
// Data is lost when the process terminates.
type InMemoryJournal struct {
	mu          sync.RWMutex
	invocations map[string]*model.InvocationRecord
	steps       map[string][]model.StepEntry
}

// NewInMemoryJournal creates an empty in-memory journal.
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{
		invocations: make(map[string]*model.InvocationRecord),
		steps:       make(map[string][]model.StepEntry),
	}
}

func (j *InMemoryJournal) SaveInvocation(ctx context.Context, rec *model.InvocationRecord) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.invocations[rec.ID] = rec.Clone()
	return nil
}

func (j *InMemoryJournal) LoadInvocation(ctx context.Context, id string) (*model.InvocationRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.invocations[id]
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "invocation %q", id)
	}
	return rec.Clone(), nil
}

func (j *InMemoryJournal) ListTree(ctx context.Context, rootID string) ([]*model.InvocationRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []*model.InvocationRecord
	for id, rec := range j.invocations {
		if inTree(id, rootID) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (j *InMemoryJournal) AppendStep(ctx context.Context, entry model.StepEntry) error {
	if err := validateID(entry.InvocationID); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, existing := range j.steps[entry.InvocationID] {
		if existing.Seq == entry.Seq {
			return model.Errorf(model.ErrInvariantViolation, "step %d of %q already journaled", entry.Seq, entry.InvocationID)
		}
	}
	entry.Output = append([]byte(nil), entry.Output...)
	j.steps[entry.InvocationID] = append(j.steps[entry.InvocationID], entry)
	return nil
}

func (j *InMemoryJournal) LoadSteps(ctx context.Context, invocationID string) ([]model.StepEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	src := j.steps[invocationID]
	out := make([]model.StepEntry, len(src))
	for i, e := range src {
		e.Output = append([]byte(nil), e.Output...)
		out[i] = e
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// Close is a no-op.
func (j *InMemoryJournal) Close() error { return nil }

var _ Journal = (*InMemoryJournal)(nil)
