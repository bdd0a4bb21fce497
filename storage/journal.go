// Package storage persists invocation records and their step journals.
//
// Information Hiding:
// - Backend (in-memory map or SQLite) hidden behind Journal
// - Records are copied on the way in and out; callers never share memory
//   with the store
package storage

import (
	"context"
	"strings"

	"github.com/richinex/spindle/model"
)

// Journal is the durable state of the execution substrate.
type Journal interface {
	// SaveInvocation inserts or replaces an invocation record.
	SaveInvocation(ctx context.Context, rec *model.InvocationRecord) error

	// LoadInvocation returns model.ErrNotFound if the id is unknown.
	LoadInvocation(ctx context.Context, id string) (*model.InvocationRecord, error)

	// ListTree returns the root and all of its descendants, oldest first.
	ListTree(ctx context.Context, rootID string) ([]*model.InvocationRecord, error)

	// AppendStep records a completed step. Recording the same
	// (invocation, seq) twice is an error.
	AppendStep(ctx context.Context, entry model.StepEntry) error

	// LoadSteps returns an invocation's steps ordered by sequence number.
	LoadSteps(ctx context.Context, invocationID string) ([]model.StepEntry, error)

	Close() error
}

// inTree reports whether id is rootID or one of its descendants.
func inTree(id, rootID string) bool {
	return id == rootID || strings.HasPrefix(id, rootID+"/")
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return model.Errorf(model.ErrInvalidID, "empty invocation id")
	}
	return nil
}
