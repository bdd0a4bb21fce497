// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Request is the argument of one research invocation.
// It is passed by value from parent to child; nothing else crosses
// the invocation boundary on the way down.
type Request struct {
	Topic string `json:"topic"`
	Depth int    `json:"depth"`
}

// Validate checks the request before any oracle call is made.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return Errorf(ErrMalformedToolArguments, "topic must not be empty")
	}
	if r.Depth < 0 {
		return Errorf(ErrInvariantViolation, "negative depth %d for topic %q", r.Depth, r.Topic)
	}
	return nil
}

// InvocationStatus is the lifecycle state of an invocation record.
type InvocationStatus string

const (
	StatusRunning   InvocationStatus = "running"
	StatusSuspended InvocationStatus = "suspended"
	StatusCompleted InvocationStatus = "completed"
	StatusFailed    InvocationStatus = "failed"
)

// String returns the canonical string representation.
func (s InvocationStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen without
// an explicit resumption.
func (s InvocationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseInvocationStatus parses a status from its string form.
func ParseInvocationStatus(s string) (InvocationStatus, error) {
	switch InvocationStatus(strings.ToLower(s)) {
	case StatusRunning:
		return StatusRunning, nil
	case StatusSuspended:
		return StatusSuspended, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown invocation status: %q", s)
	}
}

// CanTransition reports whether a record may move from one status to another.
// A failed record may be resumed; a completed record never changes.
func CanTransition(from, to InvocationStatus) bool {
	switch from {
	case StatusRunning:
		return to == StatusSuspended || to == StatusCompleted || to == StatusFailed
	case StatusSuspended:
		return to == StatusRunning || to == StatusFailed
	case StatusFailed:
		return to == StatusRunning
	default:
		return false
	}
}

// InvocationRecord is the substrate-owned view of one invocation.
// The research core never mutates it.
type InvocationRecord struct {
	ID        string           `json:"id" yaml:"id"`
	ParentID  string           `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Name      string           `json:"name" yaml:"name"`
	Topic     string           `json:"topic" yaml:"topic"`
	Depth     int              `json:"depth" yaml:"depth"`
	Status    InvocationStatus `json:"status" yaml:"status"`
	Result    *string          `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Attempt   string           `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *InvocationRecord) Clone() *InvocationRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Result != nil {
		result := *r.Result
		c.Result = &result
	}
	return &c
}

// Transition moves the record to a new status, rejecting disallowed moves.
func (r *InvocationRecord) Transition(to InvocationStatus, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return Errorf(ErrInvariantViolation, "invocation %s: disallowed transition %s -> %s", r.ID, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// StepEntry is one journaled step result of an invocation.
// Seq numbers the call site within the invocation, starting at 1.
type StepEntry struct {
	InvocationID string    `json:"invocation_id"`
	Seq          int       `json:"seq"`
	Name         string    `json:"name"`
	Fingerprint  string    `json:"fingerprint"`
	Output       []byte    `json:"output"`
	CreatedAt    time.Time `json:"created_at"`
}
