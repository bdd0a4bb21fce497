package model

import (
	"errors"
	"fmt"
)

// Error kinds. Callers detect them with errors.Is; the typed errors below
// carry the detail.
var (
	// ErrOracleUnavailable is a transport or rate-limit failure of the reasoning oracle.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrMalformedToolArguments means a tool invocation payload has the wrong shape.
	ErrMalformedToolArguments = errors.New("malformed tool arguments")

	// ErrInvariantViolation covers decomposition at depth 0, empty decompositions
	// and other states the engine must never reach.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrChildFailed marks a failure propagated from a sub-invocation.
	ErrChildFailed = errors.New("child failed")

	// ErrStepFailed marks a durable step whose function returned an error.
	ErrStepFailed = errors.New("step failed")

	// ErrNonDeterministic means a replayed step does not match its journal entry.
	ErrNonDeterministic = errors.New("non-deterministic replay")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for empty or otherwise unusable identifiers.
	ErrInvalidID = errors.New("invalid id")
)

// Error wraps a kind with a message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// StepError is StepFailed(reason): the step function of a durable step failed.
type StepError struct {
	Step  string
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStepFailed.Error(), e.Step, e.Cause)
}

func (e *StepError) Is(target error) bool { return target == ErrStepFailed }

func (e *StepError) Unwrap() error { return e.Cause }

// ChildError is ChildFailed(topic, cause).
type ChildError struct {
	Topic string
	Cause error
}

func (e *ChildError) Error() string {
	return fmt.Sprintf("%s: topic %q: %v", ErrChildFailed.Error(), e.Topic, e.Cause)
}

func (e *ChildError) Is(target error) bool { return target == ErrChildFailed }

func (e *ChildError) Unwrap() error { return e.Cause }

var kinds = []error{
	ErrOracleUnavailable,
	ErrMalformedToolArguments,
	ErrInvariantViolation,
	ErrChildFailed,
	ErrStepFailed,
	ErrNonDeterministic,
	ErrNotFound,
	ErrInvalidID,
}

var kindNames = map[error]string{
	ErrOracleUnavailable:      "OracleUnavailable",
	ErrMalformedToolArguments: "MalformedToolArguments",
	ErrInvariantViolation:     "InvariantViolation",
	ErrChildFailed:            "ChildFailed",
	ErrStepFailed:             "StepFailed",
	ErrNonDeterministic:       "NonDeterministic",
	ErrNotFound:               "NotFound",
	ErrInvalidID:              "InvalidID",
}

// KindName returns the name of the most specific known kind in err's chain.
// Outer kinds win: a ChildFailed wrapping an OracleUnavailable is "ChildFailed".
// Returns "" when err carries no known kind.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	var child *ChildError
	if errors.As(err, &child) {
		return kindNames[ErrChildFailed]
	}
	var step *StepError
	if errors.As(err, &step) {
		return kindNames[ErrStepFailed]
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return kindNames[k]
		}
	}
	return ""
}

// KindFromName maps a name produced by KindName back to its sentinel.
func KindFromName(name string) (error, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return nil, false
}
