package temporal

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
)

// Kinds that never succeed on retry.
var nonRetryableKinds = []string{
	model.KindName(model.ErrMalformedToolArguments),
	model.KindName(model.ErrInvariantViolation),
	model.KindName(model.ErrNonDeterministic),
	model.KindName(model.ErrInvalidID),
}

var (
	childFailed = model.KindName(model.ErrChildFailed)
	stepFailed  = model.KindName(model.ErrStepFailed)
)

// remoteError is an error kind that crossed an activity or child workflow.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.kind }

// kindFrame is one link of an error chain: a child failure with its topic,
// a step failure with its step name, or the innermost kind.
type kindFrame struct {
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// failureDetail travels as the ApplicationError details so the receiving
// side can rebuild the whole chain, not only the outermost kind.
type failureDetail struct {
	Frames []kindFrame `json:"frames"`
	Cause  string      `json:"cause"`
}

func describeFailure(err error) failureDetail {
	var d failureDetail
	for {
		switch kind := model.KindName(err); kind {
		case childFailed:
			var child *model.ChildError
			if !errors.As(err, &child) {
				return failureDetail{Frames: append(d.Frames, kindFrame{Kind: kind}), Cause: err.Error()}
			}
			d.Frames = append(d.Frames, kindFrame{Kind: kind, Label: child.Topic})
			err = child.Cause
		case stepFailed:
			var step *model.StepError
			if !errors.As(err, &step) {
				return failureDetail{Frames: append(d.Frames, kindFrame{Kind: kind}), Cause: err.Error()}
			}
			d.Frames = append(d.Frames, kindFrame{Kind: kind, Label: step.Step})
			err = step.Cause
		case "":
			if err != nil {
				d.Cause = err.Error()
			}
			return d
		default:
			d.Frames = append(d.Frames, kindFrame{Kind: kind})
			d.Cause = err.Error()
			return d
		}
	}
}

// rebuild turns a failureDetail back into a chain of model errors.
// ok is false when a frame names an unknown kind.
func (d failureDetail) rebuild() (error, bool) {
	if len(d.Frames) == 0 {
		return nil, false
	}
	var err error = errors.New(d.Cause)
	last := d.Frames[len(d.Frames)-1]
	frames := d.Frames
	if last.Kind != childFailed && last.Kind != stepFailed {
		kind, ok := model.KindFromName(last.Kind)
		if !ok {
			return nil, false
		}
		err = &remoteError{kind: kind, msg: d.Cause}
		frames = frames[:len(frames)-1]
	}
	for i := len(frames) - 1; i >= 0; i-- {
		switch frames[i].Kind {
		case childFailed:
			err = &model.ChildError{Topic: frames[i].Label, Cause: err}
		case stepFailed:
			err = &model.StepError{Step: frames[i].Label, Cause: err}
		default:
			return nil, false
		}
	}
	return err, true
}

// toApplicationError encodes err's kind as the ApplicationError type and
// its full kind chain as the details. Provider failures the provider marks
// as permanent are not retried.
func toApplicationError(err error) error {
	if err == nil {
		return nil
	}
	kind := model.KindName(err)
	detail := describeFailure(err)
	if pe, ok := llm.AsProviderError(err); ok && !pe.Retryable() {
		return temporal.NewNonRetryableApplicationError(err.Error(), kind, nil, detail)
	}
	return temporal.NewApplicationError(err.Error(), kind, detail)
}

// fromTemporal restores the error chain of a failure returned by an
// activity or child workflow. Errors without a known kind are returned
// unchanged.
func fromTemporal(err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	if appErr.HasDetails() {
		var d failureDetail
		if appErr.Details(&d) == nil {
			if rebuilt, ok := d.rebuild(); ok {
				return rebuilt
			}
		}
	}
	kind, ok := model.KindFromName(appErr.Type())
	if !ok {
		return err
	}
	return &remoteError{kind: kind, msg: appErr.Message()}
}
