package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/tracing"
)

// Fingerprint identifies a step call by name and encoded arguments.
func Fingerprint(name string, args []byte) string {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(args)
	return strconv.FormatUint(d.Sum64(), 16)
}

// RunStep executes fn at most once per call site of the invocation. A
// journaled result is decoded and returned without calling fn. A failure
// of fn is returned as a *model.StepError and is not journaled, so
// re-entering the invocation runs fn again.
func RunStep[T any](c *Context, name string, args any, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	seq := c.nextSeq()

	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return zero, fmt.Errorf("encode arguments of step %s: %w", name, err)
	}
	fp := Fingerprint(name, encodedArgs)

	if entry, ok := c.replay[seq]; ok {
		if entry.Name != name || entry.Fingerprint != fp {
			return zero, model.Errorf(model.ErrNonDeterministic,
				"call %d of %s: journaled %q (%s), replayed %q (%s)", seq, c.rec.ID, entry.Name, entry.Fingerprint, name, fp)
		}
		var out T
		if err := json.Unmarshal(entry.Output, &out); err != nil {
			return zero, fmt.Errorf("decode journaled step %s: %w", name, err)
		}
		c.logger.Debug("step replayed", "step", name, "seq", seq)
		return out, nil
	}

	ctx, span := tracing.StartSpan(c.ctx, "step "+name)
	span.WithAttributes(map[string]string{"invocation.id": c.rec.ID}).WithInt("seq", seq)

	out, err := runWithPolicy(ctx, c.engine.policy, c.logger, name, fn)
	if err != nil {
		stepErr := &model.StepError{Step: name, Cause: err}
		tracing.EndSpan(span, stepErr)
		return zero, stepErr
	}

	output, err := json.Marshal(out)
	if err != nil {
		tracing.EndSpan(span, err)
		return zero, fmt.Errorf("encode result of step %s: %w", name, err)
	}
	err = c.engine.journal.AppendStep(context.WithoutCancel(ctx), model.StepEntry{
		InvocationID: c.rec.ID,
		Seq:          seq,
		Name:         name,
		Fingerprint:  fp,
		Output:       output,
		CreatedAt:    c.engine.now(),
	})
	if err != nil {
		tracing.EndSpan(span, err)
		return zero, fmt.Errorf("journal step %s: %w", name, err)
	}

	tracing.EndSpan(span, nil)
	return out, nil
}
