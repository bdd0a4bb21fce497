package durable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/spindle/internal/logging"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/storage"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, storage.Journal) {
	t.Helper()
	journal := storage.NewInMemoryJournal()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewEngine(journal, opts...), journal
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e, _ := newTestEngine(t)
	h := func(*Context, model.Request) (string, error) { return "", nil }

	require.NoError(t, e.Register("echo", h))
	assert.Error(t, e.Register("echo", h))
	assert.Error(t, e.Register("", h))
}

func TestRunUnknownHandler(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Run(context.Background(), "missing", "id", model.Request{Topic: "t"})
	assert.Error(t, err)
}

func TestRunRejectsBadRootID(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Register("echo", func(*Context, model.Request) (string, error) { return "", nil }))

	for _, id := range []string{"", "  ", "a/b"} {
		_, err := e.Run(context.Background(), "echo", id, model.Request{Topic: "t"})
		assert.ErrorIs(t, err, model.ErrInvalidID, "id %q", id)
	}
}

func TestCompletedRunReturnsStoredResult(t *testing.T) {
	e, journal := newTestEngine(t)
	var calls atomic.Int32
	require.NoError(t, e.Register("echo", func(c *Context, req model.Request) (string, error) {
		calls.Add(1)
		return "echo " + req.Topic, nil
	}))

	ctx := context.Background()
	req := model.Request{Topic: "waves", Depth: 1}
	first, err := e.Run(ctx, "echo", "run-1", req)
	require.NoError(t, err)
	second, err := e.Run(ctx, "echo", "run-1", req)
	require.NoError(t, err)

	assert.Equal(t, "echo waves", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	rec, err := journal.LoadInvocation(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestResumeWithDifferentRequestFails(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Register("echo", func(c *Context, req model.Request) (string, error) {
		return req.Topic, nil
	}))

	ctx := context.Background()
	_, err := e.Run(ctx, "echo", "run-1", model.Request{Topic: "a", Depth: 1})
	require.NoError(t, err)
	_, err = e.Run(ctx, "echo", "run-1", model.Request{Topic: "b", Depth: 1})
	assert.ErrorIs(t, err, model.ErrNonDeterministic)
}

func TestStepsAreMemoizedAcrossResumption(t *testing.T) {
	e, journal := newTestEngine(t)

	var firstCalls, secondCalls atomic.Int32
	var crash atomic.Bool
	crash.Store(true)

	require.NoError(t, e.Register("two-steps", func(c *Context, req model.Request) (string, error) {
		a, err := RunStep(c, "first", req.Topic, func(context.Context) (string, error) {
			firstCalls.Add(1)
			return "A", nil
		})
		if err != nil {
			return "", err
		}
		b, err := RunStep(c, "second", a, func(context.Context) (string, error) {
			secondCalls.Add(1)
			if crash.Load() {
				return "", model.ErrOracleUnavailable
			}
			return "B", nil
		})
		if err != nil {
			return "", err
		}
		return a + b, nil
	}))

	ctx := context.Background()
	req := model.Request{Topic: "x"}

	_, err := e.Run(ctx, "two-steps", "run-1", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStepFailed)
	assert.ErrorIs(t, err, model.ErrOracleUnavailable)

	rec, err := journal.LoadInvocation(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)

	steps, err := journal.LoadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 1, "failed steps must not be journaled")

	crash.Store(false)
	result, err := e.Run(ctx, "two-steps", "run-1", req)
	require.NoError(t, err)
	assert.Equal(t, "AB", result)
	assert.Equal(t, int32(1), firstCalls.Load())
	assert.Equal(t, int32(2), secondCalls.Load())
}

func TestReplayDivergenceIsDetected(t *testing.T) {
	e, _ := newTestEngine(t)

	var arg atomic.Value
	arg.Store("one")
	require.NoError(t, e.Register("diverge", func(c *Context, req model.Request) (string, error) {
		if _, err := RunStep(c, "first", arg.Load().(string), func(context.Context) (int, error) { return 1, nil }); err != nil {
			return "", err
		}
		return RunStep(c, "fail", nil, func(context.Context) (string, error) { return "", errors.New("boom") })
	}))

	ctx := context.Background()
	_, err := e.Run(ctx, "diverge", "run-1", model.Request{Topic: "t"})
	require.Error(t, err)

	arg.Store("two")
	_, err = e.Run(ctx, "diverge", "run-1", model.Request{Topic: "t"})
	assert.ErrorIs(t, err, model.ErrNonDeterministic)
}

// tree begins one child per depth level until depth 0.
func treeHandler(leafCalls *atomic.Int32) Handler {
	return func(c *Context, req model.Request) (string, error) {
		if req.Depth == 0 {
			return RunStep(c, "leaf", req.Topic, func(context.Context) (string, error) {
				leafCalls.Add(1)
				if req.Topic == "bad" {
					return "", model.ErrOracleUnavailable
				}
				return "leaf " + req.Topic, nil
			})
		}
		left := c.Begin("tree", model.Request{Topic: req.Topic + "L", Depth: req.Depth - 1})
		right := c.Begin("tree", model.Request{Topic: req.Topic + "R", Depth: req.Depth - 1})
		l, err := left.Await()
		if err != nil {
			return "", err
		}
		r, err := right.Await()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s)", l, r), nil
	}
}

func TestChildrenRunAndAreRecorded(t *testing.T) {
	e, _ := newTestEngine(t)
	var leaves atomic.Int32
	require.NoError(t, e.Register("tree", treeHandler(&leaves)))

	ctx := context.Background()
	result, err := e.Run(ctx, "tree", "t", model.Request{Topic: "x", Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, "((leaf xLL leaf xLR) (leaf xRL leaf xRR))", result)
	assert.Equal(t, int32(4), leaves.Load())

	records, err := e.Tree(ctx, "t")
	require.NoError(t, err)
	ids := make(map[string]*model.InvocationRecord, len(records))
	for _, r := range records {
		ids[r.ID] = r
		assert.Equal(t, model.StatusCompleted, r.Status, r.ID)
	}
	for _, id := range []string{"t", "t/1", "t/2", "t/1/1", "t/1/2", "t/2/1", "t/2/2"} {
		require.Contains(t, ids, id)
	}
	assert.Equal(t, "t/1", ids["t/1/2"].ParentID)
	assert.Equal(t, "xLR", ids["t/1/2"].Topic)

	// a second run attaches to completed children without re-running them
	_, err = e.Run(ctx, "tree", "t", model.Request{Topic: "x", Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(4), leaves.Load())
}

func TestChildFailureFailsParentAndResumes(t *testing.T) {
	e, journal := newTestEngine(t)
	var leaves atomic.Int32
	require.NoError(t, e.Register("tree", func(c *Context, req model.Request) (string, error) {
		if req.Topic == "root" {
			ok := c.Begin("tree", model.Request{Topic: "good", Depth: 0})
			bad := c.Begin("tree", model.Request{Topic: "bad", Depth: 0})
			g, err := ok.Await()
			if err != nil {
				return "", err
			}
			b, err := bad.Await()
			if err != nil {
				return "", &model.ChildError{Topic: "bad", Cause: err}
			}
			return g + b, nil
		}
		return treeHandler(&leaves)(c, req)
	}))

	ctx := context.Background()
	_, err := e.Run(ctx, "tree", "p", model.Request{Topic: "root", Depth: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrChildFailed)

	child, err := journal.LoadInvocation(ctx, "p/2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, child.Status)

	// resuming re-runs only the failed child
	_, err = e.Run(ctx, "tree", "p", model.Request{Topic: "root", Depth: 1})
	require.Error(t, err)
	assert.Equal(t, int32(3), leaves.Load())
}

func TestAwaitTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Register("leaf", func(*Context, model.Request) (string, error) { return "ok", nil }))
	require.NoError(t, e.Register("parent", func(c *Context, req model.Request) (string, error) {
		h := c.Begin("leaf", model.Request{Topic: "child"})
		if _, err := h.Await(); err != nil {
			return "", err
		}
		return h.Await()
	}))

	_, err := e.Run(context.Background(), "parent", "p", model.Request{Topic: "root", Depth: 1})
	assert.ErrorIs(t, err, model.ErrInvariantViolation)
}

func TestParentSuspendedWhileAwaiting(t *testing.T) {
	e, journal := newTestEngine(t)
	release := make(chan struct{})
	observed := make(chan model.InvocationStatus, 1)

	require.NoError(t, e.Register("slow", func(c *Context, req model.Request) (string, error) {
		<-release
		return "done", nil
	}))
	require.NoError(t, e.Register("parent", func(c *Context, req model.Request) (string, error) {
		return c.Begin("slow", model.Request{Topic: "child"}).Await()
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Run(context.Background(), "parent", "p", model.Request{Topic: "root", Depth: 1})
	}()

	require.Eventually(t, func() bool {
		rec, err := journal.LoadInvocation(context.Background(), "p")
		if err == nil && rec.Status == model.StatusSuspended {
			observed <- rec.Status
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, model.StatusSuspended, <-observed)
	rec, err := journal.LoadInvocation(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestCancellationReachesChildren(t *testing.T) {
	e, journal := newTestEngine(t)
	started := make(chan struct{})

	require.NoError(t, e.Register("blocking", func(c *Context, req model.Request) (string, error) {
		return RunStep(c, "wait", nil, func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		})
	}))
	require.NoError(t, e.Register("parent", func(c *Context, req model.Request) (string, error) {
		return c.Begin("blocking", model.Request{Topic: "child"}).Await()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, "parent", "p", model.Request{Topic: "root", Depth: 1})
		errCh <- err
	}()

	<-started
	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	child, lerr := journal.LoadInvocation(context.Background(), "p/1")
	require.NoError(t, lerr)
	assert.Equal(t, model.StatusFailed, child.Status)
}

func TestUnawaitedChildrenAreCancelledWhenParentReturns(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Register("blocking", func(c *Context, req model.Request) (string, error) {
		return RunStep(c, "wait", nil, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	}))
	require.NoError(t, e.Register("parent", func(c *Context, req model.Request) (string, error) {
		c.Begin("blocking", model.Request{Topic: "orphan"})
		return "early", nil
	}))

	result, err := e.Run(context.Background(), "parent", "p", model.Request{Topic: "root", Depth: 1})
	require.NoError(t, err)
	assert.Equal(t, "early", result)
}

func TestStepPolicyRetries(t *testing.T) {
	e, _ := newTestEngine(t, WithStepPolicy(StepPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}))

	var calls atomic.Int32
	require.NoError(t, e.Register("flaky", func(c *Context, req model.Request) (string, error) {
		return RunStep(c, "flaky", nil, func(context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	}))

	result, err := e.Run(context.Background(), "flaky", "f", model.Request{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStepPolicyStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("bad request")
	e, _ := newTestEngine(t, WithStepPolicy(StepPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}))

	var calls atomic.Int32
	require.NoError(t, e.Register("once", func(c *Context, req model.Request) (string, error) {
		return RunStep(c, "once", nil, func(context.Context) (string, error) {
			calls.Add(1)
			return "", permanent
		})
	}))

	_, err := e.Run(context.Background(), "once", "o", model.Request{Topic: "t"})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBackoffIsCapped(t *testing.T) {
	p := DefaultStepPolicy()
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 5*time.Second, p.backoff(10))
	assert.Equal(t, 5*time.Second, p.backoff(64))
	assert.Equal(t, 5*time.Second, p.backoff(1000))

	uncapped := StepPolicy{BaseDelay: time.Hour}
	assert.Equal(t, time.Duration(math.MaxInt64), uncapped.backoff(100))
}

func TestFingerprintSeparatesNameAndArgs(t *testing.T) {
	assert.Equal(t, Fingerprint("a", []byte(`"x"`)), Fingerprint("a", []byte(`"x"`)))
	assert.NotEqual(t, Fingerprint("a", []byte(`"x"`)), Fingerprint("a", []byte(`"y"`)))
	assert.NotEqual(t, Fingerprint("ab", []byte(`c`)), Fingerprint("a", []byte(`bc`)))
}
