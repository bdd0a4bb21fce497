package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/research"
)

// Config locates the Temporal frontend and sets activity behavior.
type Config struct {
	HostPort        string
	Namespace       string
	TaskQueue       string
	ActivityTimeout time.Duration
	MaxAttempts     int32
}

// Dial connects to the Temporal frontend, logging through logger.
func Dial(cfg Config, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// Registry is the part of a worker, or of a test environment, that
// Register needs.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the research workflow and the complete activity to r.
func Register(r Registry, cfg Config, oracle Oracle, opts ...research.Option) {
	wf := &Workflows{
		ActivityTimeout: cfg.ActivityTimeout,
		MaxAttempts:     cfg.MaxAttempts,
		Research:        opts,
	}
	acts := &Activities{Oracle: oracle}
	r.RegisterWorkflowWithOptions(wf.Run, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.Complete, activity.RegisterOptions{Name: CompleteActivity})
}

// NewWorker creates a worker polling cfg.TaskQueue with research registered.
func NewWorker(c client.Client, cfg Config, oracle Oracle, opts ...research.Option) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	Register(w, cfg, oracle, opts...)
	return w
}

// Submit starts research as workflow id, or attaches to the running
// workflow with that id, and waits for its result.
func Submit(ctx context.Context, c client.Client, cfg Config, id string, req model.Request) (string, error) {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return "", model.Errorf(model.ErrInvalidID, "root id %q", id)
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: cfg.TaskQueue,
	}, WorkflowName, req)
	if err != nil {
		return "", fmt.Errorf("start workflow %s: %w", id, err)
	}

	var result string
	if err := run.Get(ctx, &result); err != nil {
		return "", fromTemporal(err)
	}
	return result, nil
}
