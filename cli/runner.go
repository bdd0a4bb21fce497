// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, logger, tracer and journal setup hidden
// - Substrate selection (local engine or Temporal) hidden
// - Output formatting hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.temporal.io/sdk/worker"

	"github.com/richinex/spindle/config"
	"github.com/richinex/spindle/durable"
	"github.com/richinex/spindle/internal/logging"
	"github.com/richinex/spindle/llm"
	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/oracle"
	"github.com/richinex/spindle/research"
	"github.com/richinex/spindle/runtime/local"
	rtemporal "github.com/richinex/spindle/runtime/temporal"
	"github.com/richinex/spindle/storage"
	"github.com/richinex/spindle/tools"
	"github.com/richinex/spindle/tracing"
)

// Version is reported in trace resources.
const Version = "0.1.0"

// ErrUsage marks bad command-line arguments.
var ErrUsage = errors.New("usage")

// Options holds CLI execution options.
type Options struct {
	Provider    string
	Model       string
	ConfigPath  string
	Verbose     bool
	Trace       bool
	TraceOutput string

	Stdout io.Writer
	Stderr io.Writer
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o Options) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

// ParseResearchArgs parses "<id> <topic> [depth]".
func ParseResearchArgs(args []string, defaultDepth int) (string, model.Request, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", model.Request{}, fmt.Errorf("%w: <id> <topic> [depth]", ErrUsage)
	}
	id, topic := args[0], args[1]
	if id == "" || topic == "" {
		return "", model.Request{}, fmt.Errorf("%w: <id> and <topic> must not be empty", ErrUsage)
	}

	depth := defaultDepth
	if len(args) == 3 {
		d, err := strconv.Atoi(args[2])
		if err != nil || d < 0 {
			return "", model.Request{}, fmt.Errorf("%w: depth must be a non-negative integer, got %q", ErrUsage, args[2])
		}
		depth = d
	}
	return id, model.Request{Topic: topic, Depth: depth}, nil
}

// session is the ambient setup shared by every command.
type session struct {
	settings config.Settings
	logger   *slog.Logger
	shutdown tracing.Shutdown
}

func openSession(opts Options) (*session, error) {
	settings, err := config.Load(opts.Provider, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}

	level := settings.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: settings.Log.Format, Writer: opts.stderr()})
	if err != nil {
		return nil, err
	}

	s := &session{settings: settings, logger: logger, shutdown: func(context.Context) error { return nil }}
	if opts.Trace || settings.Trace.Enabled {
		output := opts.TraceOutput
		if output == "" {
			output = settings.Trace.Output
		}
		shutdown, err := tracing.Init("spindle", Version, output)
		if err != nil {
			return nil, err
		}
		s.shutdown = shutdown
	}
	return s, nil
}

func (s *session) close() {
	if err := s.shutdown(context.Background()); err != nil {
		s.logger.Warn("trace shutdown failed", "error", err)
	}
}

func (s *session) oracle() (*oracle.Client, error) {
	provider, err := newProvider(s.settings.LLM)
	if err != nil {
		return nil, err
	}
	return oracle.New(provider, oracle.WithLogger(s.logger)), nil
}

func (s *session) researchOptions() []research.Option {
	return []research.Option{research.WithMaxRounds(s.settings.Research.MaxRounds)}
}

func (s *session) temporalConfig() rtemporal.Config {
	t := s.settings.Temporal
	return rtemporal.Config{
		HostPort:        t.HostPort,
		Namespace:       t.Namespace,
		TaskQueue:       t.TaskQueue,
		ActivityTimeout: t.ActivityTimeout,
		MaxAttempts:     t.MaxAttempts,
	}
}

// signalContext is cancelled on interrupt; an interrupted run resumes later.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Run researches a topic on the local durable engine. Re-running an id
// resumes it from the journal.
func Run(ctx context.Context, args []string, opts Options) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	id, req, err := ParseResearchArgs(args, s.settings.Research.DefaultDepth)
	if err != nil {
		return err
	}

	client, err := s.oracle()
	if err != nil {
		return err
	}

	journal, err := storage.OpenSqlite(s.settings.Journal.Driver, s.settings.Journal.Path)
	if err != nil {
		return err
	}
	defer journal.Close()

	policy := durable.DefaultStepPolicy()
	policy.MaxAttempts = s.settings.Research.MaxAttempts
	policy.Retryable = local.RetryableOracleError
	engine := durable.NewEngine(journal, durable.WithLogger(s.logger), durable.WithStepPolicy(policy))

	rt, err := local.New(engine, client, local.WithResearchOptions(s.researchOptions()...))
	if err != nil {
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()
	if timeout := s.settings.Research.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.logger.Info("research started", "id", id, "topic", req.Topic, "depth", req.Depth,
		"provider", s.settings.LLM.Provider, "model", s.settings.LLM.Model)

	result, err := rt.Run(ctx, id, req)
	if opts.Verbose {
		fmt.Fprintf(opts.stderr(), "\n--- Metrics ---\n%s\n", rt.Metrics().String())
	}
	if err != nil {
		return fmt.Errorf("research %s: %w", id, err)
	}

	fmt.Fprintln(opts.stdout(), result)
	return nil
}

// Worker hosts the research workflow on the configured task queue until
// interrupted.
func Worker(ctx context.Context, opts Options) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	client, err := s.oracle()
	if err != nil {
		return err
	}

	cfg := s.temporalConfig()
	c, err := rtemporal.Dial(cfg, s.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := rtemporal.NewWorker(c, cfg, client, s.researchOptions()...)
	s.logger.Info("worker started", "task_queue", cfg.TaskQueue, "namespace", cfg.Namespace)
	return w.Run(worker.InterruptCh())
}

// Submit starts research as a Temporal workflow, or attaches to the running
// workflow with the same id, and prints its result.
func Submit(ctx context.Context, args []string, opts Options) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	id, req, err := ParseResearchArgs(args, s.settings.Research.DefaultDepth)
	if err != nil {
		return err
	}

	cfg := s.temporalConfig()
	c, err := rtemporal.Dial(cfg, s.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signalContext(ctx)
	defer stop()

	result, err := rtemporal.Submit(ctx, c, cfg, id, req)
	if err != nil {
		return fmt.Errorf("research %s: %w", id, err)
	}
	fmt.Fprintln(opts.stdout(), result)
	return nil
}

// ListTools lists the tools offered to the oracle.
func ListTools(w io.Writer, verbose bool) {
	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)

	for _, meta := range tools.Default().List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(w, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(w)
	}
}

// newProvider is replaced in tests.
var newProvider = createProvider

func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(cfg.Model).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		APIKey(apiKey)
}
