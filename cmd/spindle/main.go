// Package main provides the spindle CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/spindle/cli"
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	provider    string
	model       string
	configPath  string
	verbose     bool
	trace       bool
	traceOutput string
}

func (g *globalFlags) options(cmd *cobra.Command) cli.Options {
	return cli.Options{
		Provider:    g.provider,
		Model:       g.model,
		ConfigPath:  g.configPath,
		Verbose:     g.verbose,
		Trace:       g.trace,
		TraceOutput: g.traceOutput,
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "spindle",
		Short: "Depth-bounded recursive research over a durable journal",
		Long: `Research a topic by letting the model split it into subtopics, each
researched by a child invocation one level shallower, then summarize.

Two substrates are available:
- run: in-process, journaled to SQLite; re-running an id resumes it
- worker/submit: Temporal workflows, one per invocation`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&g.model, "model", "", "Model name (defaults per provider)")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to a YAML config file (default ./spindle.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Show debug logs and metrics")
	rootCmd.PersistentFlags().BoolVar(&g.trace, "trace", false, "Export trace spans")
	rootCmd.PersistentFlags().StringVar(&g.traceOutput, "trace-output", "", "Write spans to this file instead of stdout")

	rootCmd.AddCommand(runCmd(g))
	rootCmd.AddCommand(statusCmd(g))
	rootCmd.AddCommand(workerCmd(g))
	rootCmd.AddCommand(submitCmd(g))
	rootCmd.AddCommand(toolsCmd())

	return rootCmd
}

// withUsage prints the command usage when positional arguments are wrong.
// Usage is otherwise silenced so runtime failures print only the error.
func withUsage(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			cmd.PrintErrln(cmd.UsageString())
			return err
		}
		return nil
	}
}

func usageOnError(cmd *cobra.Command, err error) error {
	if errors.Is(err, cli.ErrUsage) {
		cmd.PrintErrln(cmd.UsageString())
	}
	return err
}

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id> <topic> [depth]",
		Short: "Research a topic locally, resuming the id if it exists",
		Long: `Research a topic on the local durable engine.

The id names the root invocation in the journal. Running the same id again
prints the stored result of a completed run, or resumes a failed or
interrupted one without repeating journaled oracle calls.`,
		Args: withUsage(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageOnError(cmd, cli.Run(context.Background(), args, g.options(cmd)))
		},
	}
}

func statusCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the invocation tree of a run",
		Args:  withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageOnError(cmd, cli.Status(context.Background(), args[0], format, g.options(cmd)))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", cli.FormatText, "Output format: text, json, yaml")

	return cmd
}

func workerCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Host the research workflow on a Temporal task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Worker(context.Background(), g.options(cmd))
		},
	}
}

func submitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id> <topic> [depth]",
		Short: "Research a topic as a Temporal workflow and wait for the result",
		Args:  withUsage(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageOnError(cmd, cli.Submit(context.Background(), args, g.options(cmd)))
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListTools(cmd.OutOrStdout(), verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
