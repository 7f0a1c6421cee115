package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"
)

// Env carries process level settings into subcommands.
type Env struct {
	RedisOpts      asynq.RedisClientOpt
	CatalogPath    string
	ControlMarkets []string
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

// IsCommand reports whether name is a CLI subcommand rather than the server.
func IsCommand(name string) bool {
	switch name {
	case "pivot", "rollup", "jobs":
		return true
	}
	return false
}

// Run dispatches args[0] to a subcommand and returns the exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintln(env.Stderr, "usage: volumeplan [pivot|rollup|jobs] [flags]")
		return 2
	}
	switch args[0] {
	case "pivot":
		return runPivot(args[1:], env)
	case "rollup":
		return runRollup(args[1:], env)
	case "jobs":
		return runJobs(ctx, args[1:], env)
	default:
		_, _ = fmt.Fprintf(env.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}

func runPivot(args []string, env Env) int {
	fs := flag.NewFlagSet("pivot", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	opts := PivotOptions{Stdin: env.Stdin, Stdout: env.Stdout, Stderr: env.Stderr}
	var filters multiFlag
	var control string
	fs.StringVar(&opts.Input, "in", "-", "record file (JSON array), - for stdin")
	fs.StringVar(&opts.Row, "row", "", "row dimension")
	fs.StringVar(&opts.Column, "col", "", "column dimension")
	fs.StringVar(&opts.Measure, "measure", "case_equivalent_volume", "measure dimension")
	fs.Var(&filters, "filter", "filter as dimension=v1,v2 (repeatable)")
	fs.StringVar(&control, "control-markets", "", "comma separated control markets")
	fs.BoolVar(&opts.CSV, "csv", false, "write CSV instead of JSON")
	fs.BoolVar(&opts.Formatted, "formatted", false, "format CSV numbers for display")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	opts.Filters = filters
	opts.ControlMarkets = env.ControlMarkets
	if control != "" {
		opts.ControlMarkets = splitList(control)
	}
	return PivotCommand(opts)
}

func runRollup(args []string, env Env) int {
	fs := flag.NewFlagSet("rollup", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	opts := RollupOptions{Stdin: env.Stdin, Stdout: env.Stdout, Stderr: env.Stderr, CatalogPath: env.CatalogPath}
	var filters multiFlag
	var guidance string
	fs.StringVar(&opts.Input, "in", "-", "record file (JSON array), - for stdin")
	fs.StringVar(&opts.Level, "level", "variant", "item level: variant or chain")
	fs.StringVar(&guidance, "guidance", "", "comma separated guidance ids (default all)")
	fs.Var(&filters, "filter", "filter as dimension=v1,v2 (repeatable)")
	fs.StringVar(&opts.CatalogPath, "catalog", opts.CatalogPath, "guidance catalog YAML")
	fs.BoolVar(&opts.IncludeMonthly, "monthly", false, "include monthly guidance values")
	fs.BoolVar(&opts.CSV, "csv", false, "write CSV instead of JSON")
	fs.BoolVar(&opts.Formatted, "formatted", false, "format CSV numbers for display")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	opts.Filters = filters
	opts.Guidance = splitList(guidance)
	return RollupCommand(opts)
}

func runJobs(ctx context.Context, args []string, env Env) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	year := fs.Int("year", 0, "plan year for warmup (default all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(env.Stderr, "usage: volumeplan jobs [-year N] <warmup|invalidate|stats>")
		return 2
	}

	c := NewJobsCLI(env.RedisOpts)
	defer func() { _ = c.Close() }()

	switch action := fs.Arg(0); action {
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(env.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		info, err := c.Trigger(ctx, action, *year)
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(env.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	}
	return 0
}
