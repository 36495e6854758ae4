package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/odyssey-rbac/cmd/odyssey-rbac/cli"
	"github.com/odyssey-erp/odyssey-rbac/internal/app"
)

const usage = `odyssey-rbac: role-based access control console.

Usage:
  odyssey-rbac [console] [--audit-limit N]
  odyssey-rbac bootstrap
  odyssey-rbac audit verify [--json]
  odyssey-rbac audit tail [-n N]
  odyssey-rbac jobs trigger audit-verify
  odyssey-rbac jobs stats

Configuration is read from the environment (PG_DSN, REDIS_ADDR, AUDIT_CHAIN_KEY, ...).
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "console"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}
	if command == "help" {
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "console":
		return runConsole(ctx, cfg, logger, args, stderr)
	case "bootstrap":
		return runBootstrap(ctx, cfg, logger, args, stdout, stderr)
	case "audit":
		return runAudit(ctx, cfg, logger, args, stdout, stderr)
	case "jobs":
		return runJobs(ctx, cfg, args, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

func parseFlags(fs *pflag.FlagSet, args []string, stderr io.Writer) (bool, int) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, 0
		}
		return false, 2
	}
	return true, 0
}

func build(ctx context.Context, cfg *app.Config, logger *slog.Logger, stderr io.Writer) (*app.Container, bool) {
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return nil, false
	}
	return c, true
}

func bootstrapStores(ctx context.Context, c *app.Container) error {
	ctx, cancel := context.WithTimeout(ctx, 4*c.Config.StoreTimeout)
	defer cancel()
	_, err := c.Sequencer.Run(ctx)
	return err
}

func runConsole(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("console", pflag.ContinueOnError)
	auditLimit := fs.Int("audit-limit", 20, "entries shown by View Audit Log")
	if ok, code := parseFlags(fs, args, stderr); !ok {
		return code
	}

	c, ok := build(ctx, cfg, logger, stderr)
	if !ok {
		return 1
	}
	defer c.Close()

	if err := bootstrapStores(ctx, c); err != nil {
		_, _ = fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	return cli.NewConsole(c.Console, logger).Run(ctx, cli.ConsoleOptions{
		Stderr:     stderr,
		Timeout:    cfg.StoreTimeout,
		AuditLimit: *auditLimit,
	})
}

func runBootstrap(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	if ok, code := parseFlags(fs, args, stderr); !ok {
		return code
	}
	c, ok := build(ctx, cfg, logger, stderr)
	if !ok {
		return 1
	}
	defer c.Close()

	if err := bootstrapStores(ctx, c); err != nil {
		_, _ = fmt.Fprintf(stderr, "bootstrap: %v (stopped at %s)\n", err, c.Sequencer.State())
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "bootstrap complete")
	return 0
}

func runAudit(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	sub, args := args[0], args[1:]

	fs := pflag.NewFlagSet("audit "+sub, pflag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	limit := fs.IntP("lines", "n", 20, "number of entries")
	if ok, code := parseFlags(fs, args, stderr); !ok {
		return code
	}

	c, ok := build(ctx, cfg, logger, stderr)
	if !ok {
		return 1
	}
	defer c.Close()
	auditCLI := cli.NewAuditCLI(c.VerifyJob, c.Trail)

	switch sub {
	case "verify":
		return auditCLI.VerifyCommand(ctx, cli.AuditVerifyOptions{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "tail":
		tailCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		return auditCLI.TailCommand(tailCtx, cli.AuditTailOptions{Limit: *limit, Stdout: stdout, Stderr: stderr})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown audit command %q\n", sub)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.QueueRedisOpts())
	defer func() { _ = jobsCLI.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], "cli")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (id %s) on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}
