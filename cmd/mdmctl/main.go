package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mdm-console/mdm-console/cmd/mdmctl/cli"
	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/session"
)

const usage = `usage: mdmctl <command> [flags]

commands:
  login          sign in and store the session
  logout         revoke and clear the session
  whoami         print the stored session
  roles          list roles and their permission flags
  permissions    list the permission catalog
  toggle         flip or set one flag of a role assignment
  template       list template roles or copy one onto a role
  create-role    create a role with staged permissions
  jobs           inspect the job queue or enqueue an assignment sweep
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitUsage
	}
	cmd, rest := args[0], args[1:]

	cfg, err := session.LoadClientConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "mdmctl: load config: %v\n", err)
		return cli.ExitError
	}
	level := slog.LevelWarn
	if os.Getenv("MDM_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if cmd == "jobs" {
		return runJobs(ctx, rest, stdout, stderr)
	}

	store, closeStore := openStore(cfg)
	defer closeStore()

	base, err := apiclient.New(apiclient.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.HTTPTimeout, Logger: logger})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "mdmctl: %v\n", err)
		return cli.ExitError
	}
	provider := session.NewProvider(store, base, logger)
	if err := provider.Init(ctx); err != nil {
		logger.Warn("restore session", slog.Any("error", err))
	}
	console := cli.NewConsoleCLI(cli.ConsoleOptions{
		Provider: provider,
		API:      base.WithTokens(provider),
		Gate:     session.NewGate(),
		Logger:   logger,
		Stdout:   stdout,
		Stderr:   stderr,
	})

	fs := flag.NewFlagSet("mdmctl "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	switch cmd {
	case "login":
		email := fs.String("email", "", "employee email")
		password := fs.String("password", os.Getenv("MDM_PASSWORD"), "password (defaults to MDM_PASSWORD)")
		passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		if *passwordStdin {
			line, err := bufio.NewReader(stdin).ReadString('\n')
			if err != nil && err != io.EOF {
				_, _ = fmt.Fprintf(stderr, "login: read password: %v\n", err)
				return cli.ExitError
			}
			*password = strings.TrimRight(line, "\r\n")
		}
		return console.Login(ctx, *email, *password)
	case "logout":
		return console.Logout(ctx)
	case "whoami":
		return console.WhoAmI(ctx)
	case "roles":
		query := fs.String("q", "", "filter by role name or priority")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		return console.Roles(ctx, *query, *asJSON)
	case "permissions":
		query := fs.String("q", "", "filter by name or description")
		unassigned := fs.String("unassigned-for", "", "only permissions the role lacks")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		return console.Permissions(ctx, *query, *unassigned, *asJSON)
	case "toggle":
		role := fs.String("role", "", "role name")
		permission := fs.Int64("permission", 0, "permission id")
		field := fs.String("flag", "", "can_create, can_update, can_delete or can_export")
		value := fs.String("value", "", "set the flag to true or false instead of flipping it")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		if *value == "" {
			return console.Toggle(ctx, *role, *permission, *field)
		}
		v, err := strconv.ParseBool(*value)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "toggle: invalid -value %q\n", *value)
			return cli.ExitUsage
		}
		return console.SetFlag(ctx, *role, *permission, *field, v)
	case "template":
		opts := cli.TemplateOptions{}
		fs.StringVar(&opts.Target, "role", "", "target role")
		fs.StringVar(&opts.Template, "from", "", "template role name; omit to list templates")
		exclude := fs.String("exclude", "", "comma separated permission ids to leave out")
		fs.BoolVar(&opts.DryRun, "dry-run", false, "print the selection without applying it")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		ids, err := parseIDs(*exclude)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "template: %v\n", err)
			return cli.ExitUsage
		}
		opts.Exclude = ids
		return console.Template(ctx, opts)
	case "create-role":
		opts := cli.CreateRoleOptions{}
		fs.StringVar(&opts.Name, "name", "", "role name")
		fs.StringVar(&opts.Priority, "priority", "", "optional numeric priority")
		perms := fs.String("permissions", "", "comma separated permission ids")
		flags := fs.String("flags", "", "comma separated flags granted on every permission")
		if err := fs.Parse(rest); err != nil {
			return cli.ExitUsage
		}
		ids, err := parseIDs(*perms)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "create-role: %v\n", err)
			return cli.ExitUsage
		}
		opts.Permissions = ids
		opts.Flags = splitList(*flags)
		return console.CreateRole(ctx, opts)
	default:
		_, _ = fmt.Fprintf(stderr, "mdmctl: unknown command %q\n\n%s", cmd, usage)
		return cli.ExitUsage
	}
}

func runJobs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mdmctl jobs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	password := fs.String("redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
	if err := fs.Parse(args); err != nil {
		return cli.ExitUsage
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: mdmctl jobs [flags] stats|prune")
		return cli.ExitUsage
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: *addr, Password: *password})
	defer jobsCLI.Close()
	switch fs.Arg(0) {
	case "stats":
		return jobsCLI.StatsCommand(ctx, stdout, stderr)
	case "prune":
		return jobsCLI.PruneCommand(ctx, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "mdmctl jobs: unknown action %q\n", fs.Arg(0))
		return cli.ExitUsage
	}
}

func openStore(cfg session.ClientConfig) (session.Store, func()) {
	if cfg.RedisAddr == "" {
		return session.NewFileStore(cfg.SessionFile), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return session.NewRedisStore(client, cfg.RedisKey, 0), func() { _ = client.Close() }
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid permission id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
