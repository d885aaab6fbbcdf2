package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/console"
	"github.com/mdm-console/mdm-console/internal/rbac"
	"github.com/mdm-console/mdm-console/internal/session"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitUsage  = 2
	ExitDenied = 3
)

var _ console.API = (*apiclient.Client)(nil)

// ConsoleCLI runs console workflows for one operator session.
type ConsoleCLI struct {
	provider *session.Provider
	board    *console.Board
	gate     session.Gate
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
}

// ConsoleOptions wires a ConsoleCLI.
type ConsoleOptions struct {
	Provider *session.Provider
	API      console.API
	Gate     session.Gate
	Logger   *slog.Logger
	Stdout   io.Writer
	Stderr   io.Writer
}

// NewConsoleCLI constructs a ConsoleCLI.
func NewConsoleCLI(opts ConsoleOptions) *ConsoleCLI {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConsoleCLI{
		provider: opts.Provider,
		board:    console.NewBoard(opts.API, opts.Logger),
		gate:     opts.Gate,
		logger:   opts.Logger,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
	}
}

// Login signs in and stores the session.
func (c *ConsoleCLI) Login(ctx context.Context, email, password string) int {
	s, err := c.provider.Login(ctx, email, password)
	if err != nil {
		return c.fail("login", err)
	}
	role := "(none)"
	if s.HasRole() {
		role = s.RoleName()
	}
	_, _ = fmt.Fprintf(c.stdout, "signed in as %s <%s>, role %s\n", s.User.DisplayName, s.User.Email, role)
	if !s.HasRole() {
		_, _ = fmt.Fprintln(c.stdout, "no role is bound to this account; ask an administrator to assign one")
	}
	return ExitOK
}

// Logout clears the stored session.
func (c *ConsoleCLI) Logout(ctx context.Context) int {
	if err := c.provider.Logout(ctx); err != nil {
		return c.fail("logout", err)
	}
	_, _ = fmt.Fprintln(c.stdout, "signed out")
	return ExitOK
}

// WhoAmI prints the stored session.
func (c *ConsoleCLI) WhoAmI(ctx context.Context) int {
	s := c.provider.Current()
	if !s.Authenticated() {
		_, _ = fmt.Fprintln(c.stdout, "not signed in")
		return ExitOK
	}
	role := "(none)"
	if s.HasRole() {
		role = s.RoleName()
	}
	_, _ = fmt.Fprintf(c.stdout, "%s <%s>\nrole: %s\n", s.User.DisplayName, s.User.Email, role)
	if !s.ExpiresAt.IsZero() {
		_, _ = fmt.Fprintf(c.stdout, "expires: %s\n", s.ExpiresAt.Format("2006-01-02 15:04 MST"))
	}
	return ExitOK
}

// Roles lists roles and their assignments, optionally filtered.
func (c *ConsoleCLI) Roles(ctx context.Context, query string, asJSON bool) int {
	if code, ok := c.open(ctx); !ok {
		return code
	}
	roles := c.board.FilterRoles(query)
	if asJSON {
		return c.writeJSON(roles)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ROLE\tPRIORITY\tPERMISSION\tCREATE\tUPDATE\tDELETE\tEXPORT")
	for _, r := range roles {
		priority := "-"
		if r.Priority != nil {
			priority = strconv.FormatInt(*r.Priority, 10)
		}
		if len(r.Permissions) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t(none)\t\t\t\t\n", r.Name, priority)
			continue
		}
		ids := make([]int64, 0, len(r.Permissions))
		for id := range r.Permissions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			p := r.Permissions[id]
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d %s\t%s\t%s\t%s\t%s\n", r.Name, priority, id, p.Name,
				mark(p.CanCreate), mark(p.CanUpdate), mark(p.CanDelete), mark(p.CanExport))
		}
	}
	_ = tw.Flush()
	return ExitOK
}

// Permissions lists the catalog, or the permissions a role lacks when unassignedFor is set.
func (c *ConsoleCLI) Permissions(ctx context.Context, query, unassignedFor string, asJSON bool) int {
	if code, ok := c.open(ctx); !ok {
		return code
	}
	var perms []rbac.Permission
	if unassignedFor != "" {
		perms = c.board.Unassigned(unassignedFor)
	} else {
		perms = c.board.FilterPermissions(query)
	}
	if asJSON {
		return c.writeJSON(perms)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION\tTEMPLATES")
	for _, p := range perms {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Description, strings.Join(p.TemplateRoles.EnabledNames(), ","))
	}
	_ = tw.Flush()
	return ExitOK
}

// Toggle flips one flag on an existing assignment.
func (c *ConsoleCLI) Toggle(ctx context.Context, role string, permissionID int64, rawField string) int {
	return c.changeFlag(ctx, "toggle", role, permissionID, rawField, nil)
}

// SetFlag sets one flag on an existing assignment to value.
func (c *ConsoleCLI) SetFlag(ctx context.Context, role string, permissionID int64, rawField string, value bool) int {
	return c.changeFlag(ctx, "set", role, permissionID, rawField, &value)
}

func (c *ConsoleCLI) changeFlag(ctx context.Context, op, role string, permissionID int64, rawField string, value *bool) int {
	field, err := rbac.ParseField(rawField)
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "%s: %v\n", op, err)
		return ExitUsage
	}
	if code, ok := c.open(ctx); !ok {
		return code
	}
	if value == nil {
		err = c.board.ToggleFlag(ctx, role, permissionID, field)
	} else {
		err = c.board.SetFlag(ctx, role, permissionID, field, *value)
	}
	if err != nil {
		return c.fail(op, err)
	}
	r, _ := c.board.Role(role)
	_, _ = fmt.Fprintf(c.stdout, "%s on %s is now %t\n", field, r.Permissions[permissionID].Name, r.Permissions[permissionID].Get(field))
	return ExitOK
}

// TemplateOptions drives the template subcommand.
type TemplateOptions struct {
	Target   string
	Template string
	Exclude  []int64
	DryRun   bool
}

// Template lists template names, or copies a template's permissions onto a role.
func (c *ConsoleCLI) Template(ctx context.Context, opts TemplateOptions) int {
	if code, ok := c.open(ctx); !ok {
		return code
	}
	if opts.Template == "" {
		names := c.board.TemplateNames()
		if len(names) == 0 {
			_, _ = fmt.Fprintln(c.stdout, "no template roles found in permissions")
		}
		for _, n := range names {
			_, _ = fmt.Fprintln(c.stdout, n)
		}
		return ExitOK
	}
	sel := c.board.StartTemplateCopy(opts.Target, opts.Template)
	for _, id := range opts.Exclude {
		sel.Toggle(id)
	}
	if opts.DryRun {
		selected := map[int64]bool{}
		for _, id := range sel.Selected() {
			selected[id] = true
		}
		for _, p := range sel.Candidates() {
			_, _ = fmt.Fprintf(c.stdout, "[%s] %d %s\n", checkbox(selected[p.ID]), p.ID, p.Name)
		}
		return ExitOK
	}
	n, err := sel.Apply(ctx)
	if err != nil {
		return c.fail("template", err)
	}
	_, _ = fmt.Fprintf(c.stdout, "%d permission(s) added from template %s\n", n, opts.Template)
	return ExitOK
}

// CreateRoleOptions drives the create-role subcommand.
type CreateRoleOptions struct {
	Name        string
	Priority    string
	Permissions []int64
	// Flags are applied to every staged permission.
	Flags []string
}

// CreateRole creates a role and assigns the staged permissions.
func (c *ConsoleCLI) CreateRole(ctx context.Context, opts CreateRoleOptions) int {
	if code, ok := c.open(ctx); !ok {
		return code
	}
	draft := c.board.NewRoleDraft()
	draft.Name = opts.Name
	draft.Priority = opts.Priority
	fields := make([]rbac.Field, 0, len(opts.Flags))
	for _, raw := range opts.Flags {
		field, err := rbac.ParseField(raw)
		if err != nil {
			_, _ = fmt.Fprintf(c.stderr, "create-role: %v\n", err)
			return ExitUsage
		}
		fields = append(fields, field)
	}
	for _, id := range opts.Permissions {
		if err := draft.Stage(id); err != nil {
			return c.fail("create-role", err)
		}
		for _, f := range fields {
			_ = draft.SetFlag(id, f, true)
		}
	}
	saved, err := draft.Commit(ctx)
	if err != nil {
		var partial *console.PartialCommitError
		if errors.As(err, &partial) {
			_, _ = fmt.Fprintf(c.stdout, "role %s created\n", partial.Role.Name)
		}
		return c.fail("create-role", err)
	}
	_, _ = fmt.Fprintf(c.stdout, "role %s created with %d permission(s)\n", saved.Name, len(opts.Permissions))
	return ExitOK
}

// open enforces the gate then loads the board.
func (c *ConsoleCLI) open(ctx context.Context) (int, bool) {
	decision := c.gate.Check(c.provider.Current())
	if !decision.Allowed {
		_, _ = fmt.Fprintf(c.stderr, "Access Denied\n%s\n", decision.Reason)
		return ExitDenied, false
	}
	if err := c.board.Load(ctx); err != nil {
		return c.fail("load", err), false
	}
	return ExitOK, true
}

func (c *ConsoleCLI) fail(op string, err error) int {
	c.logger.Debug(op, slog.Any("error", err))
	_, _ = fmt.Fprintf(c.stderr, "%s: %s\n", op, apiclient.Message(err))
	if errors.Is(err, apiclient.ErrAuth) {
		return ExitDenied
	}
	return ExitError
}

func (c *ConsoleCLI) writeJSON(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(c.stderr, "encode json: %v\n", err)
		return ExitError
	}
	return ExitOK
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func checkbox(b bool) string {
	if b {
		return "x"
	}
	return " "
}
