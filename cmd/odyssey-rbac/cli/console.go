package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/console"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// ConsoleOptions configures an interactive session loop.
type ConsoleOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// ReadPassword overrides the no-echo prompt.
	ReadPassword func() (string, error)
	Timeout      time.Duration
	AuditLimit   int
}

// Console drives console.Service from a line-oriented terminal.
type Console struct {
	svc    *console.Service
	logger *slog.Logger
}

// NewConsole constructs a Console.
func NewConsole(svc *console.Service, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{svc: svc, logger: logger}
}

type consoleRun struct {
	*Console
	in       *bufio.Reader
	out      io.Writer
	password func() (string, error)
	timeout  time.Duration
	limit    int
	sess     *shared.Session
}

var errQuit = errors.New("quit")

// Run loops until the operator exits or input ends and returns the exit code.
func (c *Console) Run(ctx context.Context, opts ConsoleOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	r := &consoleRun{
		Console: c,
		in:      bufio.NewReader(opts.Stdin),
		out:     opts.Stdout,
		timeout: opts.Timeout,
		limit:   opts.AuditLimit,
	}
	r.password = opts.ReadPassword
	if r.password == nil {
		r.password = r.passwordReader(opts.Stdin)
	}

	for {
		var err error
		if r.sess == nil {
			err = r.loggedOut(ctx)
		} else {
			err = r.loggedIn(ctx)
		}
		switch {
		case err == nil:
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			if r.sess != nil {
				r.logout(ctx)
			}
			return 0
		case ctx.Err() != nil:
			return 130
		default:
			_, _ = fmt.Fprintf(opts.Stderr, "console: %v\n", err)
			return 1
		}
	}
}

func (r *consoleRun) loggedOut(ctx context.Context) error {
	r.println("\n=== RBAC System ===")
	r.println("1. Login")
	r.println("2. Exit")
	choice, err := r.prompt("Select option: ")
	if err != nil {
		return err
	}
	switch choice {
	case "1":
		return r.login(ctx)
	case "2":
		r.println("Exiting system...")
		return errQuit
	default:
		r.println("Invalid option!")
		return nil
	}
}

func (r *consoleRun) login(ctx context.Context) error {
	username, err := r.prompt("\nUsername: ")
	if err != nil {
		return err
	}
	r.printf("Password: ")
	password, err := r.password()
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	sess, err := r.svc.Login(opCtx, username, password)
	if err != nil {
		r.report(err)
		return nil
	}
	r.sess = sess
	r.printf("\nLogin successful! Welcome %s\n", sess.FullName)
	return nil
}

func (r *consoleRun) loggedIn(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	actions, err := r.svc.Actions(opCtx, r.sess)
	cancel()
	if err != nil {
		r.report(err)
		r.sess = nil
		return nil
	}

	r.println("\n=== Menu ===")
	r.printf("User: %s (%s)\n", r.sess.FullName, r.sess.Username)
	for i, a := range actions {
		r.printf("%d. %s\n", i+1, a.Label)
	}
	choice, err := r.prompt("Select option: ")
	if err != nil {
		return err
	}
	n, convErr := strconv.Atoi(choice)
	if convErr != nil || n < 1 || n > len(actions) {
		r.println("Invalid option!")
		return nil
	}
	return r.dispatch(ctx, actions[n-1])
}

func (r *consoleRun) dispatch(ctx context.Context, action rbac.Action) error {
	if action.Key == rbac.EndSession.Key {
		r.logout(ctx)
		return nil
	}
	if action.Key == console.KeyCreateUser {
		return r.createUser(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var err error
	switch action.Key {
	case console.KeyDashboard:
		err = r.dashboard(opCtx)
	case console.KeyListUsers:
		err = r.listUsers(opCtx)
	case console.KeyListRoles:
		err = r.listRoles(opCtx)
	case console.KeyEditData:
		r.println("\nEditing data...")
		if err = r.svc.EditData(opCtx, r.sess); err == nil {
			r.println("Data edited successfully!")
		}
	case console.KeyAuditLog:
		err = r.auditLog(opCtx)
	default:
		r.println("Action not implemented!")
	}
	if err != nil {
		r.report(err)
	}
	return nil
}

func (r *consoleRun) logout(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.svc.Logout(opCtx, r.sess); err != nil {
		r.logger.Warn("logout audit failed", slog.String("username", r.sess.Username), slog.Any("error", err))
	}
	r.sess = nil
	r.println("Logged out.")
}

func (r *consoleRun) dashboard(ctx context.Context) error {
	d, err := r.svc.Dashboard(ctx, r.sess)
	if err != nil {
		return err
	}
	r.println("\n=== Dashboard ===")
	r.printf("Welcome %s!\n", d.FullName)
	r.printf("Permissions: %s\n", strings.Join(d.Permissions, ", "))
	r.printf("Current time: %s\n", d.Now.Format(time.RFC3339))
	return nil
}

func (r *consoleRun) listUsers(ctx context.Context) error {
	list, err := r.svc.ListUsers(ctx, r.sess)
	if err != nil {
		return err
	}
	r.println("\n=== User List ===")
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUsername\tFull Name\tRoles")
	for _, u := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.FullName, strings.Join(u.Roles, ", "))
	}
	return tw.Flush()
}

func (r *consoleRun) listRoles(ctx context.Context) error {
	list, err := r.svc.ListRoles(ctx, r.sess)
	if err != nil {
		return err
	}
	r.println("\n=== Role List ===")
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tName\tPermissions")
	for _, role := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", role.ID, role.Name, role.PermissionList())
	}
	return tw.Flush()
}

func (r *consoleRun) auditLog(ctx context.Context) error {
	entries, err := r.svc.AuditLog(ctx, r.sess, r.limit)
	if err != nil {
		return err
	}
	r.println("\n=== Audit Log ===")
	return writeEntries(r.out, entries)
}

func (r *consoleRun) createUser(ctx context.Context) error {
	r.println("\n=== Create New User ===")
	var in console.NewAccount
	var err error
	if in.Username, err = r.prompt("Username: "); err != nil {
		return err
	}
	r.printf("Password: ")
	if in.Password, err = r.password(); err != nil {
		return err
	}
	if in.FullName, err = r.prompt("Full Name: "); err != nil {
		return err
	}
	if in.Role, err = r.prompt("Role: "); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	user, err := r.svc.CreateUser(opCtx, r.sess, in)
	if err != nil {
		r.report(err)
		return nil
	}
	r.printf("User %s created successfully!\n", user.Username)
	return nil
}

func (r *consoleRun) report(err error) {
	r.printf("Error: %s\n", shared.UserSafeMessage(err))
	r.logger.Warn("console operation failed", slog.Any("error", err))
}

func (r *consoleRun) prompt(label string) (string, error) {
	r.printf("%s", label)
	return r.readLine()
}

func (r *consoleRun) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// passwordReader disables echo when stdin is a terminal. Otherwise passwords
// are read as plain lines.
func (r *consoleRun) passwordReader(stdin io.Reader) func() (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || app.InTestMode() || !term.IsTerminal(int(f.Fd())) {
		return r.readLine
	}
	return func() (string, error) {
		raw, err := term.ReadPassword(int(f.Fd()))
		r.println("")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

func (r *consoleRun) println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

func (r *consoleRun) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
