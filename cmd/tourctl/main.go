// tourctl is the operator CLI for a tourdesk server. It keeps the session
// token in the user config directory between invocations.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"tourdesk/cmd/internal/backoffice"
)

const defaultServer = "http://127.0.0.1:8080"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	server   string
	tokenDir string
	timeout  time.Duration
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var g globals

	flagSet := pflag.NewFlagSet("tourctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&g.server, "server", "s", envOr("TOURDESK_SERVER", defaultServer), "tourdesk base URL")
	flagSet.StringVar(&g.tokenDir, "token-dir", "", "directory holding the session token (default: user config dir)")
	flagSet.DurationVar(&g.timeout, "timeout", 15*time.Second, "per-command timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printUsage(stdout, flagSet)
		return nil
	}

	client, err := g.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd, rest := flagSet.Arg(0), flagSet.Args()[1:]
	switch cmd {
	case "login":
		return cmdLogin(ctx, client, rest, stdin, stdout)
	case "whoami":
		return cmdWhoami(ctx, client, stdout)
	case "logout":
		return cmdLogout(ctx, client, stdout)
	case "permissions":
		return cmdPermissions(ctx, client, rest, stdout)
	case "roles":
		return cmdRoles(ctx, client, stdout)
	case "users":
		return cmdUsers(ctx, client, stdout)
	default:
		return fmt.Errorf("unknown command %q (see tourctl --help)", cmd)
	}
}

func (g globals) client() (*backoffice.Client, error) {
	dir := g.tokenDir
	if dir == "" {
		var err error
		if dir, err = backoffice.DefaultTokenDir(); err != nil {
			return nil, err
		}
	}
	session := backoffice.NewSession(backoffice.FileTokenStore{Dir: dir})
	return backoffice.NewClient(g.server, session, backoffice.WithUserAgent("tourctl"))
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "Usage: tourctl [flags] <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  login --email EMAIL      Sign in; the password is read from stdin")
	fmt.Fprintln(w, "  whoami                   Show the signed-in user and permissions")
	fmt.Fprintln(w, "  logout                   Sign out and forget the stored token")
	fmt.Fprintln(w, "  permissions [ROLE]       List all permissions, or those of ROLE")
	fmt.Fprintln(w, "  roles                    List roles with their permissions")
	fmt.Fprintln(w, "  users                    List staff accounts")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func cmdLogin(ctx context.Context, c *backoffice.Client, args []string, stdin io.Reader, stdout io.Writer) error {
	var email string
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.StringVarP(&email, "email", "e", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if email == "" {
		return errors.New("login: --email is required")
	}

	password, err := readLine(stdin)
	if err != nil {
		return fmt.Errorf("login: read password: %w", err)
	}

	u, err := c.Login(ctx, email, password)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(stdout, "Signed in as %s\n", u.Email)
	return nil
}

func cmdWhoami(ctx context.Context, c *backoffice.Client, stdout io.Writer) error {
	if err := c.RestoreSession(ctx); err != nil {
		return err
	}
	u, ok := c.Session().User()
	if !ok {
		return errors.New("not signed in (run tourctl login)")
	}

	bold := color.New(color.Bold)
	bold.Fprintf(stdout, "%s", u.DisplayName)
	fmt.Fprintf(stdout, " <%s>\n", u.Email)
	fmt.Fprintf(stdout, "id:          %s\n", u.ID)
	fmt.Fprintf(stdout, "roles:       %s\n", strings.Join(u.Roles, ", "))
	fmt.Fprintf(stdout, "permissions: %s\n", strings.Join(u.Permissions, ", "))
	return nil
}

func cmdLogout(ctx context.Context, c *backoffice.Client, stdout io.Writer) error {
	if err := c.RestoreSession(ctx); err != nil && !backoffice.IsTransport(err) {
		return err
	}
	if err := c.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Signed out")
	return nil
}

func cmdPermissions(ctx context.Context, c *backoffice.Client, args []string, stdout io.Writer) error {
	if err := requireSession(ctx, c); err != nil {
		return err
	}

	var (
		perms []string
		err   error
	)
	if len(args) > 0 {
		perms, err = c.GetPermissionsByRole(ctx, args[0])
	} else {
		perms, err = c.GetAllPermissions(ctx)
	}
	if err != nil {
		return err
	}
	for _, p := range perms {
		fmt.Fprintln(stdout, p)
	}
	return nil
}

func cmdRoles(ctx context.Context, c *backoffice.Client, stdout io.Writer) error {
	if err := requireSession(ctx, c); err != nil {
		return err
	}
	roles, err := c.ListRoles(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPERMISSIONS")
	for _, r := range roles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, strings.Join(r.Permissions, ","))
	}
	return tw.Flush()
}

func cmdUsers(ctx context.Context, c *backoffice.Client, stdout io.Writer) error {
	if err := requireSession(ctx, c); err != nil {
		return err
	}
	users, err := c.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLES\tSTATUS")
	for _, u := range users {
		status := "active"
		if u.Disabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.DisplayName, strings.Join(u.Roles, ","), status)
	}
	return tw.Flush()
}

func requireSession(ctx context.Context, c *backoffice.Client) error {
	if err := c.RestoreSession(ctx); err != nil {
		return err
	}
	if c.Session().State() != backoffice.StateAuthenticated {
		return errors.New("not signed in (run tourctl login)")
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
