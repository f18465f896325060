// Package app wires towerctl together: configuration, logging, the HTTP
// client and the controller session behind the cobra commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aussiebroadwan/tower/internal/towerctl/config"
	"github.com/aussiebroadwan/tower/pkg/httpx"
	"github.com/aussiebroadwan/tower/pkg/idx"
	"github.com/aussiebroadwan/tower/pkg/slogx"
	"github.com/aussiebroadwan/tower/pkg/towersdk"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	tokenDescription = "towerctl"
)

// PasswordPrompt asks the user for the password of username.
type PasswordPrompt func(username string) (string, error)

// Application holds what a towerctl invocation needs across commands.
type Application struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *towersdk.Session

	envFile string
	prompt  PasswordPrompt
	stdout  io.Writer
	stderr  io.Writer

	// Flag values, applied over the loaded config
	host     string
	username string
	insecure bool
}

// Option configures an Application.
type Option func(*Application)

// WithEnvFile reads configuration from path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(a *Application) { a.envFile = path }
}

// WithPasswordPrompt replaces the terminal password prompt.
func WithPasswordPrompt(p PasswordPrompt) Option {
	return func(a *Application) { a.prompt = p }
}

// WithOutput sends command output to stdout and diagnostics to stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *Application) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// New creates an Application. Nothing is loaded or sent until a command runs.
func New(opts ...Option) *Application {
	a := &Application{
		envFile: config.DefaultEnvFile,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prompt == nil {
		a.prompt = a.terminalPrompt
	}
	return a
}

// Execute runs the command line args against the application. The token
// created for the run is revoked afterwards, whether the command failed or not.
func (a *Application) Execute(ctx context.Context, args []string) error {
	root := a.RootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.disconnect(context.WithoutCancel(ctx))
	return err
}

// RootCommand builds the towerctl command tree.
func (a *Application) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "towerctl",
		Short:         "Inspect an automation controller from the command line",
		Version:       BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(cmd)
		},
	}

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.host, "host", "", "Controller URL (overrides TOWER_HOST)")
	root.PersistentFlags().StringVarP(&a.username, "username", "u", "", "Login user (overrides TOWER_USERNAME)")
	root.PersistentFlags().BoolVar(&a.insecure, "insecure", false, "Skip TLS certificate verification (overrides TOWER_INSECURE)")

	root.AddCommand(
		a.whoamiCmd(),
		a.endpointsCmd(),
		a.groupsCmd(),
	)

	return root
}

// connect loads configuration, builds the session and authenticates it.
func (a *Application) connect(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(a.envFile)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	a.cfg = cfg

	a.logger = slogx.New(slogx.Config{
		Service: "towerctl",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  a.stderr,
	})

	// Every log line of this invocation, HTTP ones included, carries the run id
	ctx := slogx.WithContext(cmd.Context(), a.logger.With(
		"command", cmd.CommandPath(),
		"run_id", idx.New().String(),
	))
	cmd.SetContext(ctx)

	if cfg.Host == "" {
		return errors.New("no controller given: set TOWER_HOST or pass --host")
	}
	if cfg.Username == "" {
		return errors.New("no user given: set TOWER_USERNAME or pass --username")
	}
	if cfg.Password == "" {
		if cfg.Password, err = a.prompt(cfg.Username); err != nil {
			return err
		}
	}

	client := httpx.NewClient(
		httpx.ClientConfig{Timeout: cfg.RequestTimeout(), Insecure: cfg.Insecure},
		httpx.RequestIDTransport(),
		httpx.LoggingTransport(a.logger),
		httpx.RateLimitByHost(cfg.RateLimit()),
	)

	a.session, err = towersdk.NewSession(cfg.Host,
		towersdk.WithHTTPClient(client),
		towersdk.WithAPIVersion(cfg.APIVersion),
		towersdk.WithDefaultTokenLifetime(cfg.DefaultTokenLifetime()),
		towersdk.WithTokenDescription(tokenDescription),
	)
	if err != nil {
		return err
	}

	if err := a.session.Authenticate(ctx, cfg.Credentials()); err != nil {
		return fmt.Errorf("login to %s as %s: %w", a.session, cfg.Username, err)
	}

	slogx.FromContext(ctx).Debug("authenticated",
		"controller", a.session.String(),
		"user", a.session.Me().Username,
		"token", a.session.Token().String(),
	)
	return nil
}

// disconnect revokes the token created by connect. A failure is only logged,
// the command's own result stands.
func (a *Application) disconnect(ctx context.Context) {
	if a.session == nil {
		return
	}
	if err := a.session.Logout(ctx); err != nil {
		slogx.FromContext(ctx).Warn("failed to revoke token", "error", err)
	}
}

func (a *Application) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.host
	}
	if flags.Changed("username") {
		cfg.Username = a.username
	}
	if flags.Changed("insecure") {
		cfg.Insecure = a.insecure
	}
}

// terminalPrompt reads a password from the terminal without echoing it.
func (a *Application) terminalPrompt(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given: set TOWER_PASSWORD or run from a terminal")
	}

	fmt.Fprintf(a.stderr, "Password for %s: ", username)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimRight(string(pw), "\r\n"), nil
}
