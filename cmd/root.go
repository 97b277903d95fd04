// Package cmd defines and implements the CLI commands for the vinmonitor executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vin-monitor/internal/app"
	"github.com/JakeFAU/vin-monitor/internal/config"
	"github.com/JakeFAU/vin-monitor/internal/logging"
	"github.com/JakeFAU/vin-monitor/internal/monitor"
	"github.com/JakeFAU/vin-monitor/internal/storage"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

// sessionKeyType is the key for storing the loaded session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what the root command prepares for every subcommand.
type session struct {
	cfg    config.Config
	logger *zap.Logger
}

// App defines the application interface that commands will use.
// This allows us to inject a test app.
type App interface {
	Close()
	Logger() *zap.Logger
	Store() storage.Store
	Engine(opts monitor.Options) (*monitor.Engine, error)
	PushMetrics(ctx context.Context) error
}

// newApp is the application factory. It's a variable so we can
// replace it with a test factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// openStore opens the state backend for commands that only inspect state.
var openStore = func(ctx context.Context, cfg config.StateConfig) (storage.Store, error) {
	return app.OpenStore(ctx, cfg)
}

// newLogger builds the process logger. Tests replace it with an observer.
var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Config{Development: cfg.Development, Level: cfg.Level})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "vinmonitor",
		Short: "Watch public search results for mentions of tracked vehicle identifiers.",
		Long: `vinmonitor searches web search APIs for exact-phrase mentions of each
tracked VIN, remembers every URL it has already reported, and notifies
operators only about URLs it has never seen before.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logging are resolved once here, before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return withCode(ExitConfig, fmt.Errorf("load config: %w", err))
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return withCode(ExitConfig, fmt.Errorf("init logger: %w", err))
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger}))
			return nil
		},

		// Flushing the logger buffer ensures all logs are written before exit.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if sess, ok := cmd.Context().Value(sessionKey).(*session); ok && sess != nil {
				_ = sess.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newStateCmd())

	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	sess, ok := ctx.Value(sessionKey).(*session)
	if !ok || sess == nil {
		return nil, errors.New("configuration not initialized")
	}
	return sess, nil
}

// run executes args against a fresh root command and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return ExitCode(err)
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
