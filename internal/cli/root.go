// Package cli implements the moodlelogs command line.
package cli

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

	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marcelocantos/moodlelogs/internal/config"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitUsage   = 1 // bad flags or configuration
	ExitFailure = 2 // the run itself failed
)

// App holds what the commands share.
type App struct {
	FS      afero.Fs
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Version string

	configPath string
	debug      bool
	jsonLogs   bool
	logger     *slog.Logger
}

// Execute runs the command line against the process environment and returns
// the exit code. This is called by main.main().
func Execute(version string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &App{
		FS:      afero.NewOsFs(),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Version: version,
	}
	return app.Run(ctx, os.Args[1:])
}

// Run executes args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return a.resolveError(err)
}

func (a *App) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moodlelogs",
		Short:         "Consolidate Moodle activity logs into one enriched table.",
		Long:          longHelp,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.initLogger()
		},
	}
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.ConfigPath(), "Path to config file")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&a.jsonLogs, "json", "j", false, "Log as JSON")

	root.AddCommand(
		a.runCmd(),
		a.rulesCmd(),
		a.filtersCmd(),
		a.auditCmd(),
		a.serveMCPCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *App) initLogger() {
	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if a.jsonLogs {
		handler = slog.NewJSONHandler(a.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(a.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(a.Stderr),
		})
	}
	a.logger = slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *App) loadConfig() (*config.Config, error) {
	return config.LoadFrom(a.FS, a.configPath)
}

// failure marks errors of the work a command does, as opposed to errors in
// how it was invoked.
type failure struct{ err error }

func (e *failure) Error() string { return e.err.Error() }
func (e *failure) Unwrap() error { return e.err }

func failed(err error) error {
	if err == nil {
		return nil
	}
	return &failure{err}
}

// resolveError reports err on stderr and maps it to an exit code. Errors not
// marked as failures come from flags, arguments or configuration.
func (a *App) resolveError(err error) int {
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(a.Stderr, "moodlelogs: %v\n", err)
	var f *failure
	if errors.As(err, &f) {
		return ExitFailure
	}
	return ExitUsage
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "moodlelogs %s\n", a.Version)
		},
	}
}
