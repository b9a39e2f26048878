package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datafinder/internal/config"
	"github.com/JonMunkholm/datafinder/internal/core"
	"github.com/JonMunkholm/datafinder/internal/history"
	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/logging"
	"github.com/JonMunkholm/datafinder/internal/merge"
	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/xlsxraw"
)

// app holds what every subcommand needs. It is built in
// PersistentPreRunE and torn down by execute.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	monitor *perf.Monitor
	service *core.Service
	store   history.Store
	out     io.Writer
	closers []io.Closer
}

// execute runs the command line in args and releases everything the
// command opened, whether or not it got as far as running.
func execute(args []string, stdout, stderr io.Writer, envLoaded bool) error {
	a := &app{}
	defer a.close()

	root := newRootCommand(a, envLoaded)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCommand(a *app, envLoaded bool) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "datafinder",
		Short:         "Search spreadsheets and merge contact phones into client files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, verbose, envLoaded)
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at debug level")

	root.AddCommand(newMatchCommand(a))
	root.AddCommand(newMergeCommand(a))
	root.AddCommand(newVerifyCommand(a))
	root.AddCommand(newServeCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, verbose, envLoaded bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	closer, err := logging.Setup(logging.Options{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Console:         cmd.ErrOrStderr(),
		ToFile:          cfg.Logging.ToFile,
		Dir:             cfg.Logging.Dir,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		ErrorMaxSizeMB:  cfg.Logging.ErrorMaxSizeMB,
		ErrorMaxBackups: cfg.Logging.ErrorMaxBackups,
	})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	a.closers = append(a.closers, closer)

	a.cfg = cfg
	a.logger = slog.Default()
	a.out = cmd.OutOrStdout()
	a.logger.Debug("configuration loaded", "env_file", envLoaded, "config", cfg.String())

	store, err := history.Open(cmd.Context(), cfg.History.DSN)
	switch {
	case errors.Is(err, history.ErrDisabled):
		a.logger.Debug("run history disabled")
	case err != nil:
		// History is diagnostic; a broken store must not block a run.
		a.logger.Warn("run history unavailable", "error", err)
	default:
		a.store = store
		a.closers = append(a.closers, store)
	}

	a.monitor = perf.NewMonitor(a.logger)
	extractor := xlsxraw.NewExtractor(cfg.Paths.ExtractTempDir, a.logger, a.monitor)
	a.service = core.NewService(core.ServiceConfig{
		Loader:  loader.New(extractor, a.logger, a.monitor),
		History: a.store,
		Limiter: core.NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWait),
		Monitor: a.monitor,
		Logger:  a.logger,
		Merge: merge.Options{
			InputDir:   cfg.Paths.InputDir,
			OutputDir:  cfg.Paths.OutputDir,
			OutputName: cfg.Paths.OutputFile,
		},
	})
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// reportedError marks an error whose message has already been shown.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// fail prints the user-facing form of err. The returned error makes the
// process exit 1 without printing again.
func (a *app) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", core.FormatUserError(err))
	if !core.IsUserFacing(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Cause:", err)
	}
	return reportedError{err}
}

func (a *app) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
