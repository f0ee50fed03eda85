package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/app"
	"github.com/roach88/vigil/internal/beacon"
	"github.com/roach88/vigil/internal/config"
	"github.com/roach88/vigil/internal/journal"
	"github.com/roach88/vigil/internal/visibility"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath   string
	Source       string
	Addr         string
	Journal      string
	RunToken     string
	ReportWindow time.Duration
	NoWatch      bool
	LogActions   bool
}

// RunResult is printed when the app stops.
type RunResult struct {
	RunToken string    `json:"run_token,omitempty"`
	Final    app.State `json:"final_state"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the visibility bridge",
		Long: `Run the visibility bridge until interrupted.

With the stdin source, one visibility value per line is read from standard
input (visible, hidden, true, false, 1, 0) and the bridge stops at EOF.
With the http source, a beacon serves POST /visibility, POST /events,
GET /state and GET /healthz.

Flags override values from --config.

Examples:
  printf 'hidden\nvisible\n' | vigil run
  vigil run --source http --addr 127.0.0.1:8080 --journal vigil.db
  vigil run --config vigil.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file")
	cmd.Flags().StringVar(&opts.Source, "source", config.SourceStdin, "visibility source (stdin|http)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "beacon listen address for the http source")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite event journal")
	cmd.Flags().StringVar(&opts.RunToken, "run", "", "journal run token (default: new UUIDv7)")
	cmd.Flags().DurationVar(&opts.ReportWindow, "report-window", 0, "throttled visibility report window (0 disables)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not start watching until START_WATCHING_VISIBILITY is dispatched")
	cmd.Flags().BoolVar(&opts.LogActions, "log-actions", false, "log every dispatched event with the resulting state")

	return cmd
}

// resolveConfig merges the config file with flags that were set explicitly.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Kind = opts.Source
	}
	if flags.Changed("addr") {
		cfg.Source.Addr = opts.Addr
	}
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if flags.Changed("report-window") {
		cfg.ReportWindowMS = int(opts.ReportWindow / time.Millisecond)
	}

	if cfg.Source.Kind != config.SourceStdin && cfg.Source.Kind != config.SourceHTTP {
		return cfg, fmt.Errorf("invalid source %q: must be %s or %s", cfg.Source.Kind, config.SourceStdin, config.SourceHTTP)
	}
	if cfg.ReportWindowMS < 0 {
		return cfg, fmt.Errorf("report window must not be negative")
	}
	return cfg, nil
}

func runBridge(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Level(), opts.Verbose)

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appOpts := []app.Option{
		app.WithLogger(logger),
		app.WithReportWindow(cfg.ReportWindow()),
		app.WithAutoWatch(!opts.NoWatch),
		app.WithDispatchLog(opts.LogActions),
	}

	if cfg.Journal != "" {
		logger.Info("opening journal", "path", cfg.Journal)
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		appOpts = append(appOpts, app.WithJournal(j, opts.RunToken))
	}

	sig := visibility.NewSignal(true)
	a, err := app.New(ctx, sig, appOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start app", err)
	}

	// Drive startup before any source input so the first watch cycle is
	// subscribed when input arrives.
	a.Start()
	a.Scheduler.Flush()

	sourceErr := make(chan error, 1)
	switch cfg.Source.Kind {
	case config.SourceStdin:
		go func() {
			err := visibility.PumpLines(ctx, cmd.InOrStdin(), sig, logger)
			logger.Info("stdin source ended")
			a.Stop()
			sourceErr <- err
		}()
	case config.SourceHTTP:
		srv := beacon.New(sig, a,
			beacon.WithLogger(logger),
			beacon.WithState(func() any { return a.State() }),
		)
		go func() {
			err := srv.ListenAndServe(ctx, cfg.Source.Addr)
			a.Stop()
			sourceErr <- err
		}()
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}
	if err := awaitSource(ctx, cfg.Source.Kind, sourceErr); err != nil {
		return WrapExitError(ExitFailure, "source error", err)
	}
	if err := a.JournalErr(); err != nil {
		return WrapExitError(ExitFailure, "journal write failed", err)
	}

	result := RunResult{RunToken: a.RunToken(), Final: a.State()}
	text := fmt.Sprintf("Final state: visible=%v pathname=%s\n", result.Final.Visibility.Visible, result.Final.Router.Pathname)
	if result.RunToken != "" {
		text += fmt.Sprintf("Run: %s\n", result.RunToken)
	}
	return formatter.Success(result, text)
}

// awaitSource collects the source goroutine's result. A stdin read cannot be
// interrupted, so after a signal the stdin pump is abandoned. The beacon
// always returns once ctx is done.
func awaitSource(ctx context.Context, kind string, done <-chan error) error {
	var err error
	if kind == config.SourceStdin {
		select {
		case err = <-done:
		case <-ctx.Done():
			return nil
		}
	} else {
		err = <-done
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
