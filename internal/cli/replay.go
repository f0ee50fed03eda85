package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/app"
	"github.com/roach88/vigil/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	DBPath string
	Run    string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-reduce a recorded run and check it reproduces",
		Long: `Re-reduce every recorded event of a run from the initial state and compare
each resulting state with the one recorded. Tasks are not re-run.

Without --run the most recently started run is replayed.

Exit codes:
  0 - every recorded state was reproduced
  1 - at least one state diverged
  2 - journal could not be read or run not found

Examples:
  vigil replay --db vigil.db
  vigil replay --db vigil.db --run 0190f3c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite event journal (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run token (default: latest run)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	j, err := journal.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	token, err := resolveRun(ctx, j, opts.Run)
	if err != nil {
		return err
	}

	result, err := journal.Replay(ctx, j, token, app.Initial(), app.Reduce)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if result.Replayed() {
		text := fmt.Sprintf("Run %s: %d events replayed, final visible=%v pathname=%s\n",
			token, result.Events, result.Final.Visibility.Visible, result.Final.Router.Pathname)
		return formatter.Success(result, text)
	}

	if formatter.JSON() {
		if err := formatter.Error(ErrCodeDiverged, "replay diverged", result); err != nil {
			return err
		}
	} else {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Run %s: %d of %d events diverged\n", token, len(result.Divergences), result.Events)
		for _, d := range result.Divergences {
			fmt.Fprintf(&sb, "  seq %d %s\n    recorded: %s\n    replayed: %s\n", d.Seq, d.Tag, d.Want, d.Got)
		}
		fmt.Fprint(formatter.Writer, sb.String())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("replay diverged at %d events", len(result.Divergences)))
}
