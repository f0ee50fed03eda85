package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	DBPath string
	Run    string
	Tag    string
}

// TraceEntry is one journal row in command output.
type TraceEntry struct {
	Seq      int64           `json:"seq"`
	ID       string          `json:"id"`
	Tag      string          `json:"tag"`
	Payload  json.RawMessage `json:"payload"`
	State    json.RawMessage `json:"state"`
	Reserved bool            `json:"reserved,omitempty"`
}

// TraceResult is the output of the trace command.
type TraceResult struct {
	Run     string       `json:"run"`
	Entries []TraceEntry `json:"entries"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the recorded event timeline of a run",
		Long: `Print every event recorded for a run, in seq order, with the state the
reducer produced for it.

Without --run the most recently started run is shown.

Exit codes:
  0 - trace printed
  2 - journal could not be read or run not found

Examples:
  vigil trace --db vigil.db
  vigil trace --db vigil.db --run 0190f3c2-... --format json
  vigil trace --db vigil.db --tag setVisibility`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite event journal (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run token (default: latest run)")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only show events with this tag")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
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
	formatter.VerboseLog("Reading run %s from %s", token, opts.DBPath)

	entries, err := j.ReadRun(ctx, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{Run: token, Entries: make([]TraceEntry, 0, len(entries))}
	for _, e := range entries {
		if opts.Tag != "" && string(e.Tag) != opts.Tag {
			continue
		}
		result.Entries = append(result.Entries, TraceEntry{
			Seq:      e.Seq,
			ID:       e.ID,
			Tag:      string(e.Tag),
			Payload:  json.RawMessage(e.Payload),
			State:    json.RawMessage(e.State),
			Reserved: e.Reserved,
		})
	}

	return formatter.Success(result, formatTrace(result))
}

func formatTrace(r TraceResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run: %s\n", r.Run)
	if len(r.Entries) == 0 {
		sb.WriteString("(no events)\n")
		return sb.String()
	}
	for _, e := range r.Entries {
		marker := " "
		if e.Reserved {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%4d %s %-28s %s -> %s\n", e.Seq, marker, e.Tag, e.Payload, e.State)
	}
	return sb.String()
}

// resolveRun returns token if set, otherwise the latest run in j.
func resolveRun(ctx context.Context, j *journal.Journal, token string) (string, error) {
	runs, err := j.Runs(ctx)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if len(runs) == 0 {
		return "", NewExitError(ExitCommandError, "journal has no runs")
	}
	if token == "" {
		return runs[len(runs)-1].Token, nil
	}
	for _, r := range runs {
		if r.Token == token {
			return token, nil
		}
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("run %q not found", token))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
