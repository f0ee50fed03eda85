package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
	Update bool
}

// ScenarioOutcome is one scenario's line in the test report.
type ScenarioOutcome struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "mismatch", "updated", "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestReport is the output of the test command.
type TestReport struct {
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against the bridge",
		Long: `Run every YAML scenario under a directory (or a single scenario file)
on a deterministic scheduler and check its expectations and assertions.

When a golden file exists at <parent>/golden/<scenario name>.golden, where
<parent> is the directory containing the scenario directory, the run's trace
snapshot must match it. --update rewrites golden files instead.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - scenarios could not be found

Examples:
  vigil test internal/harness/testdata/scenarios
  vigil test scenarios/ --filter take_latest
  vigil test scenarios/ --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name contains this string")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from this run")

	return cmd
}

func runTests(opts *TestOptions, cmd *cobra.Command, dir string) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)
	logger := newLogger(cmd.ErrOrStderr(), slog.LevelWarn, opts.Verbose)

	results, err := harness.RunSuite(ctx, dir, harness.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	report := TestReport{Scenarios: []ScenarioOutcome{}}
	for _, sr := range results {
		if opts.Filter != "" && !strings.Contains(sr.Name, opts.Filter) {
			continue
		}
		formatter.VerboseLog("Ran %s", sr.Path)

		out := ScenarioOutcome{Path: sr.Path, Name: sr.Name, Pass: sr.Passed()}
		if sr.Err != "" {
			out.Errors = append(out.Errors, sr.Err)
		}
		if sr.Result != nil {
			out.Errors = append(out.Errors, sr.Result.Errors...)
			status, err := checkGolden(sr.Path, sr.Name, sr.Result, opts.Update)
			out.Golden = status
			if err != nil {
				out.Pass = false
				out.Errors = append(out.Errors, err.Error())
			}
		}

		if out.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, out)
	}

	if err := formatter.Success(report, formatReport(report)); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Passed+report.Failed))
	}
	return nil
}

// goldenPath returns where the snapshot for a scenario file lives.
func goldenPath(scenarioPath, name string) string {
	parent := filepath.Dir(filepath.Dir(scenarioPath))
	return filepath.Join(parent, "golden", name+".golden")
}

// checkGolden compares r's snapshot with the scenario's golden file, or
// rewrites it when update is set.
func checkGolden(scenarioPath, name string, r *harness.Result, update bool) (string, error) {
	got, err := harness.Snapshot(name, r)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	path := goldenPath(scenarioPath, name)

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return "", fmt.Errorf("write golden: %w", err)
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "missing", nil
	}
	if err != nil {
		return "", fmt.Errorf("read golden: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), got) {
		return "mismatch", fmt.Errorf("trace does not match %s", path)
	}
	return "match", nil
}

func formatReport(r TestReport) string {
	var sb strings.Builder
	for _, s := range r.Scenarios {
		status := "PASS"
		if !s.Pass {
			status = "FAIL"
		}
		name := s.Name
		if name == "" {
			name = s.Path
		}
		fmt.Fprintf(&sb, "%s %s", status, name)
		if s.Golden != "" && s.Golden != "missing" {
			fmt.Fprintf(&sb, " (golden %s)", s.Golden)
		}
		sb.WriteString("\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "    %s\n", e)
		}
	}
	fmt.Fprintf(&sb, "\n%d passed, %d failed\n", r.Passed, r.Failed)
	return sb.String()
}
