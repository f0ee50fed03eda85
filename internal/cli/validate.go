package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationResult is the output of the validate command.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a CUE config file",
		Long: `Validate a config file against the vigil schema and report every error.

Exit codes:
  0 - config is valid
  1 - config has errors
  2 - file could not be read

Examples:
  vigil validate vigil.cue
  vigil validate vigil.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args[0])
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, path string) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	errs := config.Check(data, path)
	if len(errs) == 0 {
		return formatter.Success(ValidationResult{Valid: true}, fmt.Sprintf("%s: valid\n", path))
	}

	result := ValidationResult{Errors: make([]string, 0, len(errs))}
	for _, e := range errs {
		result.Errors = append(result.Errors, e.Error())
	}

	if formatter.JSON() {
		if err := formatter.Error(ErrCodeInvalid, "config invalid", result); err != nil {
			return err
		}
	} else {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %d error(s)\n", path, len(errs))
		for _, e := range result.Errors {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
		fmt.Fprint(formatter.Writer, sb.String())
	}
	return NewExitError(ExitFailure, "config invalid")
}
