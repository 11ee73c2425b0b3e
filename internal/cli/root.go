// Package cli wires the groundwork command tree. Every command resolves the
// project directory, loads .groundwork/config.yaml, and reports through exit
// codes: 0 on success, 1 on failure, 2 on usage mistakes.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks mistakes in flags or arguments so Execute can exit 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra argument validator so violations exit 2.
func usageArgs(wrapped cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := wrapped(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	project string
	noColor bool
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	dir, err := config.ResolveProjectDir(o.project)
	if err != nil {
		return nil, err
	}
	return config.NewConfig(dir)
}

// NewRoot assembles a fresh groundwork command tree.
func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "groundwork",
		Short: "Prepare the house prices dataset step by step",
		Long: "Groundwork walks the house prices training table through a\n" +
			"checklist of preparation stages: parse the data dictionary, audit\n" +
			"the raw observations, then repair, impute, categorize, and export.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				os.Setenv("NO_COLOR", "1")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return usagef("unknown command %q", args[0])
		},
	}
	root.PersistentFlags().StringVar(&opts.project, "project", "", "project directory (defaults to $GROUNDWORK_PROJECT or the working directory)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.AddCommand(
		newInitCmd(opts),
		newRunCmd(opts),
		newStatusCmd(opts),
		newDictCmd(opts),
		newAuditCmd(opts),
		newHistoryCmd(opts),
		newBoardCmd(opts),
	)
	return root
}

// Execute runs the CLI and maps errors onto exit codes.
func Execute() int {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "groundwork: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}
