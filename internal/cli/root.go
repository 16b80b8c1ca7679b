package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/critpath/internal/config"
	"github.com/roach88/critpath/internal/engine"
	"github.com/roach88/critpath/internal/report"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{string(report.FormatText), string(report.FormatJSON)}

// NewRootCommand creates the root command for the critpath CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "critpath",
		Short: "critpath - build critical path analysis",
		Long: `Assemble a build's dependency graph from its event stream and report the
critical path: the chain of load, analysis, action and materialization steps
that bounded the build's wall-clock time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewBuildsCommand(opts))

	return cmd, opts
}

// Execute runs the CLI with args and returns the process exit code.
// A failed command is reported through OutputFormatter: as a JSON response
// on stdout with --format json, as text on stderr otherwise.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	f := &OutputFormatter{Format: "text", Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == string(report.FormatJSON) {
		f.Format = opts.Format
		f.Writer = stdout
	}
	var details any
	if exitErr, ok := err.(*ExitError); ok && exitErr.Err != nil {
		details = exitErr.Err.Error()
	}
	f.Error(errorCode(err), err.Error(), details)
	return GetExitCode(err)
}

// errorCode classifies err for error responses.
func errorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case config.IsConfigError(err):
		return ErrCodeConfig
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case engine.IsNoCriticalPath(err), engine.IsIncompleteGraph(err):
		return ErrCodeCriticalPath
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ErrCodeEvents
	}
	return ErrCodeGeneric
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
