package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/critpath/internal/criticalpath"
	"github.com/roach88/critpath/internal/engine"
	"github.com/roach88/critpath/internal/ir"
	"github.com/roach88/critpath/internal/report"
	"github.com/roach88/critpath/internal/store"
)

// LogOptions holds flags shared by the log subcommands.
type LogOptions struct {
	*RootOptions
	DBPath  string
	BuildID string
}

// CriticalPathOptions holds flags for the log critical-path command.
type CriticalPathOptions struct {
	*LogOptions
	Reverse bool
	Backend string
}

// NewLogCommand creates the log command and its subcommands.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect ingested builds",
		Long: `Read the records of an ingested build from the event log.

Subcommands select a build with --build; the most recently ingested build is
used when it is omitted.`,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.BuildID, "build", "", "build ID (default: most recent build)")
	cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newCriticalPathCommand(opts))
	cmd.AddCommand(newBuildGraphInfoCommand(opts))
	return cmd
}

func newCriticalPathCommand(logOpts *LogOptions) *cobra.Command {
	opts := &CriticalPathOptions{LogOptions: logOpts}

	cmd := &cobra.Command{
		Use:   "critical-path",
		Short: "Print a build's critical path",
		Long: `Print the critical path of an ingested build, one entry per line.

Entries are in chronological order: the root load first and the critical
path computation itself last. --reverse prints them the other way round.

Text output is tab separated with the columns kind, name, category,
identifier, execution_kind, total_duration, user_duration and
potential_improvement_duration. JSON output is one object per line with the
same keys. Durations are microseconds.

--backend recomputes the path from the logged events with the given backend
instead of printing the recorded one.

Exit codes:
  0 - Critical path printed
  1 - No critical path recorded or computable for the build
  2 - Command error (unknown build, unsupported format or backend)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCriticalPath(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "print the last entry first")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "recompute with this backend (default|longest-path-graph)")
	return cmd
}

func runCriticalPath(opts *CriticalPathOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	format, err := report.ParseFormat(opts.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid format", err)
	}
	var backend criticalpath.BackendKind
	if opts.Backend != "" {
		if backend, err = criticalpath.ParseBackend(opts.Backend); err != nil {
			return WrapExitError(ExitCommandError, "invalid backend", err)
		}
	}

	st, err := openExisting(opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	build, err := resolveBuild(ctx, st, opts.BuildID)
	if err != nil {
		return err
	}

	var entries []ir.Entry
	if backend != "" {
		events, err := st.ReadEvents(ctx, build.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read events", err)
		}
		res, err := engine.Replay(ctx, events, engine.WithBackend(backend), engine.WithBuildID(build.ID))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to compute critical path", err)
		}
		entries = res.Entries
	} else {
		info, err := st.ReadBuildGraphInfo(ctx, build.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitFailure, fmt.Sprintf("build %s has no recorded critical path", build.ID))
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read critical path", err)
		}
		entries = info.Entries()
	}

	var ropts []report.Option
	if opts.Reverse {
		ropts = append(ropts, report.Reversed())
	}
	return report.Render(cmd.OutOrStdout(), entries, format, ropts...)
}

func newBuildGraphInfoCommand(opts *LogOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build-graph-info",
		Short: "Print a build's BuildGraphInfo record as JSON",
		Long: `Print the BuildGraphInfo record stored for an ingested build: its
metadata (username, client, oncall) and its critical_path2 entries.

Exit codes:
  0 - Record printed
  1 - No record stored for the build
  2 - Command error (unknown build, database not found)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openExisting(opts.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			build, err := resolveBuild(ctx, st, opts.BuildID)
			if err != nil {
				return err
			}
			info, err := st.ReadBuildGraphInfo(ctx, build.ID)
			if errors.Is(err, sql.ErrNoRows) {
				return NewExitError(ExitFailure, fmt.Sprintf("build %s has no BuildGraphInfo record", build.ID))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read BuildGraphInfo", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

// openExisting opens the store at path, which must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// resolveBuild returns the build with the given ID, or the latest build when
// id is empty.
func resolveBuild(ctx context.Context, st *store.Store, id string) (store.Build, error) {
	if id == "" {
		b, err := st.LatestBuild(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Build{}, NewExitError(ExitCommandError, "no builds in database")
		}
		if err != nil {
			return store.Build{}, WrapExitError(ExitFailure, "failed to read builds", err)
		}
		return b, nil
	}
	b, err := st.ReadBuild(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Build{}, NewExitError(ExitCommandError, fmt.Sprintf("build %q not found", id))
	}
	if err != nil {
		return store.Build{}, WrapExitError(ExitFailure, "failed to read build", err)
	}
	return b, nil
}
