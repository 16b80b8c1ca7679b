package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// BuildsOptions holds flags for the builds command.
type BuildsOptions struct {
	*RootOptions
	DBPath string
}

// BuildRow describes one ingested build.
type BuildRow struct {
	ID        string `json:"id"`
	Backend   string `json:"backend"`
	CreatedAt string `json:"created_at"`
	Events    int    `json:"events"`
}

// BuildList is the output of the builds command.
type BuildList []BuildRow

func (l BuildList) String() string {
	if len(l) == 0 {
		return "No builds."
	}
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%d", r.ID, r.Backend, r.CreatedAt, r.Events)
	}
	return b.String()
}

// NewBuildsCommand creates the builds command.
func NewBuildsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List ingested builds",
		Long: `List the builds in the event log, oldest first, with their backend,
ingestion time and number of logged events.

Exit codes:
  0 - Success
  2 - Command error (database not found)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuilds(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runBuilds(opts *BuildsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openExisting(opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	builds, err := st.ListBuilds(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list builds", err)
	}

	list := BuildList{}
	for _, b := range builds {
		n, err := st.CountEvents(ctx, b.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count events", err)
		}
		list = append(list, BuildRow{
			ID:        b.ID,
			Backend:   b.Backend,
			CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
			Events:    n,
		})
	}
	return opts.formatter(cmd).Success(list)
}
