package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/critpath/internal/buildinfo"
	"github.com/roach88/critpath/internal/config"
	"github.com/roach88/critpath/internal/engine"
	"github.com/roach88/critpath/internal/ir"
	"github.com/roach88/critpath/internal/store"
)

// maxEventLine bounds the length of one JSON event line.
const maxEventLine = 16 << 20

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	DBPath      string
	ConfigFile  string
	Overrides   []string
	Backend     string
	BuildID     string
	Oncall      string
	MetricsPath string
}

// IngestSummary is the result of one ingested build.
type IngestSummary struct {
	BuildID         string   `json:"build_id"`
	Backend         string   `json:"backend"`
	Events          int      `json:"events"`
	Target          string   `json:"target,omitempty"`
	Entries         int      `json:"entries"`
	TotalDurationUS int64    `json:"total_duration_us"`
	Partial         bool     `json:"partial,omitempty"`
	Diagnostics     []string `json:"diagnostics,omitempty"`
}

func (s IngestSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build %s: %d events, backend %s\n", s.BuildID, s.Events, s.Backend)
	if s.Target == "" {
		b.WriteString("  no finalized nodes, critical path is empty")
	} else {
		fmt.Fprintf(&b, "  critical path to %s: %d entries, %dus", s.Target, s.Entries, s.TotalDurationUS)
		if s.Partial {
			b.WriteString(" (partial)")
		}
	}
	for _, d := range s.Diagnostics {
		fmt.Fprintf(&b, "\n  warning: %s", d)
	}
	return b.String()
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [events.jsonl...]",
		Short: "Ingest a build's event stream and compute its critical path",
		Long: `Feed one build's events into the critical path engine and record the result.

Each file holds JSON events, one per line, of type build_start, node or edge.
Files are read concurrently; "-" reads standard input. Every accepted event is
appended to the event log and the critical path is stored as the build's
BuildGraphInfo record, readable with "critpath log critical-path".

Files are checked before the build is registered: a line that is not JSON
fails the ingest and records nothing. Invalid events are logged and skipped.
A build whose nodes did not all finish yields the critical path of its
finished part under the default backend. A build ID is recorded once.

Exit codes:
  0 - Critical path computed and recorded
  1 - No critical path could be computed, an events file is malformed, or
      the event log could not be written
  2 - Command error (bad config, missing file, build already recorded,
      database error)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config-file", "", "path to a YAML settings file")
	cmd.Flags().StringArrayVarP(&opts.Overrides, "config", "c", nil, "setting override section.key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "critical path backend (default|longest-path-graph)")
	cmd.Flags().StringVar(&opts.BuildID, "build-id", "", "build ID (default: generated UUIDv7)")
	cmd.Flags().StringVar(&opts.Oncall, "oncall", "", "oncall recorded in the build metadata")
	cmd.Flags().StringVar(&opts.MetricsPath, "metrics", "", `write engine metrics in Prometheus text format to file ("-" for stderr)`)
	cmd.MarkFlagRequired("db")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command, files []string) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	overrides := opts.Overrides
	if opts.Backend != "" {
		overrides = append(slices.Clone(overrides), config.KeyBackend+"="+opts.Backend)
	}
	cfg, err := config.Load(opts.ConfigFile, overrides)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if err := checkEventsFiles(files); err != nil {
		return err
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	engOpts := append(cfg.EngineOptions(),
		engine.WithEventLog(st),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if opts.BuildID != "" {
		engOpts = append(engOpts, engine.WithBuildID(opts.BuildID))
	}
	eng, err := engine.New(engOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	if err := st.CreateBuild(ctx, store.Build{ID: eng.BuildID(), Backend: string(eng.Backend())}); err != nil {
		if errors.Is(err, store.ErrBuildExists) {
			return WrapExitError(ExitCommandError, "build "+eng.BuildID()+" is already recorded", err)
		}
		return WrapExitError(ExitCommandError, "failed to register build", err)
	}
	out.VerboseLog("Ingesting build %s (backend %s)", eng.BuildID(), eng.Backend())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(runCtx) }()

	// One producer per file; the engine serializes their events.
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			if path == "-" {
				return produce(gctx, eng, "<stdin>", cmd.InOrStdin())
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return produce(gctx, eng, path, f)
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		cancel()
		<-runErr
		return WrapExitError(ExitFailure, "failed to read events", err)
	}

	// An interrupted ingest still records the critical path of the nodes
	// that finished.
	if ctx.Err() != nil {
		slog.Warn("ingest interrupted", "build_id", eng.BuildID())
		ctx = context.WithoutCancel(ctx)
	}
	res, err := eng.Finish(ctx)
	if rerr := <-runErr; rerr != nil && err == nil && !errors.Is(rerr, context.Canceled) {
		err = rerr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compute critical path", err)
	}

	// The record must be reproducible from the log.
	for _, d := range res.Diagnostics {
		if engine.IsEventLogError(d) {
			return WrapExitError(ExitFailure, "event log incomplete, critical path not recorded", d)
		}
	}

	meta := buildinfo.ResolveMetadata(res.Build, cfg.ClientID, opts.Oncall)
	if err := st.WriteBuildGraphInfo(ctx, res.BuildID, buildinfo.New(meta, res.Entries)); err != nil {
		return WrapExitError(ExitFailure, "failed to record critical path", err)
	}

	events, err := st.CountEvents(ctx, res.BuildID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count events", err)
	}

	if opts.MetricsPath != "" {
		if err := writeMetrics(cmd, reg, opts.MetricsPath); err != nil {
			return WrapExitError(ExitFailure, "failed to write metrics", err)
		}
	}

	summary := IngestSummary{
		BuildID:         res.BuildID,
		Backend:         string(res.Backend),
		Events:          events,
		Target:          res.Target,
		Entries:         len(res.Entries),
		TotalDurationUS: ir.Micros(res.Total),
		Partial:         res.Partial,
	}
	for _, d := range res.Diagnostics {
		summary.Diagnostics = append(summary.Diagnostics, d.Error())
	}
	return out.Success(summary)
}

// checkEventsFiles rejects missing files, a repeated "-" and files with a
// line that is not a JSON event, before anything is recorded. Standard
// input is read once, so its lines are checked only as they are ingested.
func checkEventsFiles(files []string) error {
	stdin := 0
	for _, path := range files {
		if path == "-" {
			stdin++
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "events file not found", err)
		}
		err = scanEvents(path, f, func(ir.Event) error { return nil })
		f.Close()
		if err != nil {
			return WrapExitError(ExitFailure, "malformed events file", err)
		}
	}
	if stdin > 1 {
		return NewExitError(ExitCommandError, `standard input ("-") can be read only once`)
	}
	return nil
}

// produce records every event read from r.
func produce(ctx context.Context, eng *engine.Engine, name string, r io.Reader) error {
	return scanEvents(name, r, func(ev ir.Event) error {
		return eng.Record(ctx, ev)
	})
}

// scanEvents decodes r as JSON lines and calls fn for each event. Blank
// lines are skipped.
func scanEvents(name string, r io.Reader, fn func(ir.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	line := 0
	for sc.Scan() {
		line++
		text := sc.Bytes()
		if len(strings.TrimSpace(string(text))) == 0 {
			continue
		}
		var ev ir.Event
		if err := json.Unmarshal(text, &ev); err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if err := fn(ev); err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	slog.Debug("events file consumed", "file", name, "lines", line)
	return nil
}

func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry, path string) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	var w io.Writer = cmd.ErrOrStderr()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
