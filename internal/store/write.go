package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/critpath/internal/buildinfo"
	"github.com/roach88/critpath/internal/ir"
)

// InstantBuildGraphInfo is the instant kind of a BuildGraphInfo record.
const InstantBuildGraphInfo = "build_graph_info"

// Build is one ingested build invocation.
type Build struct {
	ID        string
	Backend   string
	CreatedAt time.Time
	// Ordinal is the insertion order; set by the store.
	Ordinal int64
}

// ErrBuildExists is returned by CreateBuild for an ID already registered.
var ErrBuildExists = errors.New("build already exists")

// CreateBuild registers a build. Events and instants reference it.
// A build ID is registered once: a second CreateBuild for the same ID
// fails with ErrBuildExists and leaves the first record untouched.
func (s *Store) CreateBuild(ctx context.Context, b Build) error {
	if b.ID == "" {
		return fmt.Errorf("create build: empty build id")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, backend, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		b.ID,
		b.Backend,
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("create build %s: %w", b.ID, ErrBuildExists)
	}
	return nil
}

// AppendEvent appends an accepted event to a build's log. It implements
// engine.EventLog.
//
// The event ID is content-addressed over (buildID, seq, ev), so appending
// the same event at the same seq twice is silently ignored. The build must
// exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, buildID string, seq int64, ev ir.Event) error {
	id, err := ir.EventID(buildID, seq, ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	payload, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, build_id, seq, type, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		buildID,
		seq,
		string(ev.Type),
		payload,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// WriteBuildGraphInfo stores the build's BuildGraphInfo instant, replacing
// an earlier one.
//
// A build has at most one instant of each kind. Recomputing with another
// backend does not write; only ingest does.
func (s *Store) WriteBuildGraphInfo(ctx context.Context, buildID string, info buildinfo.BuildGraphInfo) error {
	payload, err := marshalBuildGraphInfo(info)
	if err != nil {
		return fmt.Errorf("write build graph info: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instants (build_id, kind, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(build_id, kind) DO UPDATE SET payload = excluded.payload
	`,
		buildID,
		InstantBuildGraphInfo,
		payload,
	)
	if err != nil {
		return fmt.Errorf("write build graph info: %w", err)
	}
	return nil
}
