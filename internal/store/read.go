package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/critpath/internal/buildinfo"
	"github.com/roach88/critpath/internal/ir"
)

// ListBuilds returns every build in insertion order.
//
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) ListBuilds(ctx context.Context) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, id, backend, created_at
		FROM builds
		ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// ReadBuild retrieves a single build by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadBuild(ctx context.Context, id string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ordinal, id, backend, created_at
		FROM builds
		WHERE id = ?
	`, id)
	return scanBuild(row)
}

// LatestBuild retrieves the most recently ingested build.
// Returns sql.ErrNoRows if the log is empty.
func (s *Store) LatestBuild(ctx context.Context) (Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ordinal, id, backend, created_at
		FROM builds
		ORDER BY ordinal DESC
		LIMIT 1
	`)
	return scanBuild(row)
}

// ReadEvents returns a build's events in seq order.
//
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE
// BINARY. Returns an empty slice (not nil) if the build has no events.
func (s *Store) ReadEvents(ctx context.Context, buildID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM events
		WHERE build_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of events logged for a build.
func (s *Store) CountEvents(ctx context.Context, buildID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE build_id = ?`, buildID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ReadBuildStarts returns a build's build_start events in seq order.
func (s *Store) ReadBuildStarts(ctx context.Context, buildID string) ([]ir.BuildStart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM events
		WHERE build_id = ? AND type = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, buildID, string(ir.EventBuildStart))
	if err != nil {
		return nil, fmt.Errorf("query build starts: %w", err)
	}
	defer rows.Close()

	starts := []ir.BuildStart{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan build start: %w", err)
		}
		ev, err := unmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		if ev.Build != nil {
			starts = append(starts, *ev.Build)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build starts: %w", err)
	}
	return starts, nil
}

// ReadBuildGraphInfo retrieves a build's BuildGraphInfo instant.
// Returns sql.ErrNoRows if the build has none.
func (s *Store) ReadBuildGraphInfo(ctx context.Context, buildID string) (buildinfo.BuildGraphInfo, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM instants
		WHERE build_id = ? AND kind = ?
	`, buildID, InstantBuildGraphInfo).Scan(&payload)
	if err != nil {
		return buildinfo.BuildGraphInfo{}, err
	}
	return unmarshalBuildGraphInfo(payload)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (Build, error) {
	var b Build
	var created string
	if err := row.Scan(&b.Ordinal, &b.ID, &b.Backend, &created); err != nil {
		if err == sql.ErrNoRows {
			return Build{}, err
		}
		return Build{}, fmt.Errorf("scan build: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Build{}, fmt.Errorf("scan build %s: created_at: %w", b.ID, err)
	}
	b.CreatedAt = t
	return b, nil
}
