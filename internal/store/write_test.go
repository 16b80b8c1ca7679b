package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/buildinfo"
	"github.com/roach88/critpath/internal/engine"
	"github.com/roach88/critpath/internal/ir"
	"github.com/roach88/critpath/internal/testutil"
)

func TestCreateBuild(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestBuild(t, s, "build-1")

	got, err := s.ReadBuild(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "default", got.Backend)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, int64(1), got.Ordinal)

	// Re-registering fails and keeps the first record.
	err = s.CreateBuild(ctx, Build{ID: "build-1", Backend: "longest-path-graph"})
	require.ErrorIs(t, err, ErrBuildExists)
	got, err = s.ReadBuild(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Backend)

	assert.Error(t, s.CreateBuild(ctx, Build{}))
}

func TestAppendEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	events := testutil.FourStepChain().Events()
	for i, ev := range events {
		require.NoError(t, s.AppendEvent(ctx, "build-1", int64(i+1), ev))
	}

	got, err := s.ReadEvents(ctx, "build-1")
	require.NoError(t, err)
	require.Len(t, got, len(events))

	for i := range events {
		want, err := ir.EventID("build-1", int64(i+1), events[i])
		require.NoError(t, err)
		have, err := ir.EventID("build-1", int64(i+1), got[i])
		require.NoError(t, err)
		assert.Equal(t, want, have, "event %d changed in storage", i+1)
	}
}

func TestAppendEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	ev := ir.EdgeEvent("a", "b")
	require.NoError(t, s.AppendEvent(ctx, "build-1", 1, ev))
	require.NoError(t, s.AppendEvent(ctx, "build-1", 1, ev))

	n, err := s.CountEvents(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same record at a different position is another observation.
	require.NoError(t, s.AppendEvent(ctx, "build-1", 2, ev))
	n, err = s.CountEvents(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAppendEvent_SeqConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	require.NoError(t, s.AppendEvent(ctx, "build-1", 1, ir.EdgeEvent("a", "b")))
	assert.Error(t, s.AppendEvent(ctx, "build-1", 1, ir.EdgeEvent("c", "d")))
}

func TestAppendEvent_UnknownBuild(t *testing.T) {
	s := createTestStore(t)
	err := s.AppendEvent(context.Background(), "missing", 1, ir.EdgeEvent("a", "b"))
	assert.Error(t, err, "foreign key should reject events of unknown builds")
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.AppendEvent(ctx, "build-1", seq, ir.EdgeEvent("n", string(rune('a'+seq)))))
	}

	got, err := s.ReadEvents(ctx, "build-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Edge.To)
	assert.Equal(t, "c", got[1].Edge.To)
	assert.Equal(t, "d", got[2].Edge.To)

	empty, err := s.ReadEvents(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestReadBuildStarts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	chain := testutil.FourStepChain()
	for i, ev := range chain.Events() {
		require.NoError(t, s.AppendEvent(ctx, "build-1", int64(i+1), ev))
	}

	starts, err := s.ReadBuildStarts(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.BuildStart{chain.Start}, starts)
}

func TestBuildGraphInfo_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	entries := []ir.Entry{
		ir.EntryFromNode(testutil.FourStepChain().Nodes[0]),
		ir.SentinelEntry(7 * time.Microsecond),
	}
	info := buildinfo.New(buildinfo.Metadata{Username: "u", Client: "myclient", Oncall: "myoncall"}, entries)
	require.NoError(t, s.WriteBuildGraphInfo(ctx, "build-1", info))

	got, err := s.ReadBuildGraphInfo(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, info, got)

	// A second write replaces the first.
	info2 := buildinfo.New(buildinfo.Metadata{Username: "v"}, nil)
	require.NoError(t, s.WriteBuildGraphInfo(ctx, "build-1", info2))
	got, err = s.ReadBuildGraphInfo(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["username"])
	assert.Empty(t, got.CriticalPath2)
}

func TestBuildGraphInfo_NilCollections(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	require.NoError(t, s.WriteBuildGraphInfo(ctx, "build-1", buildinfo.BuildGraphInfo{}))
	got, err := s.ReadBuildGraphInfo(ctx, "build-1")
	require.NoError(t, err)
	assert.Empty(t, got.CriticalPath2)
}

func TestReadBuildGraphInfo_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadBuildGraphInfo(context.Background(), "build-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListBuilds_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	builds, err := s.ListBuilds(ctx)
	require.NoError(t, err)
	assert.NotNil(t, builds)
	assert.Empty(t, builds)

	_, err = s.LatestBuild(ctx)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		createTestBuild(t, s, id)
	}

	builds, err = s.ListBuilds(ctx)
	require.NoError(t, err)
	require.Len(t, builds, 3)
	assert.Equal(t, "zeta", builds[0].ID)
	assert.Equal(t, "alpha", builds[1].ID)
	assert.Equal(t, "mid", builds[2].ID)

	latest, err := s.LatestBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mid", latest.ID)

	_, err = s.ReadBuild(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

// Store as the engine's event log: a replay of the stored events yields the
// live result.
func TestStore_EngineEventLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestBuild(t, s, "build-1")

	clock := testutil.NewFakeClock(testutil.ChainStart, time.Microsecond)
	e, err := engine.New(
		engine.WithBuildID("build-1"),
		engine.WithEventLog(s),
		engine.WithNow(clock.Now),
	)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.Run(runCtx)

	events := testutil.FourStepChain().Events()
	for _, ev := range events {
		require.NoError(t, e.Record(ctx, ev))
	}
	live, err := e.Finish(ctx)
	require.NoError(t, err)

	stored, err := s.ReadEvents(ctx, "build-1")
	require.NoError(t, err)
	require.Len(t, stored, len(events))

	replay := testutil.NewFakeClock(testutil.ChainStart, time.Microsecond)
	res, err := engine.Replay(ctx, stored, engine.WithBuildID("build-1"), engine.WithNow(replay.Now))
	require.NoError(t, err)
	assert.Equal(t, live.Entries, res.Entries)
}
