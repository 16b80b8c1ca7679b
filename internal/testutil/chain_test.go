package testutil

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critpath/internal/ir"
)

func TestFourStepChain_Shape(t *testing.T) {
	b := FourStepChain()

	counts := map[ir.NodeKind]int{}
	for _, n := range b.Nodes {
		require.NoError(t, n.Validate())
		require.NoError(t, n.CheckExecutionKind())
		counts[n.Kind()]++
	}
	assert.Equal(t, map[ir.NodeKind]int{
		ir.KindLoad:            1,
		ir.KindAnalysis:        4,
		ir.KindAction:          4,
		ir.KindMaterialization: 1,
	}, counts)

	for _, e := range b.Edges {
		from, to := b.Node(e.From), b.Node(e.To)
		assert.False(t, to.Start.Before(from.End), "%s starts before %s ends", e.To, e.From)
	}
}

func TestFourStepChain_EventsRoundTrip(t *testing.T) {
	b := FourStepChain()
	events := b.Events()
	require.Equal(t, ir.EventBuildStart, events[0].Type)

	path := WriteEventsFile(t, t.TempDir(), "events.jsonl", events)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev ir.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		require.NoError(t, ev.Validate())
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, len(events), lines)
	assert.Equal(t, 1+2*len(b.Nodes)+len(b.Edges), lines)
}
