package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/critpath/internal/ir"
)

// ChainStart is the wall-clock origin of the fixture builds.
var ChainStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Build is a recorded fixture build: finalized nodes in chronological order
// and the edges between them.
type Build struct {
	Start ir.BuildStart
	Nodes []ir.Node
	Edges []ir.EdgeRecord
}

// Key returns the fixture key for a node kind and label.
func Key(kind ir.NodeKind, label string) string {
	return kind.String() + ":" + label
}

// Step returns the label of chain step i.
func Step(i int) string {
	return fmt.Sprintf("root//:step_%d", i)
}

// FourStepChain builds root//:step_3, where step_i depends on step_{i-1}
// and every step writes one file.
//
// The graph has a load of root//, an analysis per step chained in order, an
// action per step chained in order, and the materialization of step_3.
// Analysis of the requested target fans out to every action. Analyses never
// overlap, so every backend agrees on the path:
//
//	load, analysis step_0..3, action step_0..3, materialization step_3
func FourStepChain() Build {
	at := func(us int64) time.Time { return ChainStart.Add(time.Duration(us) * time.Microsecond) }
	node := func(kind ir.NodeKind, label string, start, end int64) ir.Node {
		payload, _ := ir.PayloadFor(kind)
		return ir.Node{
			Key:        Key(kind, label),
			Identifier: ir.Identifier{Label: label},
			Start:      at(start),
			End:        at(end),
			Payload:    payload,
		}
	}

	b := Build{Start: ir.BuildStart{
		BuildID:  "build-four-step",
		Target:   Step(3),
		Username: "builder",
		Client:   "myclient",
		Oncall:   "myoncall",
	}}

	b.Nodes = append(b.Nodes, node(ir.KindLoad, "root//", 0, 1000))

	analysisUS := []int64{600, 700, 800, 900}
	cursor := int64(1000)
	for i, d := range analysisUS {
		b.Nodes = append(b.Nodes, node(ir.KindAnalysis, Step(i), cursor, cursor+d))
		cursor += d
	}

	actionUS := []int64{2000, 2500, 3000, 3500}
	for i, d := range actionUS {
		n := node(ir.KindAction, Step(i), cursor, cursor+d)
		n.Identifier.Category = "write"
		n.Identifier.Qualifier = fmt.Sprintf("step_%d.txt", i)
		n.UserDuration = time.Duration(d-300) * time.Microsecond
		n.Payload = ir.Action{
			ExecutionKind: ir.ExecutionLocal,
			RuleType:      "write",
			Digest:        fmt.Sprintf("%040x:%d", i+1, 12+i),
		}
		b.Nodes = append(b.Nodes, n)
		cursor += d
	}

	mat := node(ir.KindMaterialization, Step(3), cursor, cursor+400)
	mat.Identifier.Qualifier = "buck-out/v2/gen/root/step_3.txt"
	b.Nodes = append(b.Nodes, mat)

	edge := func(fromKind ir.NodeKind, fromLabel string, toKind ir.NodeKind, toLabel string) {
		b.Edges = append(b.Edges, ir.EdgeRecord{From: Key(fromKind, fromLabel), To: Key(toKind, toLabel)})
	}
	edge(ir.KindLoad, "root//", ir.KindAnalysis, Step(0))
	for i := 0; i < 3; i++ {
		edge(ir.KindAnalysis, Step(i), ir.KindAnalysis, Step(i+1))
	}
	for i := 0; i < 4; i++ {
		edge(ir.KindAnalysis, Step(i), ir.KindAction, Step(i))
		if i < 3 {
			edge(ir.KindAnalysis, Step(3), ir.KindAction, Step(i))
			edge(ir.KindAction, Step(i), ir.KindAction, Step(i+1))
		}
	}
	edge(ir.KindAction, Step(3), ir.KindMaterialization, Step(3))
	return b
}

// Events returns the wire events of the build as a producer would emit
// them: build_start, then per node its start record, its incoming edges and
// its end record.
func (b Build) Events() []ir.Event {
	events := []ir.Event{ir.BuildStartEvent(b.Start)}
	for _, n := range b.Nodes {
		started := n
		started.End = time.Time{}
		started.UserDuration = 0
		events = append(events, ir.NodeEvent(started))
		for _, e := range b.Edges {
			if e.To == n.Key {
				events = append(events, ir.EdgeEvent(e.From, e.To))
			}
		}
		events = append(events, ir.NodeEvent(n))
	}
	return events
}

// Node returns the fixture node with the given key.
func (b Build) Node(key string) ir.Node {
	for _, n := range b.Nodes {
		if n.Key == key {
			return n
		}
	}
	panic(fmt.Sprintf("testutil: no node %q in fixture", key))
}

// WriteEventsFile writes events as JSON lines to name under dir and returns
// the file path.
func WriteEventsFile(t testing.TB, dir, name string, events []ir.Event) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create events file: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("encode event: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush events file: %v", err)
	}
	return path
}
