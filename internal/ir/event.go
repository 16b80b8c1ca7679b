package ir

import (
	"fmt"
	"time"
)

// EventType distinguishes wire event kinds.
type EventType string

const (
	// EventBuildStart opens a build and carries its invocation metadata.
	EventBuildStart EventType = "build_start"
	// EventNode records a node start or finalization.
	EventNode EventType = "node"
	// EventEdge records a causal dependency between two node keys.
	EventEdge EventType = "edge"
)

// Event is one record of a build's event stream, as written by the build and
// stored in the event log. Exactly one of Build, Node or Edge is set,
// according to Type.
type Event struct {
	Type  EventType   `json:"type"`
	Build *BuildStart `json:"build,omitempty"`
	Node  *NodeRecord `json:"node,omitempty"`
	Edge  *EdgeRecord `json:"edge,omitempty"`
}

// BuildStart is the metadata of one build invocation.
type BuildStart struct {
	BuildID  string `json:"build_id,omitempty"`
	Target   string `json:"target,omitempty"`
	Username string `json:"username,omitempty"`
	Client   string `json:"client,omitempty"`
	Oncall   string `json:"oncall,omitempty"`
}

// EdgeRecord is a causal dependency: From must complete before To may start.
type EdgeRecord struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeRecord is the flat wire form of a Node. Kind-specific fields are only
// meaningful for the kinds they belong to and are ignored otherwise.
type NodeRecord struct {
	Key            string     `json:"key"`
	Kind           NodeKind   `json:"kind"`
	Label          string     `json:"label,omitempty"`
	Category       string     `json:"category,omitempty"`
	Qualifier      string     `json:"qualifier,omitempty"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	UserDurationUS int64      `json:"user_duration_us,omitempty"`
	ExecutionKind  string     `json:"execution_kind,omitempty"`
	RuleType       string     `json:"rule_type,omitempty"`
	ActionDigest   string     `json:"action_digest,omitempty"`
}

// Validate checks that the event's payload matches its type.
func (e Event) Validate() error {
	switch e.Type {
	case EventBuildStart:
		if e.Build == nil {
			return fmt.Errorf("build_start event missing build data")
		}
	case EventNode:
		if e.Node == nil {
			return fmt.Errorf("node event missing node data")
		}
	case EventEdge:
		if e.Edge == nil {
			return fmt.Errorf("edge event missing edge data")
		}
		if e.Edge.From == "" || e.Edge.To == "" {
			return fmt.Errorf("edge event has empty endpoint (from=%q, to=%q)", e.Edge.From, e.Edge.To)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// ToNode converts the wire record into a typed Node.
func (r NodeRecord) ToNode() (Node, error) {
	payload, err := PayloadFor(r.Kind)
	if err != nil {
		return Node{}, fmt.Errorf("node %q: %w", r.Key, err)
	}
	if r.Kind == KindAction {
		ek, err := ParseExecutionKind(r.ExecutionKind)
		if err != nil {
			return Node{}, fmt.Errorf("node %q: %w", r.Key, err)
		}
		payload = Action{
			ExecutionKind: ek,
			RuleType:      r.RuleType,
			Digest:        r.ActionDigest,
		}
	}
	n := Node{
		Key: r.Key,
		Identifier: Identifier{
			Label:     r.Label,
			Category:  r.Category,
			Qualifier: r.Qualifier,
		},
		Start:        r.Start,
		UserDuration: FromMicros(r.UserDurationUS),
		Payload:      payload,
	}
	if r.End != nil {
		n.End = *r.End
	}
	return n, nil
}

// RecordFromNode converts a typed Node into its wire record.
func RecordFromNode(n Node) NodeRecord {
	r := NodeRecord{
		Key:            n.Key,
		Kind:           n.Kind(),
		Label:          n.Identifier.Label,
		Category:       n.Identifier.Category,
		Qualifier:      n.Identifier.Qualifier,
		Start:          n.Start,
		UserDurationUS: Micros(n.UserDuration),
	}
	if n.Finished() {
		end := n.End
		r.End = &end
	}
	if a, ok := n.Payload.(Action); ok {
		if a.ExecutionKind != ExecutionNotSet {
			r.ExecutionKind = a.ExecutionKind.String()
		}
		r.RuleType = a.RuleType
		r.ActionDigest = a.Digest
	}
	return r
}

// NodeEvent wraps a node in a wire event.
func NodeEvent(n Node) Event {
	r := RecordFromNode(n)
	return Event{Type: EventNode, Node: &r}
}

// EdgeEvent wraps an edge in a wire event.
func EdgeEvent(from, to string) Event {
	return Event{Type: EventEdge, Edge: &EdgeRecord{From: from, To: to}}
}

// BuildStartEvent wraps build metadata in a wire event.
func BuildStartEvent(b BuildStart) Event {
	return Event{Type: EventBuildStart, Build: &b}
}
