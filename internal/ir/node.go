package ir

import (
	"fmt"
	"strings"
	"time"
)

// Identifier is the structured name of a node.
//
// Label is the target label (or the package, for Load nodes). Category and
// Qualifier further distinguish actions ("write", "out.txt"); Materialization
// nodes use Qualifier for the materialized path.
type Identifier struct {
	Label     string `json:"label"`
	Category  string `json:"category,omitempty"`
	Qualifier string `json:"qualifier,omitempty"`
}

// String renders the identifier as "label category qualifier", skipping
// empty parts. It is the ordering key for deterministic tie-breaks.
func (id Identifier) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{id.Label, id.Category, id.Qualifier} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Payload is the kind-specific part of a node or entry.
//
// The set of implementations is closed: Load, Analysis, Action,
// Materialization and ComputeCriticalPath.
type Payload interface {
	Kind() NodeKind
	isPayload()
}

// Load is the payload of a package load node.
type Load struct{}

// Analysis is the payload of a target analysis node.
type Analysis struct{}

// Action is the payload of an action execution node.
type Action struct {
	ExecutionKind ExecutionKind
	// RuleType is the rule kind that produced the action (e.g. "write").
	RuleType string
	// Digest is the content fingerprint of the action's inputs. Empty when the
	// action did not run or the digest could not be computed.
	Digest string
}

// Materialization is the payload of an output materialization node.
type Materialization struct{}

// ComputeCriticalPath is the payload of the result sentinel.
type ComputeCriticalPath struct{}

func (Load) Kind() NodeKind                { return KindLoad }
func (Analysis) Kind() NodeKind            { return KindAnalysis }
func (Action) Kind() NodeKind              { return KindAction }
func (Materialization) Kind() NodeKind     { return KindMaterialization }
func (ComputeCriticalPath) Kind() NodeKind { return KindComputeCriticalPath }

func (Load) isPayload()                {}
func (Analysis) isPayload()            {}
func (Action) isPayload()              {}
func (Materialization) isPayload()     {}
func (ComputeCriticalPath) isPayload() {}

// PayloadFor returns the empty payload for a kind. Action payloads returned
// here have no execution kind and must be filled in by the caller.
func PayloadFor(kind NodeKind) (Payload, error) {
	switch kind {
	case KindLoad:
		return Load{}, nil
	case KindAnalysis:
		return Analysis{}, nil
	case KindAction:
		return Action{}, nil
	case KindMaterialization:
		return Materialization{}, nil
	case KindComputeCriticalPath:
		return ComputeCriticalPath{}, nil
	default:
		return nil, fmt.Errorf("no payload for node kind %s", kind)
	}
}

// Node is one instrumented unit of build work.
//
// A node is created when its step begins (End is zero) and finalized when the
// step ends (End set). Only finalized nodes take part in critical paths.
type Node struct {
	Key          string
	Identifier   Identifier
	Start        time.Time
	End          time.Time
	UserDuration time.Duration
	Payload      Payload
}

// Kind returns the node kind, derived from its payload.
func (n Node) Kind() NodeKind {
	if n.Payload == nil {
		return KindUnknown
	}
	return n.Payload.Kind()
}

// Finished reports whether the node has been finalized.
func (n Node) Finished() bool {
	return !n.End.IsZero()
}

// TotalDuration is End - Start, or 0 for an unfinished node.
func (n Node) TotalDuration() time.Duration {
	if !n.Finished() {
		return 0
	}
	return n.End.Sub(n.Start)
}

// ExecutionKind returns the action execution kind, or ExecutionNotSet for
// non-action nodes.
func (n Node) ExecutionKind() ExecutionKind {
	if a, ok := n.Payload.(Action); ok {
		return a.ExecutionKind
	}
	return ExecutionNotSet
}

// Validate checks the structural invariants of a node that can be checked
// without the rest of the graph. It does not check the execution kind; see
// CheckExecutionKind.
func (n Node) Validate() error {
	if n.Key == "" {
		return fmt.Errorf("node has empty key")
	}
	switch n.Kind() {
	case KindLoad, KindAnalysis, KindAction, KindMaterialization:
	case KindComputeCriticalPath:
		return fmt.Errorf("node %q: %s is reserved for results", n.Key, KindComputeCriticalPath)
	default:
		return fmt.Errorf("node %q: missing or unknown kind", n.Key)
	}
	if n.Start.IsZero() {
		return fmt.Errorf("node %q: missing start timestamp", n.Key)
	}
	if n.Finished() && n.End.Before(n.Start) {
		return fmt.Errorf("node %q: end %s is before start %s", n.Key,
			n.End.Format(time.RFC3339Nano), n.Start.Format(time.RFC3339Nano))
	}
	if n.UserDuration < 0 {
		return fmt.Errorf("node %q: negative user duration", n.Key)
	}
	return nil
}

// CheckExecutionKind returns a *MissingExecutionKindError if n is a finalized
// action without a valid execution kind.
func (n Node) CheckExecutionKind() error {
	a, ok := n.Payload.(Action)
	if !ok || !n.Finished() {
		return nil
	}
	if !a.ExecutionKind.IsSet() {
		return &MissingExecutionKindError{Key: n.Key, Identifier: n.Identifier}
	}
	return nil
}

// MissingExecutionKindError reports a finalized Action node without a valid
// execution kind. It indicates a bug in the producer, not a user error.
type MissingExecutionKindError struct {
	Key        string
	Identifier Identifier
}

func (e *MissingExecutionKindError) Error() string {
	return fmt.Sprintf("action %q (%s) finalized without an execution kind", e.Key, e.Identifier)
}
