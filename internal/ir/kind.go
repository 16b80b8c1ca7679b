package ir

import (
	"fmt"
	"strings"
)

// NodeKind identifies the kind of build work a node represents.
type NodeKind int

const (
	// KindUnknown is the zero value and never valid on a recorded node.
	KindUnknown NodeKind = iota
	// KindLoad is the evaluation of a package's build configuration.
	KindLoad
	// KindAnalysis is the evaluation of a target's rule logic.
	KindAnalysis
	// KindAction is a concrete executable step.
	KindAction
	// KindMaterialization makes an action output available locally.
	KindMaterialization
	// KindComputeCriticalPath is the sentinel appended to every result. It
	// represents the cost of the computation itself and never appears in a graph.
	KindComputeCriticalPath
)

var nodeKindNames = map[NodeKind]string{
	KindLoad:                "load",
	KindAnalysis:            "analysis",
	KindAction:              "action",
	KindMaterialization:     "materialization",
	KindComputeCriticalPath: "compute-critical-path",
}

// String returns the kind's report name (e.g. "analysis").
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseNodeKind parses a report name back into a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	for k, name := range nodeKindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown node kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	if _, ok := nodeKindNames[k]; !ok {
		return nil, fmt.Errorf("cannot marshal node kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ExecutionKind classifies how an action was carried out.
//
// The numeric values are stable: the structured BuildGraphInfo record
// serializes them as integers, and 0 is the "unset" value that must never
// appear on a finalized action.
type ExecutionKind int

const (
	ExecutionNotSet ExecutionKind = iota
	ExecutionLocal
	ExecutionRemote
	ExecutionActionCache
	ExecutionSimple
	ExecutionSkipped
	ExecutionDeferred
	ExecutionLocalDepFile
	ExecutionLocalWorker
	ExecutionRemoteDepFile
)

var executionKindNames = []string{
	ExecutionNotSet:        "ACTION_EXECUTION_NOTSET",
	ExecutionLocal:         "LOCAL",
	ExecutionRemote:        "REMOTE",
	ExecutionActionCache:   "ACTION_CACHE",
	ExecutionSimple:        "SIMPLE",
	ExecutionSkipped:       "SKIPPED",
	ExecutionDeferred:      "DEFERRED",
	ExecutionLocalDepFile:  "LOCAL_DEP_FILE",
	ExecutionLocalWorker:   "LOCAL_WORKER",
	ExecutionRemoteDepFile: "REMOTE_DEP_FILE",
}

// String returns the upper-case execution kind name.
func (k ExecutionKind) String() string {
	if k >= 0 && int(k) < len(executionKindNames) {
		return executionKindNames[k]
	}
	return fmt.Sprintf("ACTION_EXECUTION_%d", int(k))
}

// IsSet reports whether k is a real execution kind.
func (k ExecutionKind) IsSet() bool {
	return k > ExecutionNotSet && int(k) < len(executionKindNames)
}

// ParseExecutionKind parses an execution kind name. Matching is
// case-insensitive; the empty string parses to ExecutionNotSet.
func ParseExecutionKind(s string) (ExecutionKind, error) {
	if s == "" {
		return ExecutionNotSet, nil
	}
	upper := strings.ToUpper(s)
	for i, name := range executionKindNames {
		if name == upper {
			return ExecutionKind(i), nil
		}
	}
	return ExecutionNotSet, fmt.Errorf("unknown execution kind %q", s)
}
