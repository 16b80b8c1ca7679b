// Package buildinfo builds the BuildGraphInfo instant: the structured
// record of a build's critical path and invocation metadata that is written
// to the event log when the build finishes.
//
// The JSON form nests each entry under its variant name:
//
//	{"metadata": {"username": "u", "client": "c", "oncall": "o"},
//	 "critical_path2": [
//	   {"entry": {"Load": {"package": "root//"}}, "total_duration_us": 1000, ...},
//	   ...
//	   {"entry": {"ComputeCriticalPath": {}}, "total_duration_us": 12, ...}]}
package buildinfo

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/critpath/internal/ir"
)

// BuildGraphInfo is the instant emitted once per build.
type BuildGraphInfo struct {
	Metadata      map[string]string `json:"metadata"`
	CriticalPath2 []Entry2          `json:"critical_path2"`
}

// New wraps a computed critical path with its metadata.
func New(meta Metadata, entries []ir.Entry) BuildGraphInfo {
	out := make([]Entry2, len(entries))
	for i, e := range entries {
		out[i] = FromEntry(e)
	}
	return BuildGraphInfo{Metadata: meta.Map(), CriticalPath2: out}
}

// Entries converts the instant's critical path back to entries.
func (b BuildGraphInfo) Entries() []ir.Entry {
	out := make([]ir.Entry, len(b.CriticalPath2))
	for i, e := range b.CriticalPath2 {
		out[i] = e.ToEntry()
	}
	return out
}

// Variant is the kind-specific part of an Entry2.
// Implemented by Load, Analysis, ActionExecution, Materialization and
// ComputeCriticalPath.
type Variant interface {
	variantName() string
}

// Load is the variant of a package load entry.
type Load struct {
	Package string `json:"package"`
}

// Analysis is the variant of a target analysis entry.
type Analysis struct {
	Target string `json:"target"`
}

// ActionExecution is the variant of an action entry. ExecutionKind is the
// integer value of ir.ExecutionKind.
type ActionExecution struct {
	Owner              string `json:"owner"`
	Category           string `json:"category"`
	Identifier         string `json:"identifier"`
	ExecutionKind      int    `json:"execution_kind"`
	TargetRuleTypeName string `json:"target_rule_type_name"`
	ActionDigest       string `json:"action_digest,omitempty"`
}

// Materialization is the variant of an output materialization entry.
type Materialization struct {
	Target string `json:"target"`
	Path   string `json:"path"`
}

// ComputeCriticalPath is the variant of the result sentinel.
type ComputeCriticalPath struct{}

func (Load) variantName() string                { return "Load" }
func (Analysis) variantName() string            { return "Analysis" }
func (ActionExecution) variantName() string     { return "ActionExecution" }
func (Materialization) variantName() string     { return "Materialization" }
func (ComputeCriticalPath) variantName() string { return "ComputeCriticalPath" }

// Entry2 is one critical path entry in the instant.
type Entry2 struct {
	Entry                          Variant
	TotalDurationUS                int64
	UserDurationUS                 int64
	PotentialImprovementDurationUS int64
}

type entry2JSON struct {
	Entry                          map[string]json.RawMessage `json:"entry"`
	TotalDurationUS                int64                      `json:"total_duration_us"`
	UserDurationUS                 int64                      `json:"user_duration_us"`
	PotentialImprovementDurationUS int64                      `json:"potential_improvement_duration_us"`
}

// MarshalJSON nests the variant under its name.
func (e Entry2) MarshalJSON() ([]byte, error) {
	if e.Entry == nil {
		return nil, fmt.Errorf("entry2: missing variant")
	}
	v, err := json.Marshal(e.Entry)
	if err != nil {
		return nil, fmt.Errorf("entry2: %w", err)
	}
	return json.Marshal(entry2JSON{
		Entry:                          map[string]json.RawMessage{e.Entry.variantName(): v},
		TotalDurationUS:                e.TotalDurationUS,
		UserDurationUS:                 e.UserDurationUS,
		PotentialImprovementDurationUS: e.PotentialImprovementDurationUS,
	})
}

// UnmarshalJSON accepts exactly one known variant under "entry".
func (e *Entry2) UnmarshalJSON(data []byte) error {
	var raw entry2JSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("entry2: %w", err)
	}
	if len(raw.Entry) != 1 {
		return fmt.Errorf("entry2: expected one variant, got %d", len(raw.Entry))
	}

	var v Variant
	for name, body := range raw.Entry {
		var err error
		v, err = decodeVariant(name, body)
		if err != nil {
			return err
		}
	}

	*e = Entry2{
		Entry:                          v,
		TotalDurationUS:                raw.TotalDurationUS,
		UserDurationUS:                 raw.UserDurationUS,
		PotentialImprovementDurationUS: raw.PotentialImprovementDurationUS,
	}
	return nil
}

func decodeVariant(name string, body json.RawMessage) (Variant, error) {
	var v Variant
	var err error
	switch name {
	case "Load":
		var x Load
		err = json.Unmarshal(body, &x)
		v = x
	case "Analysis":
		var x Analysis
		err = json.Unmarshal(body, &x)
		v = x
	case "ActionExecution":
		var x ActionExecution
		err = json.Unmarshal(body, &x)
		v = x
	case "Materialization":
		var x Materialization
		err = json.Unmarshal(body, &x)
		v = x
	case "ComputeCriticalPath":
		v = ComputeCriticalPath{}
	default:
		return nil, fmt.Errorf("entry2: unknown variant %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("entry2: %s: %w", name, err)
	}
	return v, nil
}

// FromEntry converts a critical path entry.
func FromEntry(e ir.Entry) Entry2 {
	out := Entry2{
		TotalDurationUS:                ir.Micros(e.TotalDuration),
		UserDurationUS:                 ir.Micros(e.UserDuration),
		PotentialImprovementDurationUS: ir.Micros(e.PotentialImprovement),
	}
	id := e.Identifier
	switch p := e.Payload.(type) {
	case ir.Load:
		out.Entry = Load{Package: id.Label}
	case ir.Analysis:
		out.Entry = Analysis{Target: id.Label}
	case ir.Action:
		out.Entry = ActionExecution{
			Owner:              id.Label,
			Category:           id.Category,
			Identifier:         id.Qualifier,
			ExecutionKind:      int(p.ExecutionKind),
			TargetRuleTypeName: p.RuleType,
			ActionDigest:       p.Digest,
		}
	case ir.Materialization:
		out.Entry = Materialization{Target: id.Label, Path: id.Qualifier}
	default:
		out.Entry = ComputeCriticalPath{}
	}
	return out
}

// ToEntry converts back to a critical path entry.
func (e Entry2) ToEntry() ir.Entry {
	out := ir.Entry{
		TotalDuration:        ir.FromMicros(e.TotalDurationUS),
		UserDuration:         ir.FromMicros(e.UserDurationUS),
		PotentialImprovement: ir.FromMicros(e.PotentialImprovementDurationUS),
	}
	switch v := e.Entry.(type) {
	case Load:
		out.Identifier = ir.Identifier{Label: v.Package}
		out.Payload = ir.Load{}
	case Analysis:
		out.Identifier = ir.Identifier{Label: v.Target}
		out.Payload = ir.Analysis{}
	case ActionExecution:
		out.Identifier = ir.Identifier{Label: v.Owner, Category: v.Category, Qualifier: v.Identifier}
		out.Payload = ir.Action{
			ExecutionKind: ir.ExecutionKind(v.ExecutionKind),
			RuleType:      v.TargetRuleTypeName,
			Digest:        v.ActionDigest,
		}
	case Materialization:
		out.Identifier = ir.Identifier{Label: v.Target, Qualifier: v.Path}
		out.Payload = ir.Materialization{}
	default:
		out.Payload = ir.ComputeCriticalPath{}
	}
	return out
}
