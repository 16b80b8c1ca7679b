package graph

import (
	"errors"
	"fmt"
	"strings"
)

// IncompleteGraphError is returned when a DAG is requested while recorded
// nodes are still running or edges still reference unknown nodes.
type IncompleteGraphError struct {
	// Unfinished holds the keys of recorded nodes without an end timestamp.
	Unfinished []string
	// Dangling holds the keys referenced by buffered edges that were never
	// recorded as nodes.
	Dangling []string
}

func (e *IncompleteGraphError) Error() string {
	var parts []string
	if len(e.Unfinished) > 0 {
		parts = append(parts, fmt.Sprintf("%d unfinished node(s) %s", len(e.Unfinished), preview(e.Unfinished)))
	}
	if len(e.Dangling) > 0 {
		parts = append(parts, fmt.Sprintf("%d unknown edge endpoint(s) %s", len(e.Dangling), preview(e.Dangling)))
	}
	if len(parts) == 0 {
		return "incomplete graph"
	}
	return "incomplete graph: " + strings.Join(parts, ", ")
}

// CycleError is returned when the recorded edges do not form a DAG.
type CycleError struct {
	// Keys holds the keys of nodes that could not be ordered.
	Keys []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among %d node(s) %s", len(e.Keys), preview(e.Keys))
}

// IsIncompleteGraphError checks if an error is an IncompleteGraphError.
func IsIncompleteGraphError(err error) bool {
	var ie *IncompleteGraphError
	return errors.As(err, &ie)
}

// IsCycleError checks if an error is a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

func preview(keys []string) string {
	const limit = 5
	if len(keys) <= limit {
		return "[" + strings.Join(keys, ", ") + "]"
	}
	return "[" + strings.Join(keys[:limit], ", ") + ", ...]"
}
