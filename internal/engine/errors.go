package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned when recording into an engine that is finishing
// or whose Run loop has exited.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors include:
//   - Invalid event: an event that fails validation or conflicts with the graph
//   - Missing execution kind: an action finalized without one
//   - Incomplete graph: a result requested before every node finished
//   - No critical path: nothing could be computed
//   - Event log: an accepted event could not be written to the event log
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Key identifies the affected node, if any.
	Key string

	// Seq is the arrival sequence number of the offending event, if any.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidEvent indicates an event was rejected and skipped.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeMissingExecutionKind indicates an action finalized without an
	// execution kind. The node is kept.
	ErrCodeMissingExecutionKind RuntimeErrorCode = "MISSING_EXECUTION_KIND"

	// ErrCodeIncompleteGraph indicates nodes were unfinished or edges
	// referenced unknown nodes when a complete graph was required.
	ErrCodeIncompleteGraph RuntimeErrorCode = "INCOMPLETE_GRAPH"

	// ErrCodeNoCriticalPath indicates no result could be produced.
	ErrCodeNoCriticalPath RuntimeErrorCode = "NO_CRITICAL_PATH"

	// ErrCodeEventLog indicates an event was applied to the graph but could
	// not be appended to the event log, so the log no longer replays to the
	// live result.
	ErrCodeEventLog RuntimeErrorCode = "EVENT_LOG"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, msg, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// HasCode returns true if err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsInvalidEvent returns true if the error is an invalid event error.
func IsInvalidEvent(err error) bool {
	return HasCode(err, ErrCodeInvalidEvent)
}

// IsIncompleteGraph returns true if the error is an incomplete graph error.
func IsIncompleteGraph(err error) bool {
	return HasCode(err, ErrCodeIncompleteGraph)
}

// IsNoCriticalPath returns true if the error is a no critical path error.
func IsNoCriticalPath(err error) bool {
	return HasCode(err, ErrCodeNoCriticalPath)
}

// IsEventLogError returns true if the error is an event log failure.
func IsEventLogError(err error) bool {
	return HasCode(err, ErrCodeEventLog)
}
