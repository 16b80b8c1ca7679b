package ir

import "time"

// Entry is one row of a computed critical path.
type Entry struct {
	Identifier           Identifier
	Payload              Payload
	TotalDuration        time.Duration
	UserDuration         time.Duration
	PotentialImprovement time.Duration
}

// Kind returns the entry kind, derived from its payload.
func (e Entry) Kind() NodeKind {
	if e.Payload == nil {
		return KindUnknown
	}
	return e.Payload.Kind()
}

// ExecutionKind returns the action execution kind, or ExecutionNotSet for
// non-action entries.
func (e Entry) ExecutionKind() ExecutionKind {
	if a, ok := e.Payload.(Action); ok {
		return a.ExecutionKind
	}
	return ExecutionNotSet
}

// EntryFromNode builds an entry for a finalized graph node. The potential
// improvement is left at zero for the estimator to fill in.
func EntryFromNode(n Node) Entry {
	total := n.TotalDuration()
	user := n.UserDuration
	if user > total {
		user = total
	}
	return Entry{
		Identifier:    n.Identifier,
		Payload:       n.Payload,
		TotalDuration: total,
		UserDuration:  user,
	}
}

// SentinelEntry returns the ComputeCriticalPath entry for a computation that
// took cost.
func SentinelEntry(cost time.Duration) Entry {
	if cost < 0 {
		cost = 0
	}
	return Entry{
		Payload:       ComputeCriticalPath{},
		TotalDuration: cost,
		UserDuration:  cost,
	}
}

// Micros converts a duration to whole microseconds.
func Micros(d time.Duration) int64 {
	return d.Microseconds()
}

// FromMicros converts whole microseconds to a duration.
func FromMicros(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
