package loader

// Status tags an Outcome.
type Status int

const (
	// StatusUnset is reported before any load was triggered.
	StatusUnset Status = iota
	// StatusPending carries the fraction of pages received.
	StatusPending
	// StatusComplete carries the merged samples.
	StatusComplete
	// StatusFailed carries the fetch error that ended the load.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusPending:
		return "pending"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what a Poll reports to the caller.
type Outcome[T any] struct {
	Status   Status
	Progress float64
	// Samples is set when Status is StatusComplete. It aliases the loader's buffer and must not be modified.
	Samples []T
	Err     error
}

// Done reports whether the load reached a terminal state.
func (o Outcome[T]) Done() bool {
	return o.Status == StatusComplete || o.Status == StatusFailed
}
