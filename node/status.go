package node

// Status represents the execution state of a node within one run.
type Status int

const (
	// NotStarted indicates the node has not been reached by the run yet.
	// If the run is interrupted, nodes in later waves stay in this state.
	NotStarted Status = iota

	// Pending indicates the node is in the current wave and has been dispatched
	// to the worker pool, but has not started executing.
	Pending

	// Running indicates the node is currently executing.
	Running

	// Succeeded indicates Run returned nil.
	Succeeded

	// Skipped indicates the skip check prevented Run from being called.
	Skipped

	// Abandoned indicates the node failed and its Abandon disposition let the
	// run continue without it.
	Abandoned

	// Failed indicates the node failed terminally and interrupted the run.
	Failed
)

// String returns a human-readable representation of the Status.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Abandoned:
		return "abandoned"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the scheduler will not dispatch the node again.
func (s Status) IsTerminal() bool {
	return s == Succeeded || s == Skipped || s == Abandoned || s == Failed
}
