package node

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Timing records when a node started and finished within one run. Start is the
// beginning of the first attempt, End the end of the last one.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Duration returns the elapsed time, or zero if the node has not finished.
func (t Timing) Duration() time.Duration {
	if t.Start.IsZero() || t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// RunContext is the state shared by every node of a single run.
//
// The Payload is owned by the caller and shared by reference. The engine does
// not synchronize access to it: siblings in the same wave must touch disjoint
// fields, and dependents may read what their dependencies wrote.
//
// Everything else on RunContext is safe for concurrent use.
type RunContext struct {
	// Payload is the caller-supplied value nodes read and write.
	Payload any

	runID string
	stop  atomic.Bool

	mu       sync.RWMutex
	trace    []string
	statuses map[ID]Status
	attempts map[ID]int
	timings  map[ID]Timing
}

// NewRunContext creates a RunContext for one run with a fresh run ID. The
// run ID is also the first trace segment.
func NewRunContext(payload any) *RunContext {
	return NewRunContextWithID(payload, uuid.NewString())
}

// NewRunContextWithID creates a RunContext with a caller-chosen run ID, e.g.
// one propagated from an inbound request.
func NewRunContextWithID(payload any, runID string) *RunContext {
	rc := &RunContext{
		Payload:  payload,
		runID:    runID,
		statuses: make(map[ID]Status),
		attempts: make(map[ID]int),
		timings:  make(map[ID]Timing),
	}
	if runID != "" {
		rc.trace = append(rc.trace, runID)
	}
	return rc
}

// RunID returns the identifier of this run.
func (rc *RunContext) RunID() string {
	return rc.runID
}

// AppendTrace adds a segment to the trace string.
func (rc *RunContext) AppendTrace(segment string) {
	if segment == "" {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.trace = append(rc.trace, segment)
}

// Trace returns the accumulated trace string, segments joined by ":".
func (rc *RunContext) Trace() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return strings.Join(rc.trace, ":")
}

// Stop clears the continuation flag. The run ends normally once the current
// wave has finished.
func (rc *RunContext) Stop() {
	rc.stop.Store(true)
}

// Continue reports whether the continuation flag is still set.
func (rc *RunContext) Continue() bool {
	return !rc.stop.Load()
}

// SetStatus records the status of a node. Called by the engine.
func (rc *RunContext) SetStatus(id ID, s Status) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.statuses[id] = s
	now := time.Now()
	t := rc.timings[id]
	switch {
	case s == Running && t.Start.IsZero():
		t.Start = now
		rc.timings[id] = t
	case s.IsTerminal():
		if t.Start.IsZero() {
			t.Start = now
		}
		t.End = now
		rc.timings[id] = t
	}
}

// Status returns the status of a node in this run.
func (rc *RunContext) Status(id ID) Status {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.statuses[id]
}

// Statuses returns a copy of every recorded status.
func (rc *RunContext) Statuses() map[ID]Status {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[ID]Status, len(rc.statuses))
	for id, s := range rc.statuses {
		out[id] = s
	}
	return out
}

// NextAttempt increments and returns the attempt counter of a node. The first
// call for a node returns 1.
func (rc *RunContext) NextAttempt(id ID) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.attempts[id]++
	return rc.attempts[id]
}

// Attempts returns how many times a node has been dispatched in this run.
func (rc *RunContext) Attempts(id ID) int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.attempts[id]
}

// Timing returns the recorded start and end time of a node.
func (rc *RunContext) Timing(id ID) Timing {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.timings[id]
}
