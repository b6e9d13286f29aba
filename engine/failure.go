package engine

import "github.com/nomis52/nodegraph/node"

// verdict is what a failure policy decides after a failed attempt.
type verdict int

const (
	// verdictInterrupt runs the failure hooks and ends the run.
	verdictInterrupt verdict = iota
	// verdictAbandon runs the failure hooks and lets the run continue.
	verdictAbandon
	// verdictRetry re-dispatches the node without running hooks.
	verdictRetry
)

// failurePolicy decides what happens after attempt number attempt failed.
type failurePolicy interface {
	onFailure(attempt int) verdict
}

type interruptPolicy struct{}

func (interruptPolicy) onFailure(int) verdict { return verdictInterrupt }

type abandonPolicy struct{}

func (abandonPolicy) onFailure(int) verdict { return verdictAbandon }

// retryPolicy retries until maxAttempts attempts have been made, then
// interrupts the run.
type retryPolicy struct {
	maxAttempts int
}

func (p retryPolicy) onFailure(attempt int) verdict {
	if attempt < p.maxAttempts {
		return verdictRetry
	}
	return verdictInterrupt
}

func failurePolicyFor(p node.Policy) failurePolicy {
	switch p.Disposition {
	case node.Abandon:
		return abandonPolicy{}
	case node.Retry:
		return retryPolicy{maxAttempts: p.Retries}
	default:
		return interruptPolicy{}
	}
}
