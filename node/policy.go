package node

import (
	"fmt"
	"time"
)

const (
	// DefaultTimeout is used when neither the registration nor the caller
	// supplies a timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultRetries is the default attempt bound. A bound of 1 means the node
	// is attempted exactly once.
	DefaultRetries = 1
)

// Disposition selects how the scheduler reacts to a node failure.
type Disposition int

const (
	// DispositionUnset means "use the registered default".
	DispositionUnset Disposition = iota

	// Interrupt stops the whole run on failure. This is the default.
	Interrupt

	// Abandon runs the failure hooks, marks the node terminal and lets the run
	// continue.
	Abandon

	// Retry re-dispatches the node until its retry bound is reached. An
	// exhausted node interrupts the run.
	Retry
)

// String returns a human-readable representation of the Disposition.
func (d Disposition) String() string {
	switch d {
	case DispositionUnset:
		return "unset"
	case Interrupt:
		return "interrupt"
	case Abandon:
		return "abandon"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// ParseDisposition converts a config string into a Disposition.
func ParseDisposition(s string) (Disposition, error) {
	switch s {
	case "":
		return DispositionUnset, nil
	case "interrupt":
		return Interrupt, nil
	case "abandon":
		return Abandon, nil
	case "retry":
		return Retry, nil
	default:
		return DispositionUnset, fmt.Errorf("unknown disposition %q", s)
	}
}

// Policy is the execution policy attached to a node instance. Zero-valued
// fields mean "inherit" and are filled in by Merge.
//
// A Policy is a value object: it is used as part of the registry cache key and
// is never mutated once an instance has been created with it.
type Policy struct {
	Disposition Disposition
	Timeout     time.Duration
	Retries     int
}

// DefaultPolicy is the policy every node falls back to.
var DefaultPolicy = Policy{
	Disposition: Interrupt,
	Timeout:     DefaultTimeout,
	Retries:     DefaultRetries,
}

// Merge returns p with every unset field taken from defaults.
func (p Policy) Merge(defaults Policy) Policy {
	if p.Disposition == DispositionUnset {
		p.Disposition = defaults.Disposition
	}
	if p.Timeout == 0 {
		p.Timeout = defaults.Timeout
	}
	if p.Retries == 0 {
		p.Retries = defaults.Retries
	}
	return p
}

// Validate checks a fully merged policy.
func (p Policy) Validate() error {
	if p.Disposition < Interrupt || p.Disposition > Retry {
		return fmt.Errorf("invalid disposition %d", p.Disposition)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	if p.Retries < 1 {
		return fmt.Errorf("retry bound must be at least 1, got %d", p.Retries)
	}
	return nil
}

// Key returns a string suitable for use as a cache key.
func (p Policy) Key() string {
	return fmt.Sprintf("%s/%s/%d", p.Disposition, p.Timeout, p.Retries)
}

// String implements fmt.Stringer.
func (p Policy) String() string {
	return fmt.Sprintf("disposition=%s timeout=%s retries=%d", p.Disposition, p.Timeout, p.Retries)
}
