package engine

import (
	"fmt"
	"strings"
)

// Verbosity selects how much the engine logs per node.
type Verbosity int

const (
	// VerbosityNone disables per-node logging. Run level errors are still logged.
	VerbosityNone Verbosity = iota
	// VerbosityBasic logs node outcomes.
	VerbosityBasic
	// VerbosityTiming adds elapsed times.
	VerbosityTiming
	// VerbosityBoundary adds the payload for nodes in the first and last
	// wave. This is the default.
	VerbosityBoundary
	// VerbosityAll adds the payload for every node.
	VerbosityAll
)

// DefaultVerbosity is used by engines created without WithVerbosity.
const DefaultVerbosity = VerbosityBoundary

// String returns a human-readable representation of the Verbosity.
func (v Verbosity) String() string {
	switch v {
	case VerbosityNone:
		return "none"
	case VerbosityBasic:
		return "basic"
	case VerbosityTiming:
		return "timing"
	case VerbosityBoundary:
		return "boundary"
	case VerbosityAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseVerbosity converts a config string into a Verbosity. The empty string
// returns DefaultVerbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultVerbosity, nil
	case "none":
		return VerbosityNone, nil
	case "basic":
		return VerbosityBasic, nil
	case "timing":
		return VerbosityTiming, nil
	case "boundary":
		return VerbosityBoundary, nil
	case "all":
		return VerbosityAll, nil
	default:
		return DefaultVerbosity, fmt.Errorf("unknown verbosity %q", s)
	}
}

// nodeDetail is the detail level resolved for one node.
type nodeDetail struct {
	enabled bool
	timing  bool
	params  bool
}

// forNode resolves the verbosity for a node given its position in the graph.
func (v Verbosity) forNode(boundary bool) nodeDetail {
	return nodeDetail{
		enabled: v >= VerbosityBasic,
		timing:  v >= VerbosityTiming,
		params:  v == VerbosityAll || (v == VerbosityBoundary && boundary),
	}
}
