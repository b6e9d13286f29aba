package graph

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nomis52/nodegraph/node"
)

// SkipEnv is the environment a SkipIf expression is evaluated against.
//
// Example expressions:
//
//	payload.Total == 0
//	status["orders.FraudCheck"] == "abandoned"
//	trace contains "dry-run"
type SkipEnv struct {
	Payload any               `expr:"payload"`
	Trace   string            `expr:"trace"`
	RunID   string            `expr:"runID"`
	Status  map[string]string `expr:"status"`
}

func compileSkip(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.Env(SkipEnv{}), expr.AsBool())
}

func newSkipEnv(rc *node.RunContext) SkipEnv {
	statuses := rc.Statuses()
	status := make(map[string]string, len(statuses))
	for id, s := range statuses {
		status[id.String()] = s.String()
	}
	return SkipEnv{
		Payload: rc.Payload,
		Trace:   rc.Trace(),
		RunID:   rc.RunID(),
		Status:  status,
	}
}

// HasSkipExpression reports whether id has a SkipIf expression.
func (g *Graph) HasSkipExpression(id node.ID) bool {
	e, ok := g.entries[id]
	return ok && e.skip != nil
}

// EvalSkip evaluates the SkipIf expression of id against rc. Nodes without an
// expression are never skipped by it.
func (g *Graph) EvalSkip(id node.ID, rc *node.RunContext) (bool, error) {
	e, ok := g.entries[id]
	if !ok || e.skip == nil {
		return false, nil
	}

	out, err := expr.Run(e.skip, newSkipEnv(rc))
	if err != nil {
		return false, fmt.Errorf("node %s: evaluating skip expression %q: %w", id, e.skipSource, err)
	}
	skip, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("node %s: skip expression must evaluate to bool (got %T)", id, out)
	}
	return skip, nil
}
