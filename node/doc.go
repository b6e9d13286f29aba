// Package node defines the unit of work executed by the nodegraph engine.
//
// A node is identified by a stable ID, carries an execution Policy (failure
// disposition, timeout and retry bound) and implements the Node interface:
//
//	type ChargePayment struct {
//		node.Base
//		Payments PaymentClient
//	}
//
//	func (n *ChargePayment) Dependencies() []node.ID {
//		return []node.ID{ReserveStockID}
//	}
//
//	func (n *ChargePayment) Run(ctx context.Context, rc *node.RunContext) error {
//		order := rc.Payload.(*Order)
//		if order.Total <= 0 {
//			return node.Fail("INVALID_TOTAL", "order %s has no total", order.ID)
//		}
//		return n.Payments.Charge(ctx, order)
//	}
//
// # Failure classification
//
// Errors returned from Run fall into two classes:
//   - business failures, created with Fail, carry a code and message and are
//     surfaced to the caller unchanged
//   - unknown failures are everything else, including timeouts and panics
//
// The engine wraps the terminal failure of a run in a *RunError. Use
// IsBusinessFailure and IsUnknownFailure to branch on the outcome.
//
// # RunContext
//
// Every run gets a fresh RunContext holding the caller's payload, a trace
// string for log correlation, a continuation flag (Stop) and the engine's
// per-node bookkeeping: status, attempt counter and timing.
package node
