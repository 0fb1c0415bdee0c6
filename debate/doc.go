// Package debate implements the two adversarial state machines that sit
// between analysis and decision: the convergence-aware two-party Bull/Bear
// debate and the round-capped three-party risk debate. Both controllers are
// workflow steps themselves; they invoke per-speaker step executors, keep the
// turn bookkeeping, and fold the finished transcript back into workflow
// state. The convergence detector is a pure decision function over the
// transcript, backed by an optional embedding capability.
package debate
