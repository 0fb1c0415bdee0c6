// Package workflow implements the resumable graph executor at the heart of
// tradeflow: a fixed, conditionally-branching graph of named steps driven by
// a single controlling goroutine per run, with concurrent fan-out groups,
// lenient joins, atomic partial-state merges, per-step retry for sequential
// steps, and a checkpoint written after every completed step.
//
// Steps are domain collaborators behind the single-method StepExecutor
// interface, resolved through a static Registry populated at startup. The
// executor owns sequencing only; what a step computes is out of scope here.
package workflow
