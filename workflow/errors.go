package workflow

import (
	"fmt"

	"github.com/tradeflow/tradeflow/retry"
)

// StepFault is raised when a collaborator's step executor fails. Inside a
// fan-out branch it is caught at the branch boundary and downgraded to a
// failure marker; in a sequential step it goes through the retry policy and,
// if exhausted, ends the run.
type StepFault struct {
	Step string
	Err  error
}

func (f *StepFault) Error() string {
	return fmt.Sprintf("step %s: %v", f.Step, f.Err)
}

func (f *StepFault) Unwrap() error { return f.Err }

// Kind classifies the underlying fault message.
func (f *StepFault) Kind() retry.Kind { return retry.Classify(f.Err) }

// RoutingFault indicates a malformed graph: a routing function failed or
// named an edge that does not exist. Always fatal to the run.
type RoutingFault struct {
	Node   string
	Target string
	Err    error
}

func (f *RoutingFault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("routing from %s: %v", f.Node, f.Err)
	}
	return fmt.Sprintf("routing from %s: target %q not in graph", f.Node, f.Target)
}

func (f *RoutingFault) Unwrap() error { return f.Err }

// CheckpointFault wraps a checkpoint write failure. It never fails a run,
// only degrades resumability.
type CheckpointFault struct {
	RunID string
	Err   error
}

func (f *CheckpointFault) Error() string {
	return fmt.Sprintf("checkpoint for run %s: %v", f.RunID, f.Err)
}

func (f *CheckpointFault) Unwrap() error { return f.Err }

// BranchFailure is the explicit "failed" marker a lenient join receives in
// place of a failed branch's output.
type BranchFailure struct {
	Branch string `json:"branch"`
	Reason string `json:"reason"`
}
