package walk

import "fmt"

// PastTreeInconsistentError means a checkpoint or path produced by an
// earlier run no longer matches what the tree produces now: a cache
// effect returned different bytes, or the instruction at a recorded
// position changed kind. The worker reports it as a failure; resuming
// a checkpoint against a different tree is not recoverable.
type PastTreeInconsistentError struct {
	Detail string
}

func (e *PastTreeInconsistentError) Error() string {
	return fmt.Sprintf("past tree inconsistent with present tree: %s", e.Detail)
}

// VisitorTerminatedError means a replayed path instructed the walker to
// descend past a point where the tree has already ended.
type VisitorTerminatedError struct {
	At int // index of the failing path step
}

func (e *VisitorTerminatedError) Error() string {
	return fmt.Sprintf("visitor terminated before end of walk at path step %d", e.At)
}
