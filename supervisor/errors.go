package supervisor

import (
	"fmt"
	"strings"

	"github.com/canopy-dev/canopy/checkpoint"
)

// WorkerAlreadyKnownError reports an AddWorker for an id already in the
// table.
type WorkerAlreadyKnownError struct {
	ID string
}

func (e *WorkerAlreadyKnownError) Error() string {
	return fmt.Sprintf("worker %q is already known", e.ID)
}

// WorkerNotKnownError reports an operation naming an id not in the table.
type WorkerNotKnownError struct {
	ID string
}

func (e *WorkerNotKnownError) Error() string {
	return fmt.Sprintf("worker %q is not known", e.ID)
}

// WorkerNotActiveError reports a message that only an active worker may
// send, received from a worker with no workload.
type WorkerNotActiveError struct {
	ID string
}

func (e *WorkerNotActiveError) Error() string {
	return fmt.Sprintf("worker %q has no active workload", e.ID)
}

// WorkerAlreadyHasWorkloadError reports an attempt to assign a workload
// to a worker that already holds one.
type WorkerAlreadyHasWorkloadError struct {
	ID string
}

func (e *WorkerAlreadyHasWorkloadError) Error() string {
	return fmt.Sprintf("worker %q already has a workload", e.ID)
}

// ConflictingWorkloadsError reports two holders of the same workload, a
// bookkeeping defect that would double-count results.
type ConflictingWorkloadsError struct {
	A, B     string
	Workload checkpoint.Workload
}

func (e *ConflictingWorkloadsError) Error() string {
	return fmt.Sprintf("workers %q and %q hold the same workload %s", e.A, e.B, e.Workload)
}

// OutOfSourcesForNewWorkloadsError reports workers left waiting with no
// active worker, no buffered workload, and an unexplored space. Nothing
// can produce work for them again.
type OutOfSourcesForNewWorkloadsError struct{}

func (e *OutOfSourcesForNewWorkloadsError) Error() string {
	return "workers are waiting but there are no sources of new workloads"
}

// IncompleteWorkspaceError reports that the global progress plus the
// coverage of every outstanding workload fails to add up to the whole
// tree. Missing is the inverted gap.
type IncompleteWorkspaceError struct {
	Missing checkpoint.Checkpoint
}

func (e *IncompleteWorkspaceError) Error() string {
	return fmt.Sprintf("workspace does not cover the whole tree; missing %s", e.Missing)
}

// SpaceFullyExploredButWorkloadsRemainedError reports buffered workloads
// left over after the merged progress reached Explored.
type SpaceFullyExploredButWorkloadsRemainedError struct {
	Count int
}

func (e *SpaceFullyExploredButWorkloadsRemainedError) Error() string {
	return fmt.Sprintf("space fully explored but %d buffered workloads remained", e.Count)
}

// ActiveWorkersRemainedAfterSpaceFullyExploredError reports workers still
// holding workloads after the merged progress reached Explored.
type ActiveWorkersRemainedAfterSpaceFullyExploredError struct {
	Workers []string
}

func (e *ActiveWorkersRemainedAfterSpaceFullyExploredError) Error() string {
	return fmt.Sprintf("space fully explored but workers remained active: %s",
		strings.Join(e.Workers, ", "))
}
