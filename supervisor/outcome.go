package supervisor

import (
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/stats"
)

// Reason classifies how a run ended.
type Reason int

const (
	// Completed means the mode declared the run finished: the space was
	// fully explored, or the mode's completion predicate held.
	Completed Reason = iota
	// Aborted means the run was cancelled from outside.
	Aborted
	// Failure means a worker failed or an internal invariant broke.
	Failure
)

func (r Reason) String() string {
	switch r {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of a run. Progress carries the merged
// checkpoint and result as of termination; on Completed the result is
// final, on Aborted it is a resumable partial.
type Outcome struct {
	Reason   Reason
	Progress mode.Progress

	// FailedWorker and Message are set on Failure; Message also carries
	// the abort reason on Aborted.
	FailedWorker string
	Message      string

	Statistics       stats.RunStatistics
	RemainingWorkers []string
}
