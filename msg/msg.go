// Package msg defines the wire message shapes exchanged between the
// supervisor and its workers. Encodings live in package codec; transports
// are external and only need to preserve per-pair FIFO order.
package msg

import (
	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/mode"
)

// ToWorker is a supervisor-to-worker message.
type ToWorker interface {
	toWorker()
}

// RequestProgressUpdate asks the worker to report its progress delta and
// remaining workload.
type RequestProgressUpdate struct{}

// RequestWorkloadSteal asks the worker to give up an unexplored sibling
// sub-tree.
type RequestWorkloadSteal struct{}

// StartWorkload assigns a workload to an idle worker.
type StartWorkload struct {
	Workload checkpoint.Workload
}

// QuitWorker tells the worker to stop at its next yield point.
type QuitWorker struct{}

func (RequestProgressUpdate) toWorker() {}
func (RequestWorkloadSteal) toWorker()  {}
func (StartWorkload) toWorker()         {}
func (QuitWorker) toWorker()            {}

// FromWorker is a worker-to-supervisor message.
type FromWorker interface {
	fromWorker()
}

// ProgressUpdate pairs the progress a worker claims with the workload it
// still holds. The result part of Progress is a delta since the previous
// update; the checkpoint part is cumulative and merge-idempotent.
type ProgressUpdate struct {
	Progress  mode.Progress
	Remaining checkpoint.Workload
}

// StolenWorkload is a successful steal: the losing side's progress
// update plus the workload cut off for the thief.
type StolenWorkload struct {
	Update   ProgressUpdate
	Workload checkpoint.Workload
}

// ProgressUpdateMessage answers RequestProgressUpdate.
type ProgressUpdateMessage struct {
	Update ProgressUpdate
}

// StolenWorkloadMessage answers RequestWorkloadSteal. Stolen is nil when
// the worker had no sibling left to give.
type StolenWorkloadMessage struct {
	Stolen *StolenWorkload
}

// FinishedMessage reports a completed workload with its final progress.
type FinishedMessage struct {
	Final mode.Progress
}

// FailedMessage reports a worker failure; the run terminates.
type FailedMessage struct {
	Message string
}

// WorkerQuitMessage acknowledges QuitWorker.
type WorkerQuitMessage struct{}

func (ProgressUpdateMessage) fromWorker() {}
func (StolenWorkloadMessage) fromWorker() {}
func (FinishedMessage) fromWorker()       {}
func (FailedMessage) fromWorker()         {}
func (WorkerQuitMessage) fromWorker()     {}
