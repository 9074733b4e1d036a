// Package supervisor keeps the books of a parallel exploration: which
// worker holds which workload, what has been explored so far, and when
// the run is over. It is a passive state machine; a runner owns the
// event loop and calls exactly one method at a time.
package supervisor

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/codec"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/msg"
	"github.com/canopy-dev/canopy/stats"
)

// DefaultWorkloadBufferSize is how many spare workloads the supervisor
// keeps on hand so that a finishing worker need not wait for a steal
// round trip.
const DefaultWorkloadBufferSize = 4

// Controller is the supervisor's outbound edge. Implementations deliver
// messages to workers and surface global progress snapshots; per-worker
// delivery must preserve order.
type Controller interface {
	SendWorkload(workerID string, wl checkpoint.Workload)
	RequestProgressUpdate(workerID string)
	RequestWorkloadSteal(workerID string)
	// ReceiveCurrentProgress fires once per PerformGlobalProgressUpdate,
	// after every frozen worker has answered.
	ReceiveCurrentProgress(p mode.Progress)
}

// Options configures a Supervisor.
type Options struct {
	Logger zerolog.Logger
	// Starting resumes a run from previously recorded progress. Nil
	// starts from an entirely unexplored tree.
	Starting *mode.Progress
	// Now overrides the clock, for tests.
	Now                func() time.Time
	WorkloadBufferSize int
}

type workerRecord struct {
	id     string
	active bool

	// workload is the last known remaining workload while active.
	workload    checkpoint.Workload
	fingerprint codec.Fingerprint
	depth       int

	waitingSince      time.Time
	pendingSteal      bool
	stealRequestedAt  time.Time
	stealUnproductive bool
	awaitingUpdate    bool
}

// Supervisor tracks workers, workloads and merged progress. It is not
// safe for concurrent use; serialize all calls.
type Supervisor struct {
	mode  mode.Mode
	ctrl  Controller
	log   zerolog.Logger
	now   func() time.Time
	stats *stats.Collector

	workers   map[string]*workerRecord
	waiting   []string
	available []checkpoint.Workload

	bufferSize int
	debug      bool

	progress mode.Progress

	// updateOutstanding counts frozen workers yet to answer the in-flight
	// global progress update.
	updateOutstanding int

	outcome *Outcome
}

// New builds a supervisor. Unless the starting progress is already fully
// explored, the whole remaining space is queued as the first workload.
func New(m mode.Mode, ctrl Controller, opts Options) *Supervisor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	buf := opts.WorkloadBufferSize
	if buf <= 0 {
		buf = DefaultWorkloadBufferSize
	}
	start := mode.EmptyProgress(m)
	if opts.Starting != nil {
		start = *opts.Starting
	}
	s := &Supervisor{
		mode:       m,
		ctrl:       ctrl,
		log:        opts.Logger,
		now:        now,
		stats:      stats.NewCollector(now()),
		workers:    make(map[string]*workerRecord),
		bufferSize: buf,
		progress:   start,
	}
	if checkpoint.Equal(start.Checkpoint, checkpoint.Explored) {
		s.complete()
	} else {
		s.available = append(s.available, checkpoint.Workload{Checkpoint: start.Checkpoint})
	}
	return s
}

// Done reports whether the run has terminated. Every operation on a
// terminated supervisor is a no-op.
func (s *Supervisor) Done() bool { return s.outcome != nil }

// Outcome is the terminal state, nil until Done.
func (s *Supervisor) Outcome() *Outcome { return s.outcome }

// Progress is the merged progress so far.
func (s *Supervisor) Progress() mode.Progress { return s.progress }

// SetWorkloadBufferSize adjusts the spare-workload target and rebalances
// immediately.
func (s *Supervisor) SetWorkloadBufferSize(n int) {
	if s.outcome != nil || n < 0 {
		return
	}
	t := s.begin()
	defer s.end()
	s.bufferSize = n
	s.rebalance(t)
}

// SetDebugMode toggles the expensive bookkeeping checks: workload
// fingerprint conflicts and whole-workspace coverage validation.
func (s *Supervisor) SetDebugMode(on bool) { s.debug = on }

// TryGetWaitingWorker returns a worker currently waiting for a workload.
func (s *Supervisor) TryGetWaitingWorker() (string, bool) {
	if len(s.waiting) == 0 {
		return "", false
	}
	return s.waiting[0], true
}

// AddWorker registers a worker. It starts idle and is assigned a
// workload as soon as one is available.
func (s *Supervisor) AddWorker(id string) error {
	if s.outcome != nil {
		return nil
	}
	t := s.begin()
	defer s.end()
	if _, ok := s.workers[id]; ok {
		return &WorkerAlreadyKnownError{ID: id}
	}
	r := &workerRecord{id: id}
	s.workers[id] = r
	s.stats.WorkerAdded(t, id)
	s.log.Debug().Str("worker", id).Msg("worker added")
	s.enqueueWaiting(t, r)
	s.rebalance(t)
	return nil
}

// RemoveWorker deregisters a worker. An active worker's remaining
// workload returns to the buffer, so no territory is lost.
func (s *Supervisor) RemoveWorker(id string) error {
	if s.outcome != nil {
		return nil
	}
	t := s.begin()
	defer s.end()
	r, ok := s.workers[id]
	if !ok {
		return &WorkerNotKnownError{ID: id}
	}
	s.removeWorker(t, r)
	return nil
}

// RemoveWorkerIfPresent is RemoveWorker without the not-known error.
func (s *Supervisor) RemoveWorkerIfPresent(id string) {
	if s.outcome != nil {
		return
	}
	t := s.begin()
	defer s.end()
	if r, ok := s.workers[id]; ok {
		s.removeWorker(t, r)
	}
}

func (s *Supervisor) removeWorker(t time.Time, r *workerRecord) {
	if r.active {
		s.available = append(s.available, r.workload)
	}
	s.resolveUpdate(r)
	for i, id := range s.waiting {
		if id == r.id {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			break
		}
	}
	delete(s.workers, r.id)
	s.stats.WorkerRemoved(t, r.id)
	s.log.Debug().Str("worker", r.id).Msg("worker removed")
	s.rebalance(t)
}

// ReceiveProgressUpdate folds a worker's claim and result delta into the
// global progress and records the workload it still holds.
func (s *Supervisor) ReceiveProgressUpdate(id string, u msg.ProgressUpdate) error {
	if s.outcome != nil {
		return nil
	}
	t := s.begin()
	defer s.end()
	r, ok := s.workers[id]
	if !ok {
		return &WorkerNotKnownError{ID: id}
	}
	if !r.active {
		return &WorkerNotActiveError{ID: id}
	}
	if !s.mergeProgress(u.Progress) {
		return nil
	}
	s.setWorkload(r, u.Remaining)
	r.stealUnproductive = false
	s.resolveUpdate(r)
	if s.outcome != nil {
		return nil
	}
	s.validateWorkspace()
	s.rebalance(t)
	return nil
}

// ReceiveStolenWorkload handles a steal response. A nil payload means
// the worker had nothing to give; it is skipped for further steal
// requests until its progress changes.
func (s *Supervisor) ReceiveStolenWorkload(id string, stolen *msg.StolenWorkload) error {
	if s.outcome != nil {
		return nil
	}
	t := s.begin()
	defer s.end()
	r, ok := s.workers[id]
	if !ok {
		return &WorkerNotKnownError{ID: id}
	}
	wasPending := r.pendingSteal
	r.pendingSteal = false
	if stolen == nil {
		s.stats.StealFailed()
		if r.active {
			r.stealUnproductive = true
		}
		s.rebalance(t)
		return nil
	}
	if !r.active {
		return &WorkerNotActiveError{ID: id}
	}
	if !s.mergeProgress(stolen.Update.Progress) {
		return nil
	}
	s.setWorkload(r, stolen.Update.Remaining)
	s.available = append(s.available, stolen.Workload)
	if wasPending {
		s.stats.StealCompleted(t, t.Sub(r.stealRequestedAt))
	}
	s.log.Debug().Str("worker", id).Stringer("workload", stolen.Workload).Msg("steal completed")
	s.validateWorkspace()
	s.rebalance(t)
	return nil
}

// ReceiveWorkerFinished folds a worker's final progress and returns the
// worker to the waiting pool. The run completes when the merged
// checkpoint reaches Explored or the mode's predicate holds.
func (s *Supervisor) ReceiveWorkerFinished(id string, final mode.Progress) error {
	if s.outcome != nil {
		return nil
	}
	t := s.begin()
	defer s.end()
	r, ok := s.workers[id]
	if !ok {
		return &WorkerNotKnownError{ID: id}
	}
	if !r.active {
		return &WorkerNotActiveError{ID: id}
	}
	r.active = false
	s.stats.WorkerOccupied(t, id, false)
	s.resolveUpdate(r)
	if !s.mergeProgress(final) {
		return nil
	}
	if checkpoint.Equal(s.progress.Checkpoint, checkpoint.Explored) {
		if others := s.activeWorkers(); len(others) > 0 {
			s.fail("", (&ActiveWorkersRemainedAfterSpaceFullyExploredError{Workers: others}).Error())
			return nil
		}
		if len(s.available) > 0 {
			s.fail("", (&SpaceFullyExploredButWorkloadsRemainedError{Count: len(s.available)}).Error())
			return nil
		}
		s.complete()
		return nil
	}
	s.enqueueWaiting(t, r)
	s.rebalance(t)
	return nil
}

// ReceiveWorkerFailure terminates the run, attributing it to the worker.
func (s *Supervisor) ReceiveWorkerFailure(id, message string) {
	if s.outcome != nil {
		return
	}
	s.begin()
	defer s.end()
	s.fail(id, message)
}

// PerformGlobalProgressUpdate requests a progress update from every
// active worker and fires Controller.ReceiveCurrentProgress once all
// have answered. A call while one is in flight is a no-op.
func (s *Supervisor) PerformGlobalProgressUpdate() {
	if s.outcome != nil {
		return
	}
	s.begin()
	defer s.end()
	if s.updateOutstanding > 0 {
		s.log.Debug().Msg("global progress update already in flight")
		return
	}
	for _, r := range s.workers {
		if r.active {
			r.awaitingUpdate = true
			s.updateOutstanding++
			s.ctrl.RequestProgressUpdate(r.id)
		}
	}
	if s.updateOutstanding == 0 {
		s.ctrl.ReceiveCurrentProgress(s.progress)
	}
}

// Abort terminates the run with a resumable partial outcome.
func (s *Supervisor) Abort() {
	s.AbortWithReason("aborted")
}

// AbortWithReason is Abort with an explanatory message.
func (s *Supervisor) AbortWithReason(reason string) {
	if s.outcome != nil {
		return
	}
	s.begin()
	defer s.end()
	s.finish(&Outcome{Reason: Aborted, Message: reason})
}

// begin marks the supervisor occupied and returns the current time.
func (s *Supervisor) begin() time.Time {
	t := s.now()
	s.stats.SupervisorOccupied(t, true)
	return t
}

func (s *Supervisor) end() {
	t := s.now()
	s.stats.SupervisorOccupied(t, false)
	s.stats.Counts(t, len(s.workers), len(s.waiting), len(s.available))
}

func (s *Supervisor) enqueueWaiting(t time.Time, r *workerRecord) {
	r.waitingSince = t
	s.waiting = append(s.waiting, r.id)
	s.stats.WorkloadRequested(t)
	s.stats.WorkerOccupied(t, r.id, false)
}

// mergeProgress folds p into the global progress. It reports false when
// the fold terminated the run, by completion or by inconsistency.
func (s *Supervisor) mergeProgress(p mode.Progress) bool {
	merged, err := checkpoint.Merge(s.progress.Checkpoint, p.Checkpoint)
	if err != nil {
		s.fail("", err.Error())
		return false
	}
	s.progress.Checkpoint = merged
	s.progress.Result = s.mode.Combine(s.progress.Result, p.Result)
	if s.mode.Complete(s.progress.Result) {
		s.complete()
		return false
	}
	return true
}

// setWorkload records r's current remaining workload and, in debug mode,
// checks no other worker holds the same one.
func (s *Supervisor) setWorkload(r *workerRecord, wl checkpoint.Workload) {
	r.workload = wl
	r.depth = wl.Depth()
	if !s.debug {
		return
	}
	fp, err := codec.WorkloadFingerprint(wl)
	if err != nil {
		s.fail("", err.Error())
		return
	}
	r.fingerprint = fp
	for _, other := range s.workers {
		if other != r && other.active && other.fingerprint == fp {
			s.fail("", (&ConflictingWorkloadsError{A: other.id, B: r.id, Workload: wl}).Error())
			return
		}
	}
}

// resolveUpdate counts r's answer toward an in-flight global update. A
// finish, a failure or a removal resolves it just like a report.
func (s *Supervisor) resolveUpdate(r *workerRecord) {
	if !r.awaitingUpdate {
		return
	}
	r.awaitingUpdate = false
	s.updateOutstanding--
	if s.updateOutstanding == 0 && s.outcome == nil {
		s.ctrl.ReceiveCurrentProgress(s.progress)
	}
}

// rebalance assigns buffered workloads to waiting workers, then issues
// enough steal requests to refill the buffer, and finally detects the
// stuck state where waiting workers can never be served again.
func (s *Supervisor) rebalance(t time.Time) {
	if s.outcome != nil {
		return
	}
	for len(s.waiting) > 0 && len(s.available) > 0 {
		id := s.waiting[0]
		s.waiting = s.waiting[1:]
		wl := s.available[0]
		s.available = s.available[1:]
		s.assign(t, s.workers[id], wl)
		if s.outcome != nil {
			return
		}
	}

	pending := 0
	for _, r := range s.workers {
		if r.pendingSteal {
			pending++
		}
	}
	needed := s.bufferSize + len(s.waiting) - len(s.available) - pending
	if needed > 0 {
		for _, r := range s.stealCandidates() {
			if needed == 0 {
				break
			}
			r.pendingSteal = true
			r.stealRequestedAt = t
			s.ctrl.RequestWorkloadSteal(r.id)
			needed--
		}
	}

	if len(s.waiting) > 0 && len(s.available) == 0 && len(s.activeWorkers()) == 0 {
		s.fail("", (&OutOfSourcesForNewWorkloadsError{}).Error())
	}
}

func (s *Supervisor) assign(t time.Time, r *workerRecord, wl checkpoint.Workload) {
	if r.active {
		s.fail("", (&WorkerAlreadyHasWorkloadError{ID: r.id}).Error())
		return
	}
	r.active = true
	r.stealUnproductive = false
	s.setWorkload(r, wl)
	if s.outcome != nil {
		return
	}
	s.stats.WorkerWaited(t, t.Sub(r.waitingSince))
	s.stats.WorkerOccupied(t, r.id, true)
	s.log.Debug().Str("worker", r.id).Stringer("workload", wl).Msg("workload assigned")
	s.ctrl.SendWorkload(r.id, wl)
}

// stealCandidates orders active workers by workload depth, shallowest
// first, skipping those with a request in flight and those whose last
// steal came back empty.
func (s *Supervisor) stealCandidates() []*workerRecord {
	out := make([]*workerRecord, 0, len(s.workers))
	for _, r := range s.workers {
		if r.active && !r.pendingSteal && !r.stealUnproductive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return out[i].id < out[j].id
	})
	return out
}

func (s *Supervisor) activeWorkers() []string {
	var out []string
	for _, r := range s.workers {
		if r.active {
			out = append(out, r.id)
		}
	}
	sort.Strings(out)
	return out
}

// validateWorkspace checks, in debug mode, that the merged progress plus
// the coverage of every outstanding workload is the whole tree.
func (s *Supervisor) validateWorkspace() {
	if !s.debug || s.outcome != nil {
		return
	}
	acc := s.progress.Checkpoint
	var err error
	for _, r := range s.workers {
		if r.active {
			if acc, err = checkpoint.Merge(acc, r.workload.Coverage()); err != nil {
				s.fail("", err.Error())
				return
			}
		}
	}
	for _, wl := range s.available {
		if acc, err = checkpoint.Merge(acc, wl.Coverage()); err != nil {
			s.fail("", err.Error())
			return
		}
	}
	if !checkpoint.Equal(acc, checkpoint.Explored) {
		s.fail("", (&IncompleteWorkspaceError{Missing: checkpoint.Invert(acc)}).Error())
	}
}

func (s *Supervisor) complete() {
	s.finish(&Outcome{Reason: Completed})
}

func (s *Supervisor) fail(worker, message string) {
	s.finish(&Outcome{Reason: Failure, FailedWorker: worker, Message: message})
}

func (s *Supervisor) finish(o *Outcome) {
	if s.outcome != nil {
		return
	}
	t := s.now()
	o.Progress = s.progress
	var ids []string
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	o.RemainingWorkers = ids
	if s.stats != nil {
		o.Statistics = s.stats.Snapshot(t)
	}
	s.outcome = o
	ev := s.log.Info().Stringer("reason", o.Reason)
	if o.Message != "" {
		ev = ev.Str("message", o.Message)
	}
	if o.FailedWorker != "" {
		ev = ev.Str("worker", o.FailedWorker)
	}
	ev.Msg("run terminated")
}
