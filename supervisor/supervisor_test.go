package supervisor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/msg"
	"github.com/canopy-dev/canopy/tree"
)

// recorder captures every outbound action in order.
type recorder struct {
	assigned map[string][]checkpoint.Workload
	updates  []string
	steals   []string
	progress []mode.Progress
}

func newRecorder() *recorder {
	return &recorder{assigned: make(map[string][]checkpoint.Workload)}
}

func (r *recorder) SendWorkload(id string, wl checkpoint.Workload) {
	r.assigned[id] = append(r.assigned[id], wl)
}
func (r *recorder) RequestProgressUpdate(id string) { r.updates = append(r.updates, id) }
func (r *recorder) RequestWorkloadSteal(id string)  { r.steals = append(r.steals, id) }
func (r *recorder) ReceiveCurrentProgress(p mode.Progress) {
	r.progress = append(r.progress, p)
}

func newTestSupervisor(t *testing.T, m mode.Mode, opts Options) (*Supervisor, *recorder) {
	t.Helper()
	ctrl := newRecorder()
	opts.Logger = zerolog.Nop()
	if opts.Now == nil {
		clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		}
	}
	return New(m, ctrl, opts), ctrl
}

// splitAt cuts the entire-tree workload the way a worker paused inside
// the left branch would: a claim over nothing, the left side as the
// remainder, and the right side stolen.
func splitEntireTree() (update msg.ProgressUpdate, stolen checkpoint.Workload) {
	update = msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(0)},
		Remaining: checkpoint.Workload{
			Path:       tree.Path{tree.ChoiceStep{Branch: tree.LeftBranch}},
			Checkpoint: checkpoint.Unexplored,
		},
	}
	stolen = checkpoint.Workload{
		Path:       tree.Path{tree.ChoiceStep{Branch: tree.RightBranch}},
		Checkpoint: checkpoint.Unexplored,
	}
	return update, stolen
}

func TestFirstWorkerGetsTheEntireTree(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))

	require.Len(t, ctrl.assigned["a"], 1)
	wl := ctrl.assigned["a"][0]
	require.Empty(t, wl.Path)
	require.Equal(t, checkpoint.Unexplored, wl.Checkpoint)

	// With an empty buffer the supervisor immediately tries to refill it
	// from the only active worker.
	require.Equal(t, []string{"a"}, ctrl.steals)
}

func TestAddWorkerTwiceFails(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	var already *WorkerAlreadyKnownError
	require.ErrorAs(t, s.AddWorker("a"), &already)
}

func TestStolenWorkloadFeedsWaitingWorker(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))
	require.Len(t, ctrl.assigned["b"], 0, "no workload for b yet")

	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	require.Len(t, ctrl.assigned["b"], 1)
	require.Equal(t, "R", ctrl.assigned["b"][0].Path.String())
	require.False(t, s.Done())
}

func TestFailedStealMarksWorkerUnproductive(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.Equal(t, 1, len(ctrl.steals))

	// A nil steal response must not trigger an immediate re-request,
	// or the pair would spin forever.
	require.NoError(t, s.ReceiveStolenWorkload("a", nil))
	require.Equal(t, 1, len(ctrl.steals), "unproductive worker was asked again")

	// Progress clears the flag and stealing resumes.
	update := msg.ProgressUpdate{
		Progress:  mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(0)},
		Remaining: checkpoint.EntireTree(),
	}
	require.NoError(t, s.ReceiveProgressUpdate("a", update))
	require.Equal(t, 2, len(ctrl.steals))
}

func TestStealCandidatesPreferShallowWorkloads(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{WorkloadBufferSize: 1})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))
	ctrl.steals = nil

	// a gives up the right half and keeps a remainder two levels down; b
	// gets the stolen half, one level down.
	update := msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(0)},
		Remaining: checkpoint.Workload{
			Path: tree.Path{
				tree.ChoiceStep{Branch: tree.LeftBranch},
				tree.ChoiceStep{Branch: tree.LeftBranch},
			},
			Checkpoint: checkpoint.Unexplored,
		},
	}
	stolen := checkpoint.Workload{
		Path:       tree.Path{tree.ChoiceStep{Branch: tree.RightBranch}},
		Checkpoint: checkpoint.Unexplored,
	}
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	// The refill request goes to the shallowest holder.
	require.Equal(t, []string{"b"}, ctrl.steals)
}

func TestRunCompletesWhenSpaceIsExplored(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.ReceiveWorkerFinished("a",
		mode.Progress{Checkpoint: checkpoint.Explored, Result: int64(92)}))

	require.True(t, s.Done())
	out := s.Outcome()
	require.Equal(t, Completed, out.Reason)
	require.Equal(t, int64(92), out.Progress.Result)
	require.Equal(t, []string{"a"}, out.RemainingWorkers)
}

func TestPartialFinishReturnsWorkerToThePool(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))

	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	// b finishes its half; the space is not exhausted, so the run goes on
	// and b waits for more work.
	half := checkpoint.NewChoicePoint(checkpoint.Unexplored, checkpoint.Explored)
	require.NoError(t, s.ReceiveWorkerFinished("b", mode.Progress{Checkpoint: half, Result: int64(40)}))
	require.False(t, s.Done())
	id, ok := s.TryGetWaitingWorker()
	require.True(t, ok)
	require.Equal(t, "b", id)

	// a finishes the other half; merged progress reaches Explored.
	other := checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored)
	require.NoError(t, s.ReceiveWorkerFinished("a", mode.Progress{Checkpoint: other, Result: int64(52)}))
	require.True(t, s.Done())
	require.Equal(t, Completed, s.Outcome().Reason)
	require.Equal(t, int64(92), s.Outcome().Progress.Result)
	_ = ctrl
}

func TestModePredicateCompletesEarly(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.FoundPull(mode.IntSum{}, func(r any) bool {
		return mode.AsInt64(r) >= 10
	}), Options{})
	require.NoError(t, s.AddWorker("a"))

	update := msg.ProgressUpdate{
		Progress:  mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(12)},
		Remaining: checkpoint.EntireTree(),
	}
	require.NoError(t, s.ReceiveProgressUpdate("a", update))
	require.True(t, s.Done())
	require.Equal(t, Completed, s.Outcome().Reason)
	require.Equal(t, int64(12), s.Outcome().Progress.Result)
}

func TestWorkerFailureTerminatesRun(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	s.ReceiveWorkerFailure("a", "boom")

	out := s.Outcome()
	require.Equal(t, Failure, out.Reason)
	require.Equal(t, "a", out.FailedWorker)
	require.Equal(t, "boom", out.Message)

	// Everything after termination is a graceful no-op.
	require.NoError(t, s.AddWorker("z"))
	require.NoError(t, s.ReceiveWorkerFinished("a", mode.Progress{Checkpoint: checkpoint.Explored}))
	require.Equal(t, Failure, s.Outcome().Reason)
}

func TestGlobalProgressUpdateWaitsForAllActiveWorkers(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))
	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	s.PerformGlobalProgressUpdate()
	require.ElementsMatch(t, []string{"a", "b"}, ctrl.updates)
	require.Empty(t, ctrl.progress)

	left := msg.ProgressUpdate{
		Progress: mode.Progress{
			Checkpoint: checkpoint.NewChoicePoint(
				checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored),
				checkpoint.Unexplored),
			Result: int64(3),
		},
		Remaining: checkpoint.Workload{
			Path: tree.Path{
				tree.ChoiceStep{Branch: tree.LeftBranch},
				tree.ChoiceStep{Branch: tree.RightBranch},
			},
			Checkpoint: checkpoint.Unexplored,
		},
	}
	require.NoError(t, s.ReceiveProgressUpdate("a", left))
	require.Empty(t, ctrl.progress, "snapshot must wait for the last answer")

	right := msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(4)},
		Remaining: checkpoint.Workload{
			Path:       tree.Path{tree.ChoiceStep{Branch: tree.RightBranch}},
			Checkpoint: checkpoint.Unexplored,
		},
	}
	require.NoError(t, s.ReceiveProgressUpdate("b", right))

	// The snapshot fires exactly once, carrying both answers.
	require.Len(t, ctrl.progress, 1)
	require.Equal(t, int64(7), ctrl.progress[0].Result)
	require.False(t, s.Done())
}

func TestFinishResolvesAnOutstandingUpdate(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))
	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	s.PerformGlobalProgressUpdate()
	require.Empty(t, ctrl.progress)

	// b finishes its half instead of answering; that resolves its slot.
	half := checkpoint.NewChoicePoint(checkpoint.Unexplored, checkpoint.Explored)
	require.NoError(t, s.ReceiveWorkerFinished("b", mode.Progress{Checkpoint: half, Result: int64(4)}))
	require.Empty(t, ctrl.progress)

	left := msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(1)},
		Remaining: checkpoint.Workload{
			Path:       tree.Path{tree.ChoiceStep{Branch: tree.LeftBranch}},
			Checkpoint: checkpoint.Unexplored,
		},
	}
	require.NoError(t, s.ReceiveProgressUpdate("a", left))
	require.Len(t, ctrl.progress, 1)
	require.Equal(t, int64(5), ctrl.progress[0].Result)
}

func TestGlobalProgressUpdateWithNoActiveWorkers(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	s.PerformGlobalProgressUpdate()
	require.Len(t, ctrl.progress, 1, "an idle supervisor reports immediately")
	require.Equal(t, checkpoint.Unexplored, ctrl.progress[0].Checkpoint)
}

func TestOutOfSourcesDetection(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))

	// a hands in a partial finish; now both workers wait, nothing is
	// buffered, and nobody is active. No source of workloads remains.
	half := checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored)
	require.NoError(t, s.ReceiveWorkerFinished("a", mode.Progress{Checkpoint: half, Result: int64(1)}))

	require.True(t, s.Done())
	out := s.Outcome()
	require.Equal(t, Failure, out.Reason)
	require.Contains(t, out.Message, "no sources of new workloads")
}

func TestRemoveWorkerRequeuesItsWorkload(t *testing.T) {
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))

	require.NoError(t, s.RemoveWorker("a"))
	// a's entire-tree workload goes straight to the waiting b.
	require.Len(t, ctrl.assigned["b"], 1)
	require.Equal(t, checkpoint.Unexplored, ctrl.assigned["b"][0].Checkpoint)

	var notKnown *WorkerNotKnownError
	require.ErrorAs(t, s.RemoveWorker("a"), &notKnown)
	s.RemoveWorkerIfPresent("a")
	require.False(t, s.Done())
}

func TestResumeFromPriorProgress(t *testing.T) {
	prior := mode.Progress{
		Checkpoint: checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored),
		Result:     int64(40),
	}
	s, ctrl := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{Starting: &prior})
	require.NoError(t, s.AddWorker("a"))

	// The first workload is the whole tree minus what the prior progress
	// already covers.
	require.Len(t, ctrl.assigned["a"], 1)
	require.True(t, checkpoint.Equal(ctrl.assigned["a"][0].Checkpoint, prior.Checkpoint))

	require.NoError(t, s.ReceiveWorkerFinished("a",
		mode.Progress{Checkpoint: checkpoint.Explored, Result: int64(52)}))
	require.True(t, s.Done())
	require.Equal(t, int64(92), s.Outcome().Progress.Result)
}

func TestResumeFromCompletedProgressTerminatesImmediately(t *testing.T) {
	prior := mode.Progress{Checkpoint: checkpoint.Explored, Result: int64(92)}
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{Starting: &prior})
	require.True(t, s.Done())
	require.Equal(t, Completed, s.Outcome().Reason)
	require.Equal(t, int64(92), s.Outcome().Progress.Result)
}

func TestDebugModeCatchesConflictingWorkloads(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	s.SetDebugMode(true)
	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("b"))
	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))
	require.False(t, s.Done())

	// b claims to hold exactly a's workload. The books no longer add up.
	conflict := msg.ProgressUpdate{
		Progress:  mode.Progress{Checkpoint: checkpoint.Unexplored, Result: int64(0)},
		Remaining: update.Remaining,
	}
	require.NoError(t, s.ReceiveProgressUpdate("b", conflict))
	require.True(t, s.Done())
	require.Equal(t, Failure, s.Outcome().Reason)
	require.Contains(t, s.Outcome().Message, "same workload")
}

func TestInconsistentProgressFailsRun(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))

	a := checkpoint.NewCachePoint([]byte{1}, checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored))
	b := checkpoint.NewCachePoint([]byte{2}, checkpoint.NewChoicePoint(checkpoint.Unexplored, checkpoint.Explored))
	require.NoError(t, s.ReceiveProgressUpdate("a", msg.ProgressUpdate{
		Progress:  mode.Progress{Checkpoint: a, Result: int64(0)},
		Remaining: checkpoint.EntireTree(),
	}))
	require.NoError(t, s.ReceiveProgressUpdate("a", msg.ProgressUpdate{
		Progress:  mode.Progress{Checkpoint: b, Result: int64(0)},
		Remaining: checkpoint.EntireTree(),
	}))
	require.True(t, s.Done())
	require.Equal(t, Failure, s.Outcome().Reason)
}

func TestAbortKeepsResumableProgress(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))
	half := checkpoint.NewChoicePoint(checkpoint.Explored, checkpoint.Unexplored)
	require.NoError(t, s.ReceiveProgressUpdate("a", msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: half, Result: int64(40)},
		Remaining: checkpoint.Workload{
			Path:       tree.Path{tree.ChoiceStep{Branch: tree.RightBranch}},
			Checkpoint: checkpoint.Unexplored,
		},
	}))

	s.AbortWithReason("interrupted")
	out := s.Outcome()
	require.Equal(t, Aborted, out.Reason)
	require.Equal(t, "interrupted", out.Message)
	require.True(t, checkpoint.Equal(out.Progress.Checkpoint, half))
	require.Equal(t, int64(40), out.Progress.Result)
}

func TestAssigningToBusyWorkerFailsRun(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))

	// a already holds the entire tree; handing it another workload would
	// double-count whatever both of them cover.
	s.assign(s.now(), s.workers["a"], checkpoint.EntireTree())
	require.True(t, s.Done())
	require.Equal(t, Failure, s.Outcome().Reason)
	require.Contains(t, s.Outcome().Message, "already has a workload")
}

func TestLeftoverWorkloadsAfterFullExplorationFailRun(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	require.NoError(t, s.AddWorker("a"))

	// a gives up the right half; with nobody waiting it stays buffered.
	update, stolen := splitEntireTree()
	require.NoError(t, s.ReceiveStolenWorkload("a", &msg.StolenWorkload{Update: update, Workload: stolen}))

	// a then claims the whole space is explored. The buffered workload
	// proves the books are wrong, so the run must not complete.
	require.NoError(t, s.ReceiveWorkerFinished("a",
		mode.Progress{Checkpoint: checkpoint.Explored, Result: int64(0)}))
	require.True(t, s.Done())
	require.Equal(t, Failure, s.Outcome().Reason)
	require.Contains(t, s.Outcome().Message, "buffered workloads remained")
}

func TestUnknownAndInactiveWorkerErrors(t *testing.T) {
	s, _ := newTestSupervisor(t, mode.All(mode.IntSum{}), Options{})
	var notKnown *WorkerNotKnownError
	require.ErrorAs(t, s.ReceiveProgressUpdate("ghost", msg.ProgressUpdate{}), &notKnown)

	require.NoError(t, s.AddWorker("a"))
	require.NoError(t, s.AddWorker("idle"))
	var notActive *WorkerNotActiveError
	require.ErrorAs(t, s.ReceiveWorkerFinished("idle",
		mode.Progress{Checkpoint: checkpoint.Explored, Result: int64(0)}), &notActive)
}
