// Package worker drives the stepper over assigned workloads, answering
// control requests between steps: progress updates, workload steals and
// quits. One Worker is one sequential actor; nothing here is shared.
package worker

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/msg"
	"github.com/canopy-dev/canopy/tree"
	"github.com/canopy-dev/canopy/walk"
)

// Worker explores workloads handed to it over Inbox and reports over
// Send. A fresh tree is built per workload; trees are never shared
// between workers.
type Worker struct {
	ID    string
	Build func() tree.Tree
	Mode  mode.Mode
	Inbox <-chan msg.ToWorker
	Send  func(msg.FromWorker)
	Log   zerolog.Logger
}

// Serve processes messages until QuitWorker arrives or Inbox closes.
// While a workload is running, requests are drained between steps.
func (w *Worker) Serve() {
	for m := range w.Inbox {
		switch m := m.(type) {
		case msg.StartWorkload:
			if quit := w.run(m.Workload); quit {
				w.Send(msg.WorkerQuitMessage{})
				return
			}
		case msg.QuitWorker:
			w.Send(msg.WorkerQuitMessage{})
			return
		case msg.RequestWorkloadSteal:
			// Nothing to give while idle.
			w.Send(msg.StolenWorkloadMessage{})
		case msg.RequestProgressUpdate:
			// A finish or failure already in flight resolves this on the
			// supervisor side.
			w.Log.Debug().Str("worker", w.ID).Msg("progress update requested while idle")
		}
	}
}

// run explores one workload to completion, failure, or quit. The
// returned flag is true when a quit was requested mid-run.
func (w *Worker) run(wl checkpoint.Workload) (quit bool) {
	e := &engine{w: w, initialPath: wl.Path.Clone(), accum: w.Mode.Empty()}

	defer func() {
		if r := recover(); r != nil {
			w.Log.Error().Str("worker", w.ID).Interface("panic", r).Msg("workload panicked")
			w.Send(msg.FailedMessage{Message: fmt.Sprintf("panic: %v", r)})
		}
	}()

	state, err := walk.Resume(w.Build(), wl.Path, wl.Checkpoint)
	if err != nil {
		w.Send(msg.FailedMessage{Message: err.Error()})
		return false
	}
	e.state = state
	return e.explore()
}

// engine is the in-flight state of one workload: the position is
// initialPath, then the cursor (frozen by steals), then the live
// context.
type engine struct {
	w           *Worker
	initialPath tree.Path
	cursor      checkpoint.Cursor
	state       *walk.State
	accum       any
}

func (e *engine) explore() (quit bool) {
	locating := e.w.Mode.Locating()
	var at tree.Location
	for {
		if e.drain() {
			return true
		}
		if locating {
			at = e.location()
		}
		res, leaf, err := e.state.Step()
		if err != nil {
			e.w.Send(msg.FailedMessage{Message: err.Error()})
			return false
		}
		switch res {
		case walk.Emitted:
			e.accum = e.w.Mode.Combine(e.accum, e.w.Mode.Lift(at, leaf))
			if e.w.Mode.StopOnResult() && e.w.Mode.Complete(e.accum) {
				e.w.Send(msg.FinishedMessage{Final: mode.Progress{
					Checkpoint: e.claim(),
					Result:     e.accum,
				}})
				return false
			}
			if e.w.Mode.Push() {
				e.w.Send(msg.ProgressUpdateMessage{Update: e.progressUpdate()})
			}
		case walk.Done:
			// The exhausted state's claim is everything but the stolen
			// siblings.
			e.w.Send(msg.FinishedMessage{Final: mode.Progress{
				Checkpoint: e.claim(),
				Result:     e.accum,
			}})
			return false
		}
	}
}

// drain handles every pending request without blocking. It reports true
// on a quit request.
func (e *engine) drain() bool {
	for {
		select {
		case m, ok := <-e.w.Inbox:
			if !ok {
				return true
			}
			switch m.(type) {
			case msg.RequestProgressUpdate:
				e.w.Send(msg.ProgressUpdateMessage{Update: e.progressUpdate()})
			case msg.RequestWorkloadSteal:
				e.w.Send(e.steal())
			case msg.QuitWorker:
				return true
			case msg.StartWorkload:
				// The supervisor never double-assigns; a second workload
				// here is a transport bug.
				e.w.Log.Warn().Str("worker", e.w.ID).Msg("workload received while one is active; dropped")
			}
		default:
			return false
		}
	}
}

// claim is the whole-tree checkpoint of everything finished within this
// workload: the remaining-workload checkpoint spliced through cursor and
// context already marks done regions Explored, and stolen siblings stay
// Unexplored in the cursor, so they are never claimed here.
func (e *engine) claim() checkpoint.Checkpoint {
	return checkpoint.FromInitialPath(e.initialPath,
		e.cursor.Splice(e.state.Context.Splice(e.state.Checkpoint)))
}

// progressUpdate reports the cumulative claim, the result delta since
// the previous update, and the workload still held. The accumulator
// resets; the claim does not need to, since checkpoint merge is an
// idempotent union.
func (e *engine) progressUpdate() msg.ProgressUpdate {
	u := msg.ProgressUpdate{
		Progress: mode.Progress{Checkpoint: e.claim(), Result: e.accum},
		Remaining: checkpoint.Workload{
			Path:       e.initialPath.Join(e.cursor.Path()),
			Checkpoint: e.state.Context.Splice(e.state.Checkpoint),
		},
	}
	e.accum = e.w.Mode.Empty()
	return u
}

// steal cuts off the shallowest parked right sibling as a workload for
// another worker. Every context frame above it is frozen into the
// cursor: nothing there can be backtracked into any more. The losing
// side's progress update rides along so the supervisor's books stay
// balanced.
func (e *engine) steal() msg.StolenWorkloadMessage {
	k := e.state.Context.ShallowestLeftBranch()
	if k < 0 {
		return msg.StolenWorkloadMessage{}
	}
	for _, step := range e.state.Context[:k] {
		switch step := step.(type) {
		case checkpoint.CacheContextStep:
			e.cursor = e.cursor.Push(checkpoint.CacheCursorStep{Bytes: step.Bytes})
		case checkpoint.RightBranchContextStep:
			e.cursor = e.cursor.Push(checkpoint.ChoiceCursorStep{
				Branch: tree.RightBranch,
				Other:  checkpoint.Explored,
			})
		}
	}
	lb := e.state.Context[k].(*checkpoint.LeftBranchContextStep)
	stolenPath := e.initialPath.Join(e.cursor.Path())
	stolenPath = append(stolenPath, tree.ChoiceStep{Branch: tree.RightBranch})
	e.cursor = e.cursor.Push(checkpoint.ChoiceCursorStep{
		Branch: tree.LeftBranch,
		Other:  checkpoint.Unexplored,
	})
	rest := e.state.Context[k+1:]
	e.state.Context = append(checkpoint.Context(nil), rest...)

	stolen := checkpoint.Workload{Path: stolenPath, Checkpoint: lb.RightCheckpoint}
	e.w.Log.Debug().Str("worker", e.w.ID).Stringer("path", stolenPath).Msg("workload stolen")
	return msg.StolenWorkloadMessage{Stolen: &msg.StolenWorkload{
		Update:   e.progressUpdate(),
		Workload: stolen,
	}}
}

// location is the whole-tree coordinate of the current position.
func (e *engine) location() tree.Location {
	return tree.LocationFromPath(e.initialPath).
		Append(tree.LocationFromPath(e.cursor.Path())).
		Append(tree.LocationFromPath(e.state.Context.Path()))
}
