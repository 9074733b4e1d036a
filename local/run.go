// Package local runs an exploration inside a single process: one
// goroutine per worker, channels for transport, and a supervisor event
// loop that also drives periodic progress updates and checkpointing.
package local

import (
	"context"
	"math/big"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/ckpt"
	"github.com/canopy-dev/canopy/mode"
	"github.com/canopy-dev/canopy/msg"
	"github.com/canopy-dev/canopy/supervisor"
	"github.com/canopy-dev/canopy/tree"
	"github.com/canopy-dev/canopy/worker"
)

// DefaultUpdateInterval is how often the run pulls progress from its
// workers when no interval is configured.
const DefaultUpdateInterval = 30 * time.Second

// Options configures a local run.
type Options struct {
	// Workers is the worker goroutine count; zero means one per CPU.
	Workers int
	// BufferSize overrides the supervisor's spare-workload target.
	BufferSize int
	// Debug enables the supervisor's bookkeeping validation.
	Debug bool
	// CheckpointPath enables durable checkpointing. An existing file at
	// this path resumes the run it recorded.
	CheckpointPath string
	// UpdateInterval is the cadence of global progress updates; each
	// completed update is also written to the checkpoint file.
	UpdateInterval time.Duration
	Logger         zerolog.Logger
}

// event is one worker-to-supervisor message with its sender.
type event struct {
	id string
	m  msg.FromWorker
}

// controller delivers supervisor messages over per-worker channels.
type controller struct {
	inboxes    map[string]chan msg.ToWorker
	onProgress func(mode.Progress)
}

func (c *controller) SendWorkload(id string, wl checkpoint.Workload) {
	c.inboxes[id] <- msg.StartWorkload{Workload: wl}
}

func (c *controller) RequestProgressUpdate(id string) {
	c.inboxes[id] <- msg.RequestProgressUpdate{}
}

func (c *controller) RequestWorkloadSteal(id string) {
	c.inboxes[id] <- msg.RequestWorkloadSteal{}
}

func (c *controller) ReceiveCurrentProgress(p mode.Progress) {
	c.onProgress(p)
}

// Run explores the tree produced by build under the given mode and
// blocks until the run terminates. Cancelling ctx aborts the run with a
// resumable outcome.
func Run(ctx context.Context, build func() tree.Tree, m mode.Mode, opts Options) (*supervisor.Outcome, error) {
	n := opts.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	log := opts.Logger

	var file *ckpt.File
	var starting *mode.Progress
	priorCPU := new(big.Rat)
	if opts.CheckpointPath != "" {
		file = &ckpt.File{Path: opts.CheckpointPath}
		rec, err := file.Read()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			starting = &rec.Progress
			priorCPU = rec.CPUTime
			log.Info().Str("path", file.Path).
				Stringer("checkpoint", rec.Progress.Checkpoint).
				Msg("resuming from checkpoint file")
		}
	}

	runStart := time.Now()
	cpuTime := func() *big.Rat {
		elapsed := big.NewRat(time.Since(runStart).Milliseconds(), 1000)
		return new(big.Rat).Add(priorCPU, elapsed)
	}

	events := make(chan event, n*4)
	ctrl := &controller{inboxes: make(map[string]chan msg.ToWorker, n)}
	ctrl.onProgress = func(p mode.Progress) {
		if file == nil {
			return
		}
		if err := file.Write(ckpt.Record{Progress: p, CPUTime: cpuTime()}); err != nil {
			log.Error().Err(err).Str("path", file.Path).
				Msg("checkpoint write failed; will retry at next update")
		}
	}

	sup := supervisor.New(m, ctrl, supervisor.Options{
		Logger:             log,
		Starting:           starting,
		WorkloadBufferSize: opts.BufferSize,
	})
	sup.SetDebugMode(opts.Debug)

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		inbox := make(chan msg.ToWorker, 8)
		ctrl.inboxes[id] = inbox
		w := &worker.Worker{
			ID:    id,
			Build: build,
			Mode:  m,
			Inbox: inbox,
			Send:  func(fm msg.FromWorker) { events <- event{id: id, m: fm} },
			Log:   log,
		}
		go w.Serve()
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := sup.AddWorker(id); err != nil {
			return nil, err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !sup.Done() {
		select {
		case <-ctx.Done():
			sup.AbortWithReason(ctx.Err().Error())
		case ev := <-events:
			dispatch(sup, ev)
		case <-ticker.C:
			sup.PerformGlobalProgressUpdate()
		}
	}

	// Quit the workers and keep draining their channel so none blocks
	// mid-send while shutting down.
	for _, inbox := range ctrl.inboxes {
		inbox <- msg.QuitWorker{}
	}
	for quits := 0; quits < n; {
		if _, ok := (<-events).m.(msg.WorkerQuitMessage); ok {
			quits++
		}
	}

	out := sup.Outcome()
	if file != nil {
		switch out.Reason {
		case supervisor.Completed:
			if err := file.Remove(); err != nil {
				log.Error().Err(err).Str("path", file.Path).Msg("checkpoint remove failed")
			}
		default:
			if err := file.Write(ckpt.Record{Progress: out.Progress, CPUTime: cpuTime()}); err != nil {
				log.Error().Err(err).Str("path", file.Path).Msg("final checkpoint write failed")
			}
		}
	}
	return out, nil
}

func dispatch(sup *supervisor.Supervisor, ev event) {
	var err error
	switch m := ev.m.(type) {
	case msg.ProgressUpdateMessage:
		err = sup.ReceiveProgressUpdate(ev.id, m.Update)
	case msg.StolenWorkloadMessage:
		err = sup.ReceiveStolenWorkload(ev.id, m.Stolen)
	case msg.FinishedMessage:
		err = sup.ReceiveWorkerFinished(ev.id, m.Final)
	case msg.FailedMessage:
		sup.ReceiveWorkerFailure(ev.id, m.Message)
	case msg.WorkerQuitMessage:
		sup.RemoveWorkerIfPresent(ev.id)
	}
	if err != nil {
		// A bookkeeping error here is a protocol defect, not a worker
		// crash, but it poisons the run all the same.
		sup.ReceiveWorkerFailure(ev.id, err.Error())
	}
}
