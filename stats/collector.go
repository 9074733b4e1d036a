package stats

import "time"

// RunStatistics is the snapshot of a run's metadata reported in the
// supervisor outcome.
type RunStatistics struct {
	Start time.Time
	End   time.Time

	// Time-weighted averages of the supervisor's population counts.
	AverageWorkerCount            float64
	AverageWaitingWorkerCount     float64
	AverageAvailableWorkloadCount float64

	// Smoothed instantaneous views, 1s time constant.
	WorkloadRequestRate float64
	WorkloadStealTime   float64

	// Per-worker wait-time averages, linearly interpolated.
	AverageWorkerWaitTime float64

	// Steal round-trip times as independent measurements.
	StealTimes Summary

	FailedStealCount int64

	// Occupation fractions over the run.
	SupervisorOccupation    float64
	AverageWorkerOccupation float64
	WorkerOccupation        map[string]float64
}

// Collector accumulates run statistics for the supervisor. All methods
// are called from the supervisor's serialized event loop; the collector
// is not safe for concurrent use.
type Collector struct {
	start time.Time

	workerCount       StepFunction
	waitingCount      StepFunction
	availableCount    StepFunction
	requestRate       *DecayingSum
	stealTimeSmoothed *ExponentialAverage
	waitTimes         InterpolatedFunction
	stealTimes        Measurements
	failedSteals      int64

	supervisor Occupation
	workers    map[string]*Occupation
	retired    map[string]float64
}

// NewCollector starts collecting at now.
func NewCollector(now time.Time) *Collector {
	c := &Collector{
		start:             now,
		requestRate:       NewDecayingSum(time.Second),
		stealTimeSmoothed: NewExponentialAverage(time.Second),
		workers:           make(map[string]*Occupation),
		retired:           make(map[string]float64),
	}
	c.supervisor.Begin(now)
	c.workerCount.Update(now, 0)
	c.waitingCount.Update(now, 0)
	c.availableCount.Update(now, 0)
	return c
}

// Counts records the current population sizes.
func (c *Collector) Counts(now time.Time, workers, waiting, available int) {
	c.workerCount.Update(now, float64(workers))
	c.waitingCount.Update(now, float64(waiting))
	c.availableCount.Update(now, float64(available))
}

// WorkloadRequested records one workload request (a worker going idle).
func (c *Collector) WorkloadRequested(now time.Time) {
	c.requestRate.Add(now)
}

// WorkerWaited records how long a worker waited before being assigned.
func (c *Collector) WorkerWaited(now time.Time, d time.Duration) {
	c.waitTimes.Sample(now, d.Seconds())
}

// StealCompleted records a successful steal round trip.
func (c *Collector) StealCompleted(now time.Time, d time.Duration) {
	c.stealTimes.Add(d.Seconds())
	c.stealTimeSmoothed.Sample(now, d.Seconds())
}

// StealFailed counts a steal request that found nothing.
func (c *Collector) StealFailed() {
	c.failedSteals++
}

// SupervisorOccupied marks the supervisor busy or idle.
func (c *Collector) SupervisorOccupied(now time.Time, occupied bool) {
	c.supervisor.Set(now, occupied)
}

// WorkerAdded starts occupation tracking for a worker.
func (c *Collector) WorkerAdded(now time.Time, id string) {
	o := &Occupation{}
	o.Begin(now)
	c.workers[id] = o
}

// WorkerOccupied marks a worker busy or idle.
func (c *Collector) WorkerOccupied(now time.Time, id string, occupied bool) {
	if o, ok := c.workers[id]; ok {
		o.Set(now, occupied)
	}
}

// WorkerRemoved retires a worker, freezing its occupation fraction.
func (c *Collector) WorkerRemoved(now time.Time, id string) {
	if o, ok := c.workers[id]; ok {
		o.End(now)
		c.retired[id] = o.Fraction(now)
		delete(c.workers, id)
	}
}

// Snapshot produces the final statistics at now.
func (c *Collector) Snapshot(now time.Time) RunStatistics {
	occ := make(map[string]float64, len(c.workers)+len(c.retired))
	sum := 0.0
	for id, f := range c.retired {
		occ[id] = f
		sum += f
	}
	for id, o := range c.workers {
		f := o.Fraction(now)
		occ[id] = f
		sum += f
	}
	avg := 0.0
	if len(occ) > 0 {
		avg = sum / float64(len(occ))
	}
	return RunStatistics{
		Start:                         c.start,
		End:                           now,
		AverageWorkerCount:            c.workerCount.Average(now),
		AverageWaitingWorkerCount:     c.waitingCount.Average(now),
		AverageAvailableWorkloadCount: c.availableCount.Average(now),
		WorkloadRequestRate:           c.requestRate.Rate(now),
		WorkloadStealTime:             c.stealTimeSmoothed.Value(),
		AverageWorkerWaitTime:         c.waitTimes.Average(now),
		StealTimes:                    c.stealTimes.Summarize(),
		FailedStealCount:              c.failedSteals,
		SupervisorOccupation:          c.supervisor.Fraction(now),
		AverageWorkerOccupation:       avg,
		WorkerOccupation:              occ,
	}
}
