package stats

import "time"

// Occupation tracks what fraction of wall-clock time an entity spent
// marked occupied.
type Occupation struct {
	start    time.Time
	occupied bool
	since    time.Time
	total    time.Duration
	started  bool
	ended    bool
	end      time.Time
}

// Begin starts the clock; the entity begins unoccupied.
func (o *Occupation) Begin(now time.Time) {
	o.start = now
	o.started = true
}

// Set marks the entity occupied or idle at time now.
func (o *Occupation) Set(now time.Time, occupied bool) {
	if !o.started {
		o.Begin(now)
	}
	if occupied == o.occupied {
		return
	}
	if o.occupied {
		o.total += now.Sub(o.since)
	} else {
		o.since = now
	}
	o.occupied = occupied
}

// End stops the clock.
func (o *Occupation) End(now time.Time) {
	o.Set(now, false)
	o.end = now
	o.ended = true
}

// Fraction is occupied time over elapsed time at now (or at End if the
// clock has been stopped).
func (o *Occupation) Fraction(now time.Time) float64 {
	if !o.started {
		return 0
	}
	if o.ended {
		now = o.end
	}
	elapsed := now.Sub(o.start)
	if elapsed <= 0 {
		return 0
	}
	total := o.total
	if o.occupied {
		total += now.Sub(o.since)
	}
	return total.Seconds() / elapsed.Seconds()
}
