package stats

import "math"

// Measurements summarizes independent samples: count, min, max, mean and
// standard deviation, accumulated in one pass with Welford's update.
type Measurements struct {
	count int64
	min   float64
	max   float64
	mean  float64
	m2    float64
}

// Add records one sample.
func (m *Measurements) Add(x float64) {
	m.count++
	if m.count == 1 {
		m.min, m.max = x, x
	} else {
		if x < m.min {
			m.min = x
		}
		if x > m.max {
			m.max = x
		}
	}
	delta := x - m.mean
	m.mean += delta / float64(m.count)
	m.m2 += delta * (x - m.mean)
}

func (m *Measurements) Count() int64 { return m.count }

func (m *Measurements) Min() float64 { return m.min }

func (m *Measurements) Max() float64 { return m.max }

func (m *Measurements) Mean() float64 { return m.mean }

// StdDev is the population standard deviation of the samples.
func (m *Measurements) StdDev() float64 {
	if m.count < 2 {
		return 0
	}
	return math.Sqrt(m.m2 / float64(m.count))
}

// Summary is a plain-data snapshot of a Measurements.
type Summary struct {
	Count  int64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summarize snapshots m.
func (m *Measurements) Summarize() Summary {
	return Summary{Count: m.count, Min: m.min, Max: m.max, Mean: m.mean, StdDev: m.StdDev()}
}
