// Package mode defines the result policies of an exploration: how leaf
// values are lifted into results, how results combine, and when an
// accumulated result completes the run early.
package mode

import (
	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/tree"
)

// Monoid is the user-supplied combiner for leaf values. Combine must be
// associative; parallel exploration additionally assumes it commutes,
// since workers report in no particular order.
type Monoid interface {
	Empty() any
	// Lift injects a raw leaf value into the monoid. Combine is only ever
	// applied to lifted values.
	Lift(leaf any) any
	Combine(a, b any) any
}

// Progress is aggregated exploration: the checkpoint of the explored
// region plus the result accumulated over it.
type Progress struct {
	Checkpoint checkpoint.Checkpoint
	Result     any
}

// Located is a leaf value tagged with the coordinate it was found at.
// First mode reports these.
type Located struct {
	Where tree.Location
	Value any
}

// Mode is one of the four result policies.
type Mode interface {
	Name() string
	// Empty is the identity result.
	Empty() any
	// Lift turns a leaf at a location into a result.
	Lift(loc tree.Location, leaf any) any
	// Combine folds two results.
	Combine(a, b any) any
	// Complete reports whether the accumulated result finishes the run
	// before the space is exhausted.
	Complete(result any) bool
	// Locating reports whether Lift needs real locations. Only First
	// mode does; the others skip the per-leaf path bookkeeping.
	Locating() bool
	// StopOnResult reports whether a worker should abandon its workload
	// as soon as its own accumulator completes, rather than exploring
	// to the end. True for First mode, whose predicate depends only on
	// the worker's own find.
	StopOnResult() bool
	// Push reports whether workers send results as soon as they are
	// found instead of buffering until asked.
	Push() bool
}

// EmptyProgress is the progress of an exploration that has not started.
func EmptyProgress(m Mode) Progress {
	return Progress{Checkpoint: checkpoint.Unexplored, Result: m.Empty()}
}

// allMode sums every leaf under the monoid; the run ends when the
// checkpoint reaches Explored.
type allMode struct {
	m Monoid
}

// All explores the whole tree and returns the monoid sum of its leaves.
func All(m Monoid) Mode { return allMode{m: m} }

func (a allMode) Name() string                       { return "all" }
func (a allMode) Empty() any                         { return a.m.Empty() }
func (a allMode) Lift(_ tree.Location, leaf any) any { return a.m.Lift(leaf) }
func (a allMode) Combine(x, y any) any               { return a.m.Combine(x, y) }
func (allMode) Complete(any) bool                    { return false }
func (allMode) Locating() bool                       { return false }
func (allMode) StopOnResult() bool                   { return false }
func (allMode) Push() bool                           { return false }

// firstMode stops at the first leaf found anywhere. Which leaf wins under
// parallel exploration depends on scheduling; no ordering is promised.
type firstMode struct{}

// First explores until any worker finds a leaf.
func First() Mode { return firstMode{} }

func (firstMode) Name() string { return "first" }
func (firstMode) Empty() any   { return (*Located)(nil) }

func (firstMode) Lift(loc tree.Location, leaf any) any {
	return &Located{Where: loc, Value: leaf}
}

func (firstMode) Combine(x, y any) any {
	if l, ok := x.(*Located); ok && l != nil {
		return x
	}
	return y
}

func (firstMode) Complete(result any) bool {
	l, ok := result.(*Located)
	return ok && l != nil
}

func (firstMode) Locating() bool     { return true }
func (firstMode) StopOnResult() bool { return true }
func (firstMode) Push() bool         { return false }

// foundMode sums leaves until the predicate holds.
type foundMode struct {
	m    Monoid
	pred func(any) bool
	push bool
}

// FoundPull sums leaves under the monoid until pred holds on the
// supervisor's accumulated result; workers report when asked.
func FoundPull(m Monoid, pred func(any) bool) Mode {
	return foundMode{m: m, pred: pred}
}

// FoundPush is FoundPull with eager workers: a worker sends a progress
// update as soon as its local accumulator becomes non-empty, so a
// satisfying sum is noticed without waiting for the next pull.
func FoundPush(m Monoid, pred func(any) bool) Mode {
	return foundMode{m: m, pred: pred, push: true}
}

func (f foundMode) Name() string {
	if f.push {
		return "found-push"
	}
	return "found-pull"
}

func (f foundMode) Empty() any                         { return f.m.Empty() }
func (f foundMode) Lift(_ tree.Location, leaf any) any { return f.m.Lift(leaf) }
func (f foundMode) Combine(x, y any) any               { return f.m.Combine(x, y) }
func (f foundMode) Complete(result any) bool           { return f.pred(result) }
func (foundMode) Locating() bool                       { return false }
func (foundMode) StopOnResult() bool                   { return false }
func (f foundMode) Push() bool                         { return f.push }
