// Package walk is the incremental interpreter over search trees: a
// single-step function on exploration states, path replay for resuming a
// workload mid-tree, and whole-tree exploration helpers.
package walk

import (
	"fmt"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/tree"
)

// StepResult classifies what one call to Step did.
type StepResult int

const (
	// Advanced crossed one instruction without producing a leaf.
	Advanced StepResult = iota
	// Emitted produced a leaf value.
	Emitted
	// Yielded crossed a Yield instruction; the caller should drain its
	// control queue before stepping again.
	Yielded
	// Done means nothing remains: the state is exhausted.
	Done
)

func (r StepResult) String() string {
	switch r {
	case Advanced:
		return "advanced"
	case Emitted:
		return "emitted"
	case Yielded:
		return "yielded"
	case Done:
		return "done"
	}
	return fmt.Sprintf("StepResult(%d)", int(r))
}

// State is an exploration state: the zipper above the current position,
// the checkpoint of the region still to cover, and the instruction at the
// current position.
type State struct {
	Context    checkpoint.Context
	Checkpoint checkpoint.Checkpoint
	Tree       tree.Tree
}

// NewState starts exploration of a whole tree.
func NewState(t tree.Tree) *State {
	return &State{Checkpoint: checkpoint.Unexplored, Tree: t}
}

// NewStateFromCheckpoint starts exploration of the regions cp leaves
// unexplored.
func NewStateFromCheckpoint(cp checkpoint.Checkpoint, t tree.Tree) *State {
	return &State{Checkpoint: cp, Tree: t}
}

// Step advances the state by one semantic step: it crosses one
// instruction, or backtracks to the nearest unvisited right sibling, or
// reports Done when the context is empty and nothing remains. On Emitted
// the returned value is the leaf.
func (s *State) Step() (StepResult, any, error) {
	if s.Checkpoint == checkpoint.Explored {
		return s.backtrack(), nil, nil
	}

	s.force()

	// Checkpoints never record Yield crossings, so a composite checkpoint
	// lines up with the Cache or Choice behind any Yields at this
	// position; cross them silently.
	for s.Checkpoint != checkpoint.Unexplored {
		y, ok := s.Tree.(*tree.Yield)
		if !ok {
			break
		}
		s.Tree = y.Next()
		s.force()
	}

	switch cp := s.Checkpoint.(type) {
	case *checkpoint.CachePoint:
		c, ok := s.Tree.(*tree.Cache)
		if !ok {
			return Done, nil, &PastTreeInconsistentError{
				Detail: fmt.Sprintf("checkpoint has a cache point but the tree has %T", s.Tree),
			}
		}
		v, err := c.Codec.Decode(cp.Bytes)
		if err != nil {
			return Done, nil, &PastTreeInconsistentError{
				Detail: fmt.Sprintf("stored cache bytes no longer decode: %v", err),
			}
		}
		s.Context = s.Context.Push(checkpoint.CacheContextStep{Bytes: cp.Bytes})
		s.Checkpoint = cp.Inner
		s.Tree = c.Next(v)
		return Advanced, nil, nil

	case *checkpoint.ChoicePoint:
		c, ok := s.Tree.(*tree.Choice)
		if !ok {
			return Done, nil, &PastTreeInconsistentError{
				Detail: fmt.Sprintf("checkpoint has a choice point but the tree has %T", s.Tree),
			}
		}
		s.Context = s.Context.Push(&checkpoint.LeftBranchContextStep{
			RightCheckpoint: cp.Right,
			RightTree:       c.Right,
		})
		s.Checkpoint = cp.Left
		s.Tree = c.Left
		return Advanced, nil, nil
	}

	// Remaining checkpoint is Unexplored: dispatch on the instruction.
	switch t := s.Tree.(type) {
	case tree.Leaf:
		// Emit and backtrack in the same step. If the walk just ended the
		// next call observes the exhausted state and reports Done.
		s.backtrack()
		return Emitted, t.Value, nil

	case tree.Null:
		return s.backtrack(), nil, nil

	case *tree.Cache:
		v, ok := t.Effect()
		if !ok {
			return s.backtrack(), nil, nil
		}
		data, err := t.Codec.Encode(v)
		if err != nil {
			return Done, nil, fmt.Errorf("encoding cache value: %w", err)
		}
		s.Context = s.Context.Push(checkpoint.CacheContextStep{Bytes: data})
		s.Tree = t.Next(v)
		return Advanced, nil, nil

	case *tree.Choice:
		s.Context = s.Context.Push(&checkpoint.LeftBranchContextStep{
			RightCheckpoint: checkpoint.Unexplored,
			RightTree:       t.Right,
		})
		s.Tree = t.Left
		return Advanced, nil, nil

	case *tree.Yield:
		s.Tree = t.Next()
		return Yielded, nil, nil

	default:
		return Done, nil, fmt.Errorf("unknown tree instruction %T", s.Tree)
	}
}

// force resolves Defer thunks at the current position. Forcing is not a
// semantic step.
func (s *State) force() {
	for {
		d, ok := s.Tree.(*tree.Defer)
		if !ok {
			return
		}
		s.Tree = d.Force()
	}
}

// backtrack pops frames until an unvisited right sibling is found and
// moves into it, or reports Done when the context is exhausted. A leaf
// emitted by the caller is still valid when Done is returned.
func (s *State) backtrack() StepResult {
	for i := len(s.Context) - 1; i >= 0; i-- {
		if step, ok := s.Context[i].(*checkpoint.LeftBranchContextStep); ok {
			s.Context[i] = checkpoint.RightBranchContextStep{}
			s.Context = s.Context[:i+1]
			s.Checkpoint = step.RightCheckpoint
			s.Tree = step.RightTree
			return Advanced
		}
	}
	s.Context = s.Context[:0]
	s.Checkpoint = checkpoint.Explored
	s.Tree = nil
	return Done
}
