package walk

import (
	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/tree"
)

// All iterates the stepper over a whole tree and returns its leaves in
// left-to-right order.
func All(t tree.Tree) ([]any, error) {
	return Explore(checkpoint.Unexplored, t)
}

// Explore iterates the stepper over the regions cp leaves unexplored.
func Explore(cp checkpoint.Checkpoint, t tree.Tree) ([]any, error) {
	var out []any
	s := NewStateFromCheckpoint(cp, t)
	for {
		res, leaf, err := s.Step()
		if err != nil {
			return out, err
		}
		switch res {
		case Emitted:
			out = append(out, leaf)
		case Done:
			return out, nil
		}
	}
}
