package checkpoint

import "github.com/canopy-dev/canopy/tree"

// FromInitialPath lifts a workload-relative checkpoint to whole-tree
// coordinates by replaying the initial path outside-in. Siblings of the
// path are marked Unexplored: the holder of this checkpoint knows nothing
// about them and must not claim them.
func FromInitialPath(p tree.Path, sub Checkpoint) Checkpoint {
	for i := len(p) - 1; i >= 0; i-- {
		switch step := p[i].(type) {
		case tree.CacheStep:
			sub = NewCachePoint(step.Bytes, sub)
		case tree.ChoiceStep:
			if step.Branch == tree.LeftBranch {
				sub = NewChoicePoint(sub, Unexplored)
			} else {
				sub = NewChoicePoint(Unexplored, sub)
			}
		}
	}
	return sub
}

// FromUnexploredPath builds the checkpoint of a tree whose only
// unexplored region is the node at p: siblings of every branch taken are
// marked Explored.
func FromUnexploredPath(p tree.Path) Checkpoint {
	sub := Unexplored
	for i := len(p) - 1; i >= 0; i-- {
		switch step := p[i].(type) {
		case tree.CacheStep:
			sub = NewCachePoint(step.Bytes, sub)
		case tree.ChoiceStep:
			if step.Branch == tree.LeftBranch {
				sub = NewChoicePoint(sub, Explored)
			} else {
				sub = NewChoicePoint(Explored, sub)
			}
		}
	}
	return sub
}
