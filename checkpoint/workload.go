package checkpoint

import (
	"fmt"

	"github.com/canopy-dev/canopy/tree"
)

// Workload delimits the slice of a tree assigned to one worker: replay
// Path from the root, then explore what Checkpoint leaves unexplored.
type Workload struct {
	Path       tree.Path
	Checkpoint Checkpoint
}

// EntireTree is the workload covering a whole unexplored tree.
func EntireTree() Workload {
	return Workload{Path: nil, Checkpoint: Unexplored}
}

// Depth is the length of the initial path. Shallower workloads bound
// larger sub-trees.
func (w Workload) Depth() int {
	return len(w.Path)
}

// Coverage is the whole-tree checkpoint marking as Explored exactly the
// region this workload is responsible for. The union of the global
// progress with the coverage of every outstanding workload is the whole
// tree.
func (w Workload) Coverage() Checkpoint {
	return FromInitialPath(w.Path, Invert(w.Checkpoint))
}

func (w Workload) String() string {
	return fmt.Sprintf("workload{path=%s cp=%s}", w.Path, w.Checkpoint)
}
