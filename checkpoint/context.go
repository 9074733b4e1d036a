package checkpoint

import "github.com/canopy-dev/canopy/tree"

// ContextStep is one frame of the exploration zipper. Frames closer to
// the root sit at lower indices; the walker pushes and pops at the tail.
type ContextStep interface {
	contextStep()
}

// CacheContextStep records a cache value consumed on the way down.
type CacheContextStep struct {
	Bytes []byte
}

// LeftBranchContextStep marks that exploration is inside the left side of
// a Choice. The right side's checkpoint and live sub-tree are parked here
// until the walker backtracks into them, or a steal carries them away.
type LeftBranchContextStep struct {
	RightCheckpoint Checkpoint
	RightTree       tree.Tree
}

// RightBranchContextStep marks that exploration is inside the right side
// of a Choice and the left side is fully explored.
type RightBranchContextStep struct{}

func (CacheContextStep) contextStep()        {}
func (*LeftBranchContextStep) contextStep()  {}
func (RightBranchContextStep) contextStep()  {}

// Context is the zipper from the workload's root down to the current
// position, with live sibling sub-trees still attached.
type Context []ContextStep

// Push adds a frame at the current position.
func (c Context) Push(step ContextStep) Context {
	return append(c, step)
}

// Depth is the number of frames.
func (c Context) Depth() int {
	return len(c)
}

// Splice rebuilds the checkpoint of the whole region covered by the
// context, with inner filling the hole at the current position. Each
// frame adds one layer, outside-in, through the simplifying constructors.
func (c Context) Splice(inner Checkpoint) Checkpoint {
	for i := len(c) - 1; i >= 0; i-- {
		switch step := c[i].(type) {
		case CacheContextStep:
			inner = NewCachePoint(step.Bytes, inner)
		case *LeftBranchContextStep:
			inner = NewChoicePoint(inner, step.RightCheckpoint)
		case RightBranchContextStep:
			inner = NewChoicePoint(Explored, inner)
		}
	}
	return inner
}

// Path projects the context to the path of the current position,
// forgetting sibling information.
func (c Context) Path() tree.Path {
	out := make(tree.Path, 0, len(c))
	for _, step := range c {
		switch step := step.(type) {
		case CacheContextStep:
			out = append(out, tree.CacheStep{Bytes: step.Bytes})
		case *LeftBranchContextStep:
			out = append(out, tree.ChoiceStep{Branch: tree.LeftBranch})
		case RightBranchContextStep:
			out = append(out, tree.ChoiceStep{Branch: tree.RightBranch})
		}
	}
	return out
}

// ShallowestLeftBranch returns the index of the outermost frame still
// holding an unvisited right sibling, or -1 if the context has none.
// Shallow frames bound the largest sub-trees, so steals prefer them.
func (c Context) ShallowestLeftBranch() int {
	for i, step := range c {
		if _, ok := step.(*LeftBranchContextStep); ok {
			return i
		}
	}
	return -1
}
