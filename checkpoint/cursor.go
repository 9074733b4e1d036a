package checkpoint

import "github.com/canopy-dev/canopy/tree"

// CursorStep is one frame of the zipper that has forgotten its live
// sub-trees. The worker engine freezes context frames into cursor steps
// when a sibling is stolen: from then on nothing above the frozen frames
// can be backtracked into, so only checkpoint knowledge is kept.
type CursorStep interface {
	cursorStep()
}

// CacheCursorStep records a cache value consumed on the way down.
type CacheCursorStep struct {
	Bytes []byte
}

// ChoiceCursorStep records which branch the position lies in and the
// checkpoint standing in for the other side: Explored when the sibling
// was finished here, Unexplored when it was stolen and belongs to
// another worker now.
type ChoiceCursorStep struct {
	Branch tree.Branch
	Other  Checkpoint
}

func (CacheCursorStep) cursorStep()  {}
func (ChoiceCursorStep) cursorStep() {}

// Cursor is the sub-tree-free prefix of a worker's position, outermost
// step first.
type Cursor []CursorStep

// Push adds a step below the current deepest one.
func (c Cursor) Push(step CursorStep) Cursor {
	return append(c, step)
}

// Depth is the number of steps.
func (c Cursor) Depth() int {
	return len(c)
}

// Splice rebuilds the checkpoint of the region covered by the cursor,
// with inner filling the hole below its deepest step.
func (c Cursor) Splice(inner Checkpoint) Checkpoint {
	for i := len(c) - 1; i >= 0; i-- {
		switch step := c[i].(type) {
		case CacheCursorStep:
			inner = NewCachePoint(step.Bytes, inner)
		case ChoiceCursorStep:
			if step.Branch == tree.LeftBranch {
				inner = NewChoicePoint(inner, step.Other)
			} else {
				inner = NewChoicePoint(step.Other, inner)
			}
		}
	}
	return inner
}

// Path projects the cursor to the path of its deepest position.
func (c Cursor) Path() tree.Path {
	out := make(tree.Path, 0, len(c))
	for _, step := range c {
		switch step := step.(type) {
		case CacheCursorStep:
			out = append(out, tree.CacheStep{Bytes: step.Bytes})
		case ChoiceCursorStep:
			out = append(out, tree.ChoiceStep{Branch: step.Branch})
		}
	}
	return out
}
