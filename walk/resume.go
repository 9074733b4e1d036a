package walk

import (
	"bytes"
	"fmt"

	"github.com/canopy-dev/canopy/checkpoint"
	"github.com/canopy-dev/canopy/tree"
)

// Resume advances t along p, re-running cache effects and checking their
// bytes against the recorded ones, then returns the state exploring cp at
// that node. This is how a worker starts a workload: the tree is rebuilt
// fresh and fast-forwarded to the workload's root.
func Resume(t tree.Tree, p tree.Path, cp checkpoint.Checkpoint) (*State, error) {
	for i, step := range p {
		t = forceTree(t)
		switch step := step.(type) {
		case tree.ChoiceStep:
			c, ok := t.(*tree.Choice)
			if !ok {
				return nil, replayMismatch(t, i, "choice")
			}
			if step.Branch == tree.LeftBranch {
				t = c.Left
			} else {
				t = c.Right
			}

		case tree.CacheStep:
			c, ok := t.(*tree.Cache)
			if !ok {
				return nil, replayMismatch(t, i, "cache")
			}
			v, ok := c.Effect()
			if !ok {
				return nil, &PastTreeInconsistentError{
					Detail: fmt.Sprintf("cache effect at path step %d died; the recorded walk passed through it", i),
				}
			}
			data, err := c.Codec.Encode(v)
			if err != nil {
				return nil, fmt.Errorf("encoding cache value at path step %d: %w", i, err)
			}
			if !bytes.Equal(data, step.Bytes) {
				return nil, &PastTreeInconsistentError{
					Detail: fmt.Sprintf("cache bytes at path step %d changed between runs", i),
				}
			}
			t = c.Next(v)
		}
	}
	return NewStateFromCheckpoint(cp, forceTree(t)), nil
}

// forceTree resolves Defer thunks and crosses Yield instructions; neither
// is recorded in paths.
func forceTree(t tree.Tree) tree.Tree {
	for {
		switch n := t.(type) {
		case *tree.Defer:
			t = n.Force()
		case *tree.Yield:
			t = n.Next()
		default:
			return t
		}
	}
}

func replayMismatch(t tree.Tree, at int, want string) error {
	switch t.(type) {
	case tree.Leaf, tree.Null:
		// The tree stopped before the path did.
		return &VisitorTerminatedError{At: at}
	default:
		return &PastTreeInconsistentError{
			Detail: fmt.Sprintf("path step %d expects a %s but the tree has %T", at, want, t),
		}
	}
}
