// Package checkpoint holds the partially-explored-tree data model: the
// Checkpoint sum type with its simplifying constructors and merge, the
// Context and Cursor zippers, and the path liftings that translate between
// workload-relative and whole-tree coordinates.
package checkpoint

import (
	"bytes"
	"fmt"
)

// Checkpoint records, region by region, how much of a tree has been
// explored. Explored and Unexplored are the two atoms; CachePoint and
// ChoicePoint mirror the Cache and Choice instructions of the tree.
type Checkpoint interface {
	cp()
	String() string
}

type explored struct{}
type unexplored struct{}

// Explored marks a fully explored region.
var Explored Checkpoint = explored{}

// Unexplored marks a region not yet visited.
var Unexplored Checkpoint = unexplored{}

// CachePoint records one consumed cache value and the checkpoint of the
// continuation that value was fed to.
type CachePoint struct {
	Bytes []byte
	Inner Checkpoint
}

// ChoicePoint records the checkpoints of the two sides of a Choice.
type ChoicePoint struct {
	Left  Checkpoint
	Right Checkpoint
}

func (explored) cp()     {}
func (unexplored) cp()   {}
func (*CachePoint) cp()  {}
func (*ChoicePoint) cp() {}

func (explored) String() string   { return "E" }
func (unexplored) String() string { return "U" }

func (c *CachePoint) String() string {
	return fmt.Sprintf("Cache(%d,%s)", len(c.Bytes), c.Inner)
}

func (c *ChoicePoint) String() string {
	return fmt.Sprintf("(%s|%s)", c.Left, c.Right)
}

// NewChoicePoint builds a choice checkpoint, collapsing the two trivial
// cases so that checkpoints stay in canonical form as they grow.
func NewChoicePoint(left, right Checkpoint) Checkpoint {
	if left == Unexplored && right == Unexplored {
		return Unexplored
	}
	if left == Explored && right == Explored {
		return Explored
	}
	return &ChoicePoint{Left: left, Right: right}
}

// NewCachePoint builds a cache checkpoint; a fully explored continuation
// collapses the whole node.
func NewCachePoint(cacheBytes []byte, inner Checkpoint) Checkpoint {
	if inner == Explored {
		return Explored
	}
	return &CachePoint{Bytes: cacheBytes, Inner: inner}
}

// Simplify rebuilds c bottom-up through the canonicalizing constructors.
// It is idempotent and preserves the set of explored leaves.
func Simplify(c Checkpoint) Checkpoint {
	switch c := c.(type) {
	case *CachePoint:
		return NewCachePoint(c.Bytes, Simplify(c.Inner))
	case *ChoicePoint:
		return NewChoicePoint(Simplify(c.Left), Simplify(c.Right))
	default:
		return c
	}
}

// Invert swaps Explored and Unexplored throughout, leaving cache bytes in
// place. Exploring c and exploring Invert(c) together cover exactly the
// whole tree.
func Invert(c Checkpoint) Checkpoint {
	switch c := c.(type) {
	case explored:
		return Unexplored
	case unexplored:
		return Explored
	case *CachePoint:
		return NewCachePoint(c.Bytes, Invert(c.Inner))
	case *ChoicePoint:
		return NewChoicePoint(Invert(c.Left), Invert(c.Right))
	default:
		panic(fmt.Sprintf("unknown checkpoint %T", c))
	}
}

// Merge unions two checkpoints of the same tree. Explored dominates,
// Unexplored is the identity, and congruent nodes merge recursively.
// Structurally incompatible checkpoints, or congruent cache points with
// different bytes, cannot belong to the same tree and fail with an
// InconsistentCheckpointsError.
func Merge(a, b Checkpoint) (Checkpoint, error) {
	switch {
	case a == Explored || b == Explored:
		return Explored, nil
	case a == Unexplored:
		return b, nil
	case b == Unexplored:
		return a, nil
	}
	switch a := a.(type) {
	case *CachePoint:
		bc, ok := b.(*CachePoint)
		if !ok {
			return nil, &InconsistentCheckpointsError{A: a, B: b}
		}
		if !bytes.Equal(a.Bytes, bc.Bytes) {
			return nil, &InconsistentCheckpointsError{A: a, B: b}
		}
		inner, err := Merge(a.Inner, bc.Inner)
		if err != nil {
			return nil, err
		}
		return NewCachePoint(a.Bytes, inner), nil
	case *ChoicePoint:
		bc, ok := b.(*ChoicePoint)
		if !ok {
			return nil, &InconsistentCheckpointsError{A: a, B: b}
		}
		left, err := Merge(a.Left, bc.Left)
		if err != nil {
			return nil, err
		}
		right, err := Merge(a.Right, bc.Right)
		if err != nil {
			return nil, err
		}
		return NewChoicePoint(left, right), nil
	default:
		return nil, &InconsistentCheckpointsError{A: a, B: b}
	}
}

// Equal reports structural equality of two checkpoints.
func Equal(a, b Checkpoint) bool {
	switch a := a.(type) {
	case explored:
		return b == Explored
	case unexplored:
		return b == Unexplored
	case *CachePoint:
		bc, ok := b.(*CachePoint)
		return ok && bytes.Equal(a.Bytes, bc.Bytes) && Equal(a.Inner, bc.Inner)
	case *ChoicePoint:
		bc, ok := b.(*ChoicePoint)
		return ok && Equal(a.Left, bc.Left) && Equal(a.Right, bc.Right)
	default:
		return false
	}
}
