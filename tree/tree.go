// Package tree defines the instruction set for lazy binary search trees.
// A tree is a program: every non-leaf instruction carries a continuation,
// and the walker in package walk crosses one instruction at a time, so
// arbitrarily deep trees never recurse on the Go stack.
package tree

// Tree is one instruction of a search-tree program.
type Tree interface {
	node()
}

// Leaf carries a user value. It terminates its branch.
type Leaf struct {
	Value any
}

// Null is a dead branch: no value, nothing below it.
type Null struct{}

// Choice is a binary branch. The left side is explored before the right.
type Choice struct {
	Left  Tree
	Right Tree
}

// Cache runs an effect and persists its encoded value in checkpoints.
// If the effect reports ok=false the branch is dead, as with Null.
// Replaying a checkpoint skips the effect and decodes the stored bytes
// instead; the effect must therefore be deterministic, and re-running the
// program must produce the same continuation for the same bytes.
type Cache struct {
	Effect func() (any, bool)
	Codec  ValueCodec
	Next   func(any) Tree
}

// Yield is a cooperative scheduling point. The worker engine drains its
// control-message queue whenever the walker crosses one.
type Yield struct {
	Next func() Tree
}

// Defer is a laziness point: the walker forces it transparently, without
// consuming a semantic step. Recursive tree builders return Defer nodes so
// that only the spine currently under exploration is materialized.
type Defer struct {
	Force func() Tree
}

func (Leaf) node()    {}
func (Null) node()    {}
func (*Choice) node() {}
func (*Cache) node()  {}
func (*Yield) node()  {}
func (*Defer) node()  {}

// ValueCodec encodes cache values to the opaque bytes stored in
// checkpoints and paths. Encodings must be deterministic and round-trip
// bit-exactly.
type ValueCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}
