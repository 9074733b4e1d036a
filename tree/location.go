package tree

import "strings"

// Location is an abstract tree coordinate: the left-right branching
// sequence leading to a node, ignoring cache steps. The root is the empty
// location. Locations are immutable; the child and append operations
// return fresh values.
type Location struct {
	branches string // one byte per branch, 'L' or 'R'
}

// Root returns the identity location.
func Root() Location {
	return Location{}
}

// Child returns the location one level below l on the given branch.
func (l Location) Child(b Branch) Location {
	if b == LeftBranch {
		return Location{branches: l.branches + "L"}
	}
	return Location{branches: l.branches + "R"}
}

// Append composes two locations: the node reached by following l and
// then o. Root is the identity on both sides.
func (l Location) Append(o Location) Location {
	return Location{branches: l.branches + o.branches}
}

// Depth is the number of branches from the root.
func (l Location) Depth() int {
	return len(l.branches)
}

// Compare orders locations lexicographically by their branching
// sequences, with a prefix ordering before its extensions. This matches
// the left-to-right order in which the stepper emits leaves.
func (l Location) Compare(o Location) int {
	return strings.Compare(l.branches, o.branches)
}

// Branching returns the branch sequence of l.
func (l Location) Branching() []Branch {
	out := make([]Branch, len(l.branches))
	for i := 0; i < len(l.branches); i++ {
		if l.branches[i] == 'L' {
			out[i] = LeftBranch
		} else {
			out[i] = RightBranch
		}
	}
	return out
}

// LocationFromBranching rebuilds a location from a branch sequence.
func LocationFromBranching(bs []Branch) Location {
	var b strings.Builder
	b.Grow(len(bs))
	for _, br := range bs {
		if br == LeftBranch {
			b.WriteByte('L')
		} else {
			b.WriteByte('R')
		}
	}
	return Location{branches: b.String()}
}

// LocationFromPath projects a path down to its branching, forgetting
// cache steps.
func LocationFromPath(p Path) Location {
	var b strings.Builder
	for _, st := range p {
		if cs, ok := st.(ChoiceStep); ok {
			if cs.Branch == LeftBranch {
				b.WriteByte('L')
			} else {
				b.WriteByte('R')
			}
		}
	}
	return Location{branches: b.String()}
}

func (l Location) String() string {
	if l.branches == "" {
		return "·"
	}
	return l.branches
}
