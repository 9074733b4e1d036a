package tree

import "fmt"

// Branch selects one side of a Choice.
type Branch uint8

const (
	LeftBranch Branch = iota
	RightBranch
)

func (b Branch) String() string {
	if b == LeftBranch {
		return "L"
	}
	return "R"
}

// Step is one move along a path: either a branch taken at a Choice or the
// bytes consumed at a Cache.
type Step interface {
	step()
}

// ChoiceStep records the branch taken at a Choice instruction.
type ChoiceStep struct {
	Branch Branch
}

// CacheStep records the encoded value consumed at a Cache instruction.
type CacheStep struct {
	Bytes []byte
}

func (ChoiceStep) step() {}
func (CacheStep) step()  {}

// Path identifies a unique node by replay from the root.
type Path []Step

// Join returns p followed by q as a fresh path.
func (p Path) Join(q Path) Path {
	out := make(Path, 0, len(p)+len(q))
	out = append(out, p...)
	out = append(out, q...)
	return out
}

// Clone returns a copy whose backing array is not shared with p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) String() string {
	s := ""
	for _, st := range p {
		switch st := st.(type) {
		case ChoiceStep:
			s += st.Branch.String()
		case CacheStep:
			s += fmt.Sprintf("C[%d]", len(st.Bytes))
		}
	}
	return s
}
